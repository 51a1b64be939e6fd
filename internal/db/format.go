// Copyright 2024 The ReBenchDB Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"regexp"
	"strings"
)

var (
	slugInvalid   = regexp.MustCompile(`[^0-9A-Za-z-]`)
	signedOffLine = regexp.MustCompile(`Signed-off-by:.*`)
)

// Slug derives the URL slug of a project name: every character outside
// [0-9A-Za-z-] becomes a dash.
func Slug(name string) string {
	return slugInvalid.ReplaceAllString(name, "-")
}

// FilterCommitMessage normalizes a commit message for storage:
// Signed-off-by trailers are stripped, escaped newlines become real
// ones, and surrounding whitespace is trimmed.
func FilterCommitMessage(msg string) string {
	msg = signedOffLine.ReplaceAllString(msg, "")
	msg = strings.ReplaceAll(msg, `\n`, "\n")
	return strings.TrimSpace(msg)
}
