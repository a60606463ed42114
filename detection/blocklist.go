// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
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

package detection

import (
	"path/filepath"
	"strings"
)

// DefaultBlocklist lists USB serial devices that share bridge chips with
// PN532 breakouts but reset or misbehave when a probe opens their port.
func DefaultBlocklist() []string {
	return []string{
		"2341:0043", // Arduino Uno, reboots on DTR
		"2341:0042", // Arduino Mega 2560
		"2341:8036", // Arduino Leonardo
		"2A03:0043", // Arduino Uno (arduino.org)
		"1366:0105", // SEGGER J-Link CDC
	}
}

// IsBlocked reports whether vidpid, in any format ParseVIDPID accepts,
// is on the blocklist.
func IsBlocked(vidpid string, blocklist []string) bool {
	id := ParseVIDPID(vidpid)
	if id == "" {
		return false
	}
	for _, b := range blocklist {
		if ParseVIDPID(b) == id {
			return true
		}
	}
	return false
}

var (
	vidKeys = []string{"VID:", "VID=", "VID_", "VENDOR="}
	pidKeys = []string{"PID:", "PID=", "PID_", "PRODUCT="}
)

// ParseVIDPID normalises a USB id to upper-case "VID:PID". It accepts
// "1234:5678", "VID:1234 PID:5678", "vendor=1234 product=5678" and
// Windows hardware ids such as `USB\VID_072F&PID_2200`. It returns ""
// when either half is missing.
func ParseVIDPID(descriptor string) string {
	s := strings.ToUpper(strings.TrimSpace(descriptor))
	if vid, pid, ok := strings.Cut(s, ":"); ok && isHex(vid) && isHex(pid) {
		return s
	}
	vid := valueAfter(s, vidKeys)
	pid := valueAfter(s, pidKeys)
	if vid == "" || pid == "" {
		return ""
	}
	return vid + ":" + pid
}

func valueAfter(s string, keys []string) string {
	for _, k := range keys {
		i := strings.Index(s, k)
		if i < 0 {
			continue
		}
		if v := leadingHex(s[i+len(k):]); v != "" {
			return v
		}
	}
	return ""
}

func leadingHex(s string) string {
	end := 0
	for end < len(s) && isHexDigit(s[end]) {
		end++
	}
	return s[:end]
}

func isHex(s string) bool {
	return s != "" && len(leadingHex(s)) == len(s)
}

func isHexDigit(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

// IsPathIgnored reports whether devicePath matches an entry of ignorePaths.
// Entries compare after filepath.Clean and case-insensitively (COM ports);
// entries with glob metacharacters, such as /dev/ttyS*, match as patterns.
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" {
		return false
	}
	dev := normalizedPath(devicePath)
	for _, ignore := range ignorePaths {
		if ignore == "" {
			continue
		}
		pattern := normalizedPath(ignore)
		if pattern == dev {
			return true
		}
		if strings.ContainsAny(pattern, "*?[") {
			if ok, err := filepath.Match(pattern, dev); err == nil && ok {
				return true
			}
		}
	}
	return false
}

func normalizedPath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}
