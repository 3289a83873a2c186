// Copyright (C) 2025 Claro Labs (oss@clarolabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"encoding/json"
	"strings"
)

// extractTaggedBlock returns the text between <tag> and </tag>, matched
// case-insensitively. When the tags are absent the whole trimmed reply is
// returned, so models that skip the envelope still parse.
func extractTaggedBlock(reply, tag string) string {
	lower := strings.ToLower(reply)
	start := "<" + strings.ToLower(tag) + ">"
	end := "</" + strings.ToLower(tag) + ">"
	i := strings.Index(lower, start)
	j := strings.Index(lower, end)
	if i >= 0 && j > i+len(start) {
		return strings.TrimSpace(reply[i+len(start) : j])
	}
	return strings.TrimSpace(reply)
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag. Models frequently wrap their JSON in one.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// flexString accepts either a JSON string or an arbitrary JSON value,
// keeping the compact encoding of the latter. The analyzer's reasoning
// field arrives in both shapes.
func flexString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return string(raw)
}
