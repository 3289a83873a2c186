// Copyright (C) 2025 Claro Labs (oss@clarolabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"regexp"
	"strings"
)

// signatureRe matches a Python function signature line, with or without a
// return annotation. Requirements in the supported datasets state the
// target signature this way.
var signatureRe = regexp.MustCompile(`(?m)def\s+\w+\s*\([^)]*\)\s*(?:->\s*[^:\n]+)?:`)

// ExtractSignature returns the first function signature stated in the
// text, or "" when none is present.
func ExtractSignature(text string) string {
	return strings.TrimSpace(signatureRe.FindString(text))
}

// normalizeTokens collapses all whitespace runs so signature comparison is
// insensitive to formatting but strict about every other token.
func normalizeTokens(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ContainsSignature reports whether the code carries the signature's token
// sequence verbatim (modulo whitespace).
func ContainsSignature(code, signature string) bool {
	if signature == "" {
		return true
	}
	return strings.Contains(normalizeTokens(code), normalizeTokens(signature))
}
