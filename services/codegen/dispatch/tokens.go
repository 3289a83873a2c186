// Copyright (C) 2025 Claro Labs (oss@clarolabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package dispatch

import "strings"

// EstimateTokens projects a token count for admission checks without a
// model tokenizer: roughly 1.3 tokens per whitespace-separated word, plus
// a small constant for message framing. Admission estimates only need to
// be in the right ballpark; the limiter is settled with actual counts
// after each call.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	return int(float64(words)*1.3) + 3
}
