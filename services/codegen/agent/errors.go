// Copyright (C) 2025 Claro Labs (oss@clarolabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"errors"
	"fmt"
)

// MalformedResponseError reports a model reply that could not be parsed
// into the role's output schema. The role retries the same call a bounded
// number of times before escalating; it never substitutes a default.
type MalformedResponseError struct {
	Role   string
	Reason string
	Raw    string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s returned a malformed response: %s", e.Role, e.Reason)
}

// IsMalformed reports whether err is a parse failure worth re-asking for.
func IsMalformed(err error) bool {
	var me *MalformedResponseError
	return errors.As(err, &me)
}

// SignatureMismatchError reports Writer output that dropped or altered a
// function signature the finalized requirement stated verbatim. This is a
// hard post-condition: a mismatch aborts the workflow rather than letting
// a silent rewrite through.
type SignatureMismatchError struct {
	Signature string
}

func (e *SignatureMismatchError) Error() string {
	return fmt.Sprintf("generated code does not preserve the required function signature %q", e.Signature)
}
