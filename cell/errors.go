// Copyright 2026 Blink Labs Software
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

package cell

import (
	"errors"
	"fmt"
)

// ErrNotFinalized is returned when a cell's hash or depth is read before the
// cell has been finalized
var ErrNotFinalized = errors.New("cell is not finalized")

// FormatError describes a malformed bag-of-cells container. Decoding aborts
// on the first violation; there is no partial result.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "bag of cells: " + e.Reason
}

func newFormatError(format string, args ...any) *FormatError {
	return &FormatError{Reason: fmt.Sprintf(format, args...)}
}

// StructuralError reports a violated cell-level invariant: an exotic cell
// precondition failure, an unknown exotic type tag, or depth overflow.
type StructuralError struct {
	Type   Type
	Reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s cell: %s", e.Type, e.Reason)
}

func newStructuralError(
	typ Type,
	format string,
	args ...any,
) *StructuralError {
	return &StructuralError{Type: typ, Reason: fmt.Sprintf(format, args...)}
}

// ChecksumError reports a CRC32C mismatch on a decoded container
type ChecksumError struct {
	Expected uint32
	Got      uint32
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf(
		"bag of cells: checksum mismatch: expected %08x, got %08x",
		e.Expected,
		e.Got,
	)
}
