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
	"encoding/base64"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Dump returns an indented structural dump of the tree rooted at c, one
// x{hex} line per cell. Shared cells are printed once per occurrence. The
// walk uses an explicit stack so deep trees cannot exhaust the call stack.
func (c *Cell) Dump() string {
	type frame struct {
		cell   *Cell
		indent int
	}
	var sb strings.Builder
	stack := []frame{{cell: c}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		sb.WriteString(strings.Repeat(" ", f.indent))
		sb.WriteString("x{")
		sb.WriteString(f.cell.bits.String())
		sb.WriteString("}\n")
		for i := len(f.cell.refs) - 1; i >= 0; i-- {
			stack = append(stack, frame{
				cell:   f.cell.refs[i],
				indent: f.indent + 1,
			})
		}
	}
	return sb.String()
}

// Object is the portable read-only form of a cell tree: base64 payload
// bytes, the payload bit length, and the child objects. Shared cells are
// expanded once per occurrence.
type Object struct {
	Data string    `json:"data" cbor:"data"`
	Bits int       `json:"bits" cbor:"bits"`
	Refs []*Object `json:"refs" cbor:"refs"`
}

// MarshalCBOR encodes the object form as CBOR
func (o *Object) MarshalCBOR() ([]byte, error) {
	type rawObject Object
	return cbor.Marshal((*rawObject)(o))
}

// UnmarshalCBOR decodes the object form from CBOR
func (o *Object) UnmarshalCBOR(data []byte) error {
	type rawObject Object
	return cbor.Unmarshal(data, (*rawObject)(o))
}

// Object converts the tree rooted at c into its portable form
func (c *Cell) Object() *Object {
	type frame struct {
		cell *Cell
		obj  *Object
		next int
	}
	root := &Object{}
	stack := []frame{{cell: c, obj: root}}
	for len(stack) > 0 {
		f := &stack[len(stack)-1]
		if f.next == 0 {
			f.obj.Data = base64.StdEncoding.EncodeToString(f.cell.bits.Bytes())
			f.obj.Bits = f.cell.bits.Length()
		}
		if f.next < len(f.cell.refs) {
			child := f.cell.refs[f.next]
			childObj := &Object{}
			f.obj.Refs = append(f.obj.Refs, childObj)
			f.next++
			stack = append(stack, frame{cell: child, obj: childObj})
			continue
		}
		stack = stack[:len(stack)-1]
	}
	return root
}
