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
	"math/bits"
)

// MaxLevel is the highest merkle level a cell can carry
const MaxLevel = 3

// LevelMask records which of the higher merkle levels are significant for a
// cell. Bit i of the mask marks level i+1 as significant; level 0 is always
// significant. Merkle proof and update cells strip one level from their
// children, which is where masks other than all-ones arise.
type LevelMask uint8

// Level returns the highest significant level
func (m LevelMask) Level() int {
	return bits.Len8(uint8(m))
}

// HashesCount returns the number of stored hash/depth slots for a cell with
// this mask: one per significant mask bit, plus the level-0 slot
func (m LevelMask) HashesCount() int {
	return bits.OnesCount8(uint8(m)) + 1
}

// Apply truncates the mask to the given level
func (m LevelMask) Apply(level int) LevelMask {
	if level <= 0 {
		return 0
	}
	if level >= 8 {
		return m
	}
	return m & LevelMask(1<<level-1)
}

// IsSignificant reports whether the given level contributes its own
// hash/depth slot under this mask
func (m LevelMask) IsSignificant(level int) bool {
	if level <= 0 {
		return level == 0
	}
	return m>>(level-1)&1 == 1
}

// HashIndex returns the slot index for this mask's own level: the number of
// significant mask bits
func (m LevelMask) HashIndex() int {
	return bits.OnesCount8(uint8(m))
}
