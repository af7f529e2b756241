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
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"math/bits"
	"sort"
)

// Container magic prefixes. Only the generic format is implemented; the two
// lean variants are recognized so they can be rejected by name.
var (
	bocMagicGeneric = []byte{0xb5, 0xee, 0x9c, 0x72}
	bocMagicLean    = []byte{0x68, 0xff, 0x65, 0xf3}
	bocMagicLeanCRC = []byte{0xac, 0xc3, 0xa7, 0x28}
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// SerializeOptions selects the optional parts of the container
type SerializeOptions struct {
	// HasIndex includes the per-cell cumulative offset index
	HasIndex bool

	// HasCRC32C appends a CRC32C checksum over the whole container
	HasCRC32C bool

	// HasCacheBits marks the container as carrying cache bits
	HasCacheBits bool

	// Flags is the 2-bit reserved flags field (0..3)
	Flags uint8
}

// bocNode is one deduplicated cell in serialization order
type bocNode struct {
	cell  *Cell
	refs  []Hash
	index int
}

// topologicalSort deduplicates the tree rooted at c by representation hash
// and assigns serialization indices such that every reference points to a
// strictly higher index than the cell holding it
func topologicalSort(c *Cell) ([]*bocNode, map[Hash]int, error) {
	byHash := make(map[Hash]*bocNode)
	var order []*bocNode

	// Depth-first dedup walk with an explicit stack
	stack := []*Cell{c}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		hash, err := cur.Hash(0)
		if err != nil {
			return nil, nil, err
		}
		if _, seen := byHash[hash]; seen {
			continue
		}
		node := &bocNode{cell: cur, index: len(order)}
		for _, ref := range cur.refs {
			refHash, err := ref.Hash(0)
			if err != nil {
				return nil, nil, err
			}
			node.refs = append(node.refs, refHash)
		}
		byHash[hash] = node
		order = append(order, node)
		for i := len(cur.refs) - 1; i >= 0; i-- {
			stack = append(stack, cur.refs[i])
		}
	}

	// Fix-up pass: whenever a cell's index is not below a reference's index,
	// push the reference past the current maximum and rescan. Terminates
	// because the hash invariant precludes reference cycles.
	maxIndex := len(order) - 1
	for changed := true; changed; {
		changed = false
		for _, node := range order {
			for _, refHash := range node.refs {
				ref := byHash[refHash]
				if node.index >= ref.index {
					maxIndex++
					ref.index = maxIndex
					changed = true
				}
			}
		}
	}
	sort.Slice(order, func(i, j int) bool {
		return order[i].index < order[j].index
	})
	position := make(map[Hash]int, len(order))
	for i, node := range order {
		hash, err := node.cell.Hash(0)
		if err != nil {
			return nil, nil, err
		}
		position[hash] = i
	}
	return order, position, nil
}

// minBytesForUint returns the smallest byte width that can hold v
func minBytesForUint(v uint64) int {
	return max((bits.Len64(v)+7)/8, 1)
}

// writeUintN appends v as an n-byte big-endian integer
func writeUintN(buf *bytes.Buffer, v uint64, n int) {
	for i := n - 1; i >= 0; i-- {
		buf.WriteByte(byte(v >> (8 * i)))
	}
}

// Serialize encodes the tree rooted at c into a bag-of-cells container. The
// tree is finalized first if needed.
func Serialize(c *Cell, opts SerializeOptions) ([]byte, error) {
	if opts.Flags > 3 {
		return nil, newFormatError("flags value %d out of range 0..3", opts.Flags)
	}
	if err := c.FinalizeTree(); err != nil {
		return nil, err
	}
	order, position, err := topologicalSort(c)
	if err != nil {
		return nil, err
	}

	cellCount := len(order)
	refByteSize := minBytesForUint(uint64(cellCount))
	fullSize := 0
	offsets := make([]int, cellCount)
	for i, node := range order {
		fullSize += 2 + (node.cell.bits.Length()+7)/8 +
			len(node.refs)*refByteSize
		offsets[i] = fullSize
	}
	offsetByteSize := minBytesForUint(uint64(fullSize))

	buf := new(bytes.Buffer)
	buf.Write(bocMagicGeneric)
	flagsByte := byte(opts.Flags)<<3 | byte(refByteSize)
	if opts.HasIndex {
		flagsByte |= 0x80
	}
	if opts.HasCRC32C {
		flagsByte |= 0x40
	}
	if opts.HasCacheBits {
		flagsByte |= 0x20
	}
	buf.WriteByte(flagsByte)
	buf.WriteByte(byte(offsetByteSize))
	writeUintN(buf, uint64(cellCount), refByteSize)
	writeUintN(buf, 1, refByteSize) // root count
	writeUintN(buf, 0, refByteSize) // absent count
	writeUintN(buf, uint64(fullSize), offsetByteSize)
	writeUintN(buf, 0, refByteSize) // root cell index
	if opts.HasIndex {
		for _, offset := range offsets {
			writeUintN(buf, uint64(offset), offsetByteSize)
		}
	}
	for _, node := range order {
		buf.WriteByte(node.cell.refsDescriptor(node.cell.levelMask))
		buf.WriteByte(node.cell.bitsDescriptor())
		buf.Write(node.cell.bits.TopUppedBytes())
		for _, refHash := range node.refs {
			writeUintN(buf, uint64(position[refHash]), refByteSize)
		}
	}
	if opts.HasCRC32C {
		checksum := crc32.Checksum(buf.Bytes(), crc32cTable)
		var crcBytes [4]byte
		binary.LittleEndian.PutUint32(crcBytes[:], checksum)
		buf.Write(crcBytes[:])
	}
	return buf.Bytes(), nil
}

// ToBOC encodes the tree rooted at c with the given options
func (c *Cell) ToBOC(opts SerializeOptions) ([]byte, error) {
	return Serialize(c, opts)
}

// ToBOCDefault encodes the tree rooted at c with the default configuration:
// no index, with checksum
func (c *Cell) ToBOCDefault() ([]byte, error) {
	return Serialize(c, SerializeOptions{HasCRC32C: true})
}
