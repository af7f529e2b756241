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

// Package cell implements the TON cell tree data structure and its canonical
// bag-of-cells (BOC) binary container format.
//
// A cell carries up to 1023 bits of payload and up to four references to
// other cells. Shared subtrees are allowed: a cell's identity is its
// representation hash, so equal subtrees deduplicate into a DAG and true
// reference cycles are structurally impossible.
//
// A cell is built mutable and becomes immutable once finalized. Finalizing
// computes the multi-level SHA-256 hash and depth vectors, including the
// special handling for the four exotic cell kinds (pruned branch, library,
// merkle proof, merkle update). Hashes and depths are unavailable before
// finalize.
package cell

import (
	"github.com/ton-blockchain/ton-trustless-bridge-relayer/bitstring"
)

const (
	// MaxBits is the payload capacity of a single cell
	MaxBits = 1023

	// MaxRefs is the maximum number of references a cell can carry
	MaxRefs = 4

	// maxDepth is the first invalid cell depth
	maxDepth = 1024

	// depthSize is the byte width of an encoded cell depth
	depthSize = 2
)

// Type identifies the cell kind. The exotic kinds carry their wire tag value
// in the first payload byte.
type Type uint8

const (
	TypeOrdinary     Type = 0
	TypePrunedBranch Type = 1
	TypeLibrary      Type = 2
	TypeMerkleProof  Type = 3
	TypeMerkleUpdate Type = 4
)

func (t Type) String() string {
	switch t {
	case TypeOrdinary:
		return "ordinary"
	case TypePrunedBranch:
		return "pruned branch"
	case TypeLibrary:
		return "library"
	case TypeMerkleProof:
		return "merkle proof"
	case TypeMerkleUpdate:
		return "merkle update"
	}
	return "unknown"
}

// Cell is a node of the TON cell tree
type Cell struct {
	bits   *bitstring.BitString
	refs   []*Cell
	exotic bool

	finalized bool
	typ       Type
	levelMask LevelMask
	hashes    []Hash
	depths    []uint16
}

// New creates an empty ordinary cell
func New() *Cell {
	return &Cell{
		bits: bitstring.New(MaxBits),
	}
}

// NewExotic creates an empty exotic cell. The exotic kind is determined by
// the first payload byte at finalize time.
func NewExotic() *Cell {
	c := New()
	c.exotic = true
	return c
}

// Bits returns the cell's payload buffer. Writing to it after the cell has
// been finalized invalidates the cached hashes.
func (c *Cell) Bits() *bitstring.BitString {
	return c.bits
}

// AddReference appends a child reference. The child does not need to be
// finalized yet, but must be before this cell is.
func (c *Cell) AddReference(child *Cell) error {
	if c.finalized {
		return newStructuralError(c.typ, "cannot add reference: cell is finalized")
	}
	if len(c.refs) >= MaxRefs {
		return newStructuralError(
			c.Type(),
			"cannot add reference: already has %d references",
			MaxRefs,
		)
	}
	c.refs = append(c.refs, child)
	return nil
}

// References returns the cell's child references
func (c *Cell) References() []*Cell {
	out := make([]*Cell, len(c.refs))
	copy(out, c.refs)
	return out
}

// IsExotic reports whether the cell is marked exotic
func (c *Cell) IsExotic() bool {
	return c.exotic
}

// IsFinalized reports whether the cell's hashes and depths are available
func (c *Cell) IsFinalized() bool {
	return c.finalized
}

// Type returns the cell kind. For an unfinalized exotic cell this is a
// best-effort read of the type tag from the payload.
func (c *Cell) Type() Type {
	if c.finalized {
		return c.typ
	}
	typ, err := c.resolveType()
	if err != nil {
		return c.typ
	}
	return typ
}

// LevelMask returns the cell's level mask. Only valid once finalized.
func (c *Cell) LevelMask() LevelMask {
	return c.levelMask
}

// Hash returns the cell's hash at the given merkle level. Level 0 is the
// representation hash. For a pruned branch, levels below the branch's own
// level read the embedded hash directly from the payload.
func (c *Cell) Hash(level int) (Hash, error) {
	if !c.finalized {
		return Hash{}, ErrNotFinalized
	}
	hashIndex := c.levelMask.Apply(level).HashIndex()
	if c.typ == TypePrunedBranch {
		if hashIndex != c.levelMask.HashIndex() {
			data, err := c.bits.BytesAt(16+hashIndex*HashSize*8, HashSize)
			if err != nil {
				return Hash{}, newStructuralError(
					c.typ,
					"embedded hash read failed: %s",
					err,
				)
			}
			return NewHash(data), nil
		}
		hashIndex = 0
	}
	return c.hashes[hashIndex], nil
}

// Depth returns the cell's depth at the given merkle level. For a pruned
// branch, levels below the branch's own level read the embedded depth
// directly from the payload.
func (c *Cell) Depth(level int) (uint16, error) {
	if !c.finalized {
		return 0, ErrNotFinalized
	}
	hashIndex := c.levelMask.Apply(level).HashIndex()
	if c.typ == TypePrunedBranch {
		if hashIndex != c.levelMask.HashIndex() {
			hashCount := c.levelMask.HashIndex()
			offset := 16 + hashCount*HashSize*8 + hashIndex*depthSize*8
			value, err := c.bits.UintAt(offset, depthSize*8)
			if err != nil {
				return 0, newStructuralError(
					c.typ,
					"embedded depth read failed: %s",
					err,
				)
			}
			return uint16(value), nil
		}
		hashIndex = 0
	}
	return c.depths[hashIndex], nil
}

// RepresentationHash returns the level-0 hash, the cell's content address
func (c *Cell) RepresentationHash() (Hash, error) {
	return c.Hash(0)
}
