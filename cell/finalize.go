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
	"runtime"
	"sync"
)

// Exotic payload layouts, in bits:
//
//	pruned branch: tag(8) mask(8) hash(256)*n depth(16)*n
//	library:       tag(8) hash(256)
//	merkle proof:  tag(8) hash(256) depth(16)
//	merkle update: tag(8) hash(256)*2 depth(16)*2
const (
	prunedBranchMinBits = 16
	libraryBits         = 8 + HashSize*8
	merkleProofBits     = 8 + HashSize*8 + depthSize*8
	merkleUpdateBits    = 8 + 2*(HashSize*8+depthSize*8)
)

// resolveType reads the cell kind from the exotic type tag
func (c *Cell) resolveType() (Type, error) {
	if !c.exotic {
		return TypeOrdinary, nil
	}
	if c.bits.Length() < 8 {
		return TypeOrdinary, newStructuralError(
			TypeOrdinary,
			"exotic cell is too short for a type tag",
		)
	}
	tag, err := c.bits.UintAt(0, 8)
	if err != nil {
		return TypeOrdinary, err
	}
	typ := Type(tag)
	switch typ {
	case TypePrunedBranch, TypeLibrary, TypeMerkleProof, TypeMerkleUpdate:
		return typ, nil
	}
	return typ, newStructuralError(typ, "unknown special cell type %d", tag)
}

// computeLevelMask derives the cell's level mask from its kind, payload, and
// children. Children must already be finalized.
func (c *Cell) computeLevelMask(typ Type) (LevelMask, error) {
	switch typ {
	case TypeOrdinary, TypeLibrary:
		var mask LevelMask
		for _, ref := range c.refs {
			mask |= ref.levelMask
		}
		return mask, nil
	case TypePrunedBranch:
		stored, err := c.bits.UintAt(8, 8)
		if err != nil {
			return 0, newStructuralError(typ, "missing level mask")
		}
		return LevelMask(stored), nil
	case TypeMerkleProof:
		if len(c.refs) != 1 {
			return 0, newStructuralError(
				typ,
				"expected 1 reference, got %d",
				len(c.refs),
			)
		}
		return c.refs[0].levelMask >> 1, nil
	case TypeMerkleUpdate:
		if len(c.refs) != 2 {
			return 0, newStructuralError(
				typ,
				"expected 2 references, got %d",
				len(c.refs),
			)
		}
		return (c.refs[0].levelMask | c.refs[1].levelMask) >> 1, nil
	}
	return 0, newStructuralError(typ, "unknown special cell type %d", typ)
}

// validate checks the structural preconditions for the cell's kind
func (c *Cell) validate(typ Type, mask LevelMask) error {
	switch typ {
	case TypeOrdinary:
		return nil
	case TypePrunedBranch:
		if len(c.refs) != 0 {
			return newStructuralError(
				typ,
				"expected 0 references, got %d",
				len(c.refs),
			)
		}
		if c.bits.Length() < prunedBranchMinBits {
			return newStructuralError(
				typ,
				"payload too short: %d bits",
				c.bits.Length(),
			)
		}
		level := mask.Level()
		if level < 1 || level > MaxLevel {
			return newStructuralError(typ, "level %d out of range 1..3", level)
		}
		hashCount := mask.HashIndex()
		expected := prunedBranchMinBits + hashCount*(HashSize+depthSize)*8
		if c.bits.Length() != expected {
			return newStructuralError(
				typ,
				"expected %d bits of payload, got %d",
				expected,
				c.bits.Length(),
			)
		}
		return nil
	case TypeLibrary:
		if c.bits.Length() != libraryBits {
			return newStructuralError(
				typ,
				"expected %d bits of payload, got %d",
				libraryBits,
				c.bits.Length(),
			)
		}
		return nil
	case TypeMerkleProof:
		if c.bits.Length() != merkleProofBits {
			return newStructuralError(
				typ,
				"expected %d bits of payload, got %d",
				merkleProofBits,
				c.bits.Length(),
			)
		}
		return c.validateMerkleField(typ, 0, c.refs[0], merkleProofBits)
	case TypeMerkleUpdate:
		if c.bits.Length() != merkleUpdateBits {
			return newStructuralError(
				typ,
				"expected %d bits of payload, got %d",
				merkleUpdateBits,
				c.bits.Length(),
			)
		}
		for i, ref := range c.refs {
			if err := c.validateMerkleField(typ, i, ref, merkleUpdateBits); err != nil {
				return err
			}
		}
		return nil
	}
	return newStructuralError(typ, "unknown special cell type %d", typ)
}

// validateMerkleField checks one embedded hash/depth pair against a child's
// level-0 hash and depth. The payload packs all hashes first, then all
// depths; totalBits locates the depth block.
func (c *Cell) validateMerkleField(
	typ Type,
	idx int,
	ref *Cell,
	totalBits int,
) error {
	stored, err := c.bits.BytesAt(8+idx*HashSize*8, HashSize)
	if err != nil {
		return newStructuralError(typ, "embedded hash read failed: %s", err)
	}
	refHash, err := ref.Hash(0)
	if err != nil {
		return newStructuralError(typ, "reference %d is not finalized", idx)
	}
	if !bytes.Equal(stored, refHash.Bytes()) {
		return newStructuralError(
			typ,
			"embedded hash %d does not match reference hash %s",
			idx,
			refHash,
		)
	}
	depthBlock := totalBits - (len(c.refs)-idx)*depthSize*8
	storedDepth, err := c.bits.UintAt(depthBlock, depthSize*8)
	if err != nil {
		return newStructuralError(typ, "embedded depth read failed: %s", err)
	}
	refDepth, err := ref.Depth(0)
	if err != nil {
		return newStructuralError(typ, "reference %d is not finalized", idx)
	}
	if uint16(storedDepth) != refDepth {
		return newStructuralError(
			typ,
			"embedded depth %d does not match reference depth %d",
			storedDepth,
			refDepth,
		)
	}
	return nil
}

// refsDescriptor returns the d1 descriptor byte for the given mask
func (c *Cell) refsDescriptor(mask LevelMask) byte {
	d1 := byte(len(c.refs))
	if c.exotic {
		d1 |= 0x08
	}
	return d1 | byte(mask)<<5
}

// bitsDescriptor returns the d2 descriptor byte; the low bit signals a
// partially used final byte
func (c *Cell) bitsDescriptor() byte {
	n := c.bits.Length()
	return byte((n+7)/8 + n/8)
}

// Finalize validates the cell and computes its hash and depth vectors. Every
// referenced cell must already be finalized. Finalize is idempotent; once it
// succeeds the cell must be treated as immutable.
func (c *Cell) Finalize() error {
	if c.finalized {
		return nil
	}
	if c.bits.Length() > MaxBits {
		return newStructuralError(
			TypeOrdinary,
			"payload exceeds %d bits",
			MaxBits,
		)
	}
	if len(c.refs) > MaxRefs {
		return newStructuralError(
			TypeOrdinary,
			"more than %d references",
			MaxRefs,
		)
	}
	for i, ref := range c.refs {
		if !ref.finalized {
			return newStructuralError(
				c.Type(),
				"reference %d is not finalized",
				i,
			)
		}
	}
	typ, err := c.resolveType()
	if err != nil {
		return err
	}
	mask, err := c.computeLevelMask(typ)
	if err != nil {
		return err
	}
	if err := c.validate(typ, mask); err != nil {
		return err
	}

	// A pruned branch stores the hashes for its masked levels in its own
	// payload and computes only the slot for its top level.
	totalHashCount := mask.HashesCount()
	hashCount := totalHashCount
	if typ == TypePrunedBranch {
		hashCount = 1
	}
	hashIdxOffset := totalHashCount - hashCount

	hashes := make([]Hash, 0, hashCount)
	depths := make([]uint16, 0, hashCount)
	hashIdx := 0
	for level := 0; level <= mask.Level(); level++ {
		if !mask.IsSignificant(level) {
			continue
		}
		if hashIdx < hashIdxOffset {
			hashIdx++
			continue
		}

		repr := make(
			[]byte,
			0,
			2+(MaxBits+7)/8+len(c.refs)*(depthSize+HashSize),
		)
		repr = append(
			repr,
			c.refsDescriptor(mask.Apply(level)),
			c.bitsDescriptor(),
		)
		if hashIdx == hashIdxOffset {
			repr = append(repr, c.bits.TopUppedBytes()...)
		} else {
			// Higher levels hash the previous slot instead of the payload
			repr = append(repr, hashes[hashIdx-hashIdxOffset-1].Bytes()...)
		}

		// Merkle proofs and updates reference their children one level up
		childLevel := level
		if typ == TypeMerkleProof || typ == TypeMerkleUpdate {
			childLevel = level + 1
		}

		depth := 0
		for _, ref := range c.refs {
			refDepth, err := ref.Depth(childLevel)
			if err != nil {
				return err
			}
			if int(refDepth)+1 > depth {
				depth = int(refDepth) + 1
			}
			repr = binary.BigEndian.AppendUint16(repr, refDepth)
		}
		if depth >= maxDepth {
			return newStructuralError(typ, "depth %d exceeds maximum", depth)
		}
		for _, ref := range c.refs {
			refHash, err := ref.Hash(childLevel)
			if err != nil {
				return err
			}
			repr = append(repr, refHash.Bytes()...)
		}

		hashes = append(hashes, hashData(repr))
		depths = append(depths, uint16(depth))
		hashIdx++
	}

	c.typ = typ
	c.levelMask = mask
	c.hashes = hashes
	c.depths = depths
	c.finalized = true
	return nil
}

// finalizeFrame tracks an in-progress node during the iterative tree walk
type finalizeFrame struct {
	cell *Cell
	next int
}

// FinalizeTree finalizes the cell and everything it references, children
// first. The walk uses an explicit stack: block proof trees can be deep
// enough to exhaust the goroutine stack with native recursion.
func (c *Cell) FinalizeTree() error {
	onStack := make(map[*Cell]bool)
	stack := []finalizeFrame{{cell: c}}
	onStack[c] = true
	for len(stack) > 0 {
		frame := &stack[len(stack)-1]
		if frame.cell.finalized {
			delete(onStack, frame.cell)
			stack = stack[:len(stack)-1]
			continue
		}
		if frame.next < len(frame.cell.refs) {
			child := frame.cell.refs[frame.next]
			frame.next++
			if child.finalized {
				continue
			}
			if onStack[child] {
				return newStructuralError(
					child.Type(),
					"reference cycle detected",
				)
			}
			onStack[child] = true
			stack = append(stack, finalizeFrame{cell: child})
			continue
		}
		if err := frame.cell.Finalize(); err != nil {
			return err
		}
		delete(onStack, frame.cell)
		stack = stack[:len(stack)-1]
	}
	return nil
}

// FinalizeTreeConcurrent finalizes the tree using up to workers goroutines.
// Cells are grouped by height so that every group only depends on groups
// already finalized; cells within a group are independent and hash in
// parallel. workers <= 0 selects GOMAXPROCS.
func (c *Cell) FinalizeTreeConcurrent(workers int) error {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	groups, err := c.heightGroups()
	if err != nil {
		return err
	}
	for _, group := range groups {
		if len(group) == 1 || workers == 1 {
			for _, node := range group {
				if err := node.Finalize(); err != nil {
					return err
				}
			}
			continue
		}
		jobs := make(chan *Cell)
		var wg sync.WaitGroup
		var mu sync.Mutex
		var firstErr error
		n := min(workers, len(group))
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for node := range jobs {
					if err := node.Finalize(); err != nil {
						mu.Lock()
						if firstErr == nil {
							firstErr = err
						}
						mu.Unlock()
					}
				}
			}()
		}
		for _, node := range group {
			jobs <- node
		}
		close(jobs)
		wg.Wait()
		if firstErr != nil {
			return firstErr
		}
	}
	return nil
}

// heightGroups buckets the reachable cells by height above the leaves,
// ascending, deduplicated by pointer
func (c *Cell) heightGroups() ([][]*Cell, error) {
	heights := make(map[*Cell]int)
	onStack := make(map[*Cell]bool)
	stack := []finalizeFrame{{cell: c}}
	onStack[c] = true
	var groups [][]*Cell
	for len(stack) > 0 {
		frame := &stack[len(stack)-1]
		if _, done := heights[frame.cell]; done {
			delete(onStack, frame.cell)
			stack = stack[:len(stack)-1]
			continue
		}
		if frame.next < len(frame.cell.refs) {
			child := frame.cell.refs[frame.next]
			frame.next++
			if _, done := heights[child]; done {
				continue
			}
			if onStack[child] {
				return nil, newStructuralError(
					child.Type(),
					"reference cycle detected",
				)
			}
			onStack[child] = true
			stack = append(stack, finalizeFrame{cell: child})
			continue
		}
		height := 0
		for _, child := range frame.cell.refs {
			if heights[child]+1 > height {
				height = heights[child] + 1
			}
		}
		heights[frame.cell] = height
		for len(groups) <= height {
			groups = append(groups, nil)
		}
		groups[height] = append(groups[height], frame.cell)
		delete(onStack, frame.cell)
		stack = stack[:len(stack)-1]
	}
	return groups, nil
}
