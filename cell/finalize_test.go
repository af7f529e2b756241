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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPrunedBranch assembles a pruned branch cell from its embedded
// hash/depth pairs, one pair per set mask bit
func buildPrunedBranch(
	t *testing.T,
	mask LevelMask,
	hashes []Hash,
	depths []uint16,
) *Cell {
	t.Helper()
	c := NewExotic()
	require.NoError(t, c.Bits().WriteUint(uint64(TypePrunedBranch), 8))
	require.NoError(t, c.Bits().WriteUint(uint64(mask), 8))
	for _, h := range hashes {
		require.NoError(t, c.Bits().WriteBytes(h.Bytes()))
	}
	for _, d := range depths {
		require.NoError(t, c.Bits().WriteUint(uint64(d), 16))
	}
	return c
}

func patternHash(b byte) Hash {
	return NewHash(bytes.Repeat([]byte{b}, HashSize))
}

func TestPrunedBranchTransparency(t *testing.T) {
	embedded := patternHash(0x11)
	c := buildPrunedBranch(t, 1, []Hash{embedded}, []uint16{5})
	require.NoError(t, c.Finalize())
	assert.Equal(t, TypePrunedBranch, c.Type())
	assert.Equal(t, LevelMask(1), c.LevelMask())

	// Level 0 reads the embedded hash and depth straight from the payload
	hash0, err := c.Hash(0)
	require.NoError(t, err)
	assert.Equal(t, embedded, hash0)
	depth0, err := c.Depth(0)
	require.NoError(t, err)
	assert.Equal(t, uint16(5), depth0)

	// The branch's own level is a computed slot, not the embedded bytes
	hash1, err := c.Hash(1)
	require.NoError(t, err)
	assert.NotEqual(t, embedded, hash1)
	depth1, err := c.Depth(1)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), depth1)
}

func TestPrunedBranchLevelTwoOffsets(t *testing.T) {
	embedded := []Hash{patternHash(0x21), patternHash(0x42)}
	c := buildPrunedBranch(t, 3, embedded, []uint16{7, 9})
	require.NoError(t, c.Finalize())

	// Distinct levels resolve to distinct payload offsets
	hash0, err := c.Hash(0)
	require.NoError(t, err)
	assert.Equal(t, embedded[0], hash0)
	hash1, err := c.Hash(1)
	require.NoError(t, err)
	assert.Equal(t, embedded[1], hash1)
	hash2, err := c.Hash(2)
	require.NoError(t, err)
	assert.NotEqual(t, embedded[0], hash2)
	assert.NotEqual(t, embedded[1], hash2)

	depth0, err := c.Depth(0)
	require.NoError(t, err)
	assert.Equal(t, uint16(7), depth0)
	depth1, err := c.Depth(1)
	require.NoError(t, err)
	assert.Equal(t, uint16(9), depth1)
}

func TestPrunedBranchInvalid(t *testing.T) {
	testCases := []struct {
		name  string
		build func(t *testing.T) *Cell
	}{
		{
			name: "LevelZero",
			build: func(t *testing.T) *Cell {
				return buildPrunedBranch(t, 0, nil, nil)
			},
		},
		{
			name: "TooShort",
			build: func(t *testing.T) *Cell {
				c := NewExotic()
				require.NoError(
					t,
					c.Bits().WriteUint(uint64(TypePrunedBranch), 8),
				)
				return c
			},
		},
		{
			name: "WrongPayloadSize",
			build: func(t *testing.T) *Cell {
				c := buildPrunedBranch(
					t,
					1,
					[]Hash{patternHash(0x11)},
					[]uint16{5},
				)
				require.NoError(t, c.Bits().WriteBit(true))
				return c
			},
		},
		{
			name: "HasReferences",
			build: func(t *testing.T) *Cell {
				child := New()
				require.NoError(t, child.Finalize())
				c := buildPrunedBranch(
					t,
					1,
					[]Hash{patternHash(0x11)},
					[]uint16{5},
				)
				require.NoError(t, c.AddReference(child))
				return c
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.build(t).Finalize()
			require.Error(t, err)
			var structuralErr *StructuralError
			require.ErrorAs(t, err, &structuralErr)
		})
	}
}

func TestLibraryCell(t *testing.T) {
	c := NewExotic()
	require.NoError(t, c.Bits().WriteUint(uint64(TypeLibrary), 8))
	require.NoError(t, c.Bits().WriteBytes(patternHash(0x33).Bytes()))
	require.NoError(t, c.Finalize())
	assert.Equal(t, TypeLibrary, c.Type())
	assert.Equal(t, LevelMask(0), c.LevelMask())
}

func TestLibraryCellWrongSize(t *testing.T) {
	c := NewExotic()
	require.NoError(t, c.Bits().WriteUint(uint64(TypeLibrary), 8))
	require.NoError(t, c.Bits().WriteBytes(patternHash(0x33).Bytes()))
	require.NoError(t, c.Bits().WriteBit(true))
	err := c.Finalize()
	require.Error(t, err, "expected error for oversized library payload")
}

// buildMerkleProof assembles a merkle proof over child using the given
// embedded hash and depth
func buildMerkleProof(
	t *testing.T,
	child *Cell,
	hash Hash,
	depth uint16,
) *Cell {
	t.Helper()
	c := NewExotic()
	require.NoError(t, c.Bits().WriteUint(uint64(TypeMerkleProof), 8))
	require.NoError(t, c.Bits().WriteBytes(hash.Bytes()))
	require.NoError(t, c.Bits().WriteUint(uint64(depth), 16))
	require.NoError(t, c.AddReference(child))
	return c
}

func TestMerkleProof(t *testing.T) {
	child := New()
	require.NoError(t, child.Bits().WriteUint(0xf00d, 16))
	require.NoError(t, child.Finalize())
	childHash, err := child.Hash(0)
	require.NoError(t, err)
	childDepth, err := child.Depth(0)
	require.NoError(t, err)

	proof := buildMerkleProof(t, child, childHash, childDepth)
	require.NoError(t, proof.Finalize())
	assert.Equal(t, TypeMerkleProof, proof.Type())
	assert.Equal(t, LevelMask(0), proof.LevelMask())
}

func TestMerkleProofHashMismatch(t *testing.T) {
	child := New()
	require.NoError(t, child.Bits().WriteUint(0xf00d, 16))
	require.NoError(t, child.Finalize())
	childDepth, err := child.Depth(0)
	require.NoError(t, err)

	proof := buildMerkleProof(t, child, patternHash(0x55), childDepth)
	err = proof.Finalize()
	require.Error(t, err)
	var structuralErr *StructuralError
	require.ErrorAs(t, err, &structuralErr)
	assert.Contains(t, structuralErr.Reason, "hash")
}

func TestMerkleProofDepthMismatch(t *testing.T) {
	child := New()
	require.NoError(t, child.Bits().WriteUint(0xf00d, 16))
	require.NoError(t, child.Finalize())
	childHash, err := child.Hash(0)
	require.NoError(t, err)

	proof := buildMerkleProof(t, child, childHash, 17)
	err = proof.Finalize()
	require.Error(t, err)
	var structuralErr *StructuralError
	require.ErrorAs(t, err, &structuralErr)
	assert.Contains(t, structuralErr.Reason, "depth")
}

func TestMerkleProofWrongReferenceCount(t *testing.T) {
	c := NewExotic()
	require.NoError(t, c.Bits().WriteUint(uint64(TypeMerkleProof), 8))
	require.NoError(t, c.Bits().WriteBytes(patternHash(0x55).Bytes()))
	require.NoError(t, c.Bits().WriteUint(0, 16))
	err := c.Finalize()
	require.Error(t, err, "expected error for missing reference")
}

func TestMerkleProofOverPrunedBranch(t *testing.T) {
	pruned := buildPrunedBranch(t, 1, []Hash{patternHash(0x77)}, []uint16{3})
	require.NoError(t, pruned.Finalize())
	prunedHash, err := pruned.Hash(0)
	require.NoError(t, err)
	prunedDepth, err := pruned.Depth(0)
	require.NoError(t, err)

	proof := buildMerkleProof(t, pruned, prunedHash, prunedDepth)
	require.NoError(t, proof.Finalize())

	// The proof strips one level from its child
	assert.Equal(t, LevelMask(0), proof.LevelMask())
	proofHash, err := proof.Hash(0)
	require.NoError(t, err)
	assert.NotEqual(t, prunedHash, proofHash)
}

func TestMerkleUpdate(t *testing.T) {
	before := New()
	require.NoError(t, before.Bits().WriteUint(1, 8))
	require.NoError(t, before.Finalize())
	after := New()
	require.NoError(t, after.Bits().WriteUint(2, 8))
	require.NoError(t, after.Finalize())

	c := NewExotic()
	require.NoError(t, c.Bits().WriteUint(uint64(TypeMerkleUpdate), 8))
	for _, ref := range []*Cell{before, after} {
		refHash, err := ref.Hash(0)
		require.NoError(t, err)
		require.NoError(t, c.Bits().WriteBytes(refHash.Bytes()))
	}
	for _, ref := range []*Cell{before, after} {
		refDepth, err := ref.Depth(0)
		require.NoError(t, err)
		require.NoError(t, c.Bits().WriteUint(uint64(refDepth), 16))
	}
	require.NoError(t, c.AddReference(before))
	require.NoError(t, c.AddReference(after))
	require.NoError(t, c.Finalize())
	assert.Equal(t, TypeMerkleUpdate, c.Type())
}

func TestMerkleUpdateSwappedHashes(t *testing.T) {
	before := New()
	require.NoError(t, before.Bits().WriteUint(1, 8))
	require.NoError(t, before.Finalize())
	after := New()
	require.NoError(t, after.Bits().WriteUint(2, 8))
	require.NoError(t, after.Finalize())

	c := NewExotic()
	require.NoError(t, c.Bits().WriteUint(uint64(TypeMerkleUpdate), 8))
	// Embedded hashes in the wrong order
	for _, ref := range []*Cell{after, before} {
		refHash, err := ref.Hash(0)
		require.NoError(t, err)
		require.NoError(t, c.Bits().WriteBytes(refHash.Bytes()))
	}
	for range 2 {
		require.NoError(t, c.Bits().WriteUint(0, 16))
	}
	require.NoError(t, c.AddReference(before))
	require.NoError(t, c.AddReference(after))
	err := c.Finalize()
	require.Error(t, err, "expected error for swapped embedded hashes")
}

func TestUnknownExoticType(t *testing.T) {
	c := NewExotic()
	require.NoError(t, c.Bits().WriteUint(5, 8))
	err := c.Finalize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown special cell type")
}

func TestExoticTooShortForTag(t *testing.T) {
	c := NewExotic()
	require.NoError(t, c.Bits().WriteUint(1, 4))
	err := c.Finalize()
	require.Error(t, err, "expected error for truncated type tag")
}
