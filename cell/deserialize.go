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
	"encoding/hex"
	"hash/crc32"

	"github.com/ton-blockchain/ton-trustless-bridge-relayer/bitstring"
)

// bocReader is a cursor over the raw container bytes. Every read is bounds
// checked; a shortfall is a FormatError naming the field being read.
type bocReader struct {
	data []byte
	pos  int
}

func (r *bocReader) readBytes(n int, what string) ([]byte, error) {
	if n < 0 || n > len(r.data)-r.pos {
		return nil, newFormatError("unexpected end of data reading %s", what)
	}
	out := r.data[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *bocReader) readUint(n int, what string) (uint64, error) {
	raw, err := r.readBytes(n, what)
	if err != nil {
		return 0, err
	}
	var value uint64
	for _, b := range raw {
		value = value<<8 | uint64(b)
	}
	return value, nil
}

// bocHeader is the parsed fixed part of the container
type bocHeader struct {
	hasIndex       bool
	hasCRC32C      bool
	hasCacheBits   bool
	flags          uint8
	refByteSize    int
	offsetByteSize int
	cellCount      int
	rootCount      int
	totalCellSize  int
	rootIndices    []int
}

// rawBocCell is one parsed cell record, before reference resolution
type rawBocCell struct {
	bits   *bitstring.BitString
	exotic bool
	refs   []int
}

// parseBocHeader validates the magic prefix and reads every header field
func parseBocHeader(r *bocReader) (*bocHeader, error) {
	magic, err := r.readBytes(4, "magic prefix")
	if err != nil {
		return nil, err
	}
	switch {
	case bytes.Equal(magic, bocMagicGeneric):
		// supported
	case bytes.Equal(magic, bocMagicLean), bytes.Equal(magic, bocMagicLeanCRC):
		return nil, newFormatError(
			"lean container format %x is not supported",
			magic,
		)
	default:
		return nil, newFormatError("unknown magic prefix %x", magic)
	}
	flagsByte, err := r.readUint(1, "flags byte")
	if err != nil {
		return nil, err
	}
	hdr := &bocHeader{
		hasIndex:     flagsByte&0x80 != 0,
		hasCRC32C:    flagsByte&0x40 != 0,
		hasCacheBits: flagsByte&0x20 != 0,
		flags:        uint8(flagsByte >> 3 & 0x03),
		refByteSize:  int(flagsByte & 0x07),
	}
	if hdr.refByteSize == 0 {
		return nil, newFormatError("reference index byte width is zero")
	}
	offsetByteSize, err := r.readUint(1, "offset byte width")
	if err != nil {
		return nil, err
	}
	hdr.offsetByteSize = int(offsetByteSize)
	if hdr.offsetByteSize == 0 || hdr.offsetByteSize > 8 {
		return nil, newFormatError(
			"offset byte width %d out of range 1..8",
			hdr.offsetByteSize,
		)
	}
	cellCount, err := r.readUint(hdr.refByteSize, "cell count")
	if err != nil {
		return nil, err
	}
	hdr.cellCount = int(cellCount)
	rootCount, err := r.readUint(hdr.refByteSize, "root count")
	if err != nil {
		return nil, err
	}
	hdr.rootCount = int(rootCount)
	if hdr.rootCount == 0 {
		return nil, newFormatError("container has no roots")
	}
	absentCount, err := r.readUint(hdr.refByteSize, "absent count")
	if err != nil {
		return nil, err
	}
	if absentCount != 0 {
		return nil, newFormatError("absent cells are not supported")
	}
	totalCellSize, err := r.readUint(hdr.offsetByteSize, "total cell size")
	if err != nil {
		return nil, err
	}
	if totalCellSize > uint64(len(r.data)) {
		return nil, newFormatError(
			"total cell size %d exceeds container size %d",
			totalCellSize,
			len(r.data),
		)
	}
	hdr.totalCellSize = int(totalCellSize)
	// Every record is at least two descriptor bytes; declaring more cells
	// than could fit is rejected before any allocation sized from the header
	if cellCount > totalCellSize/2 {
		return nil, newFormatError(
			"cell count %d exceeds cell data size %d",
			cellCount,
			totalCellSize,
		)
	}
	for i := 0; i < hdr.rootCount; i++ {
		rootIndex, err := r.readUint(hdr.refByteSize, "root index")
		if err != nil {
			return nil, err
		}
		if rootIndex >= cellCount {
			return nil, newFormatError(
				"root index %d out of range: %d cells",
				rootIndex,
				cellCount,
			)
		}
		hdr.rootIndices = append(hdr.rootIndices, int(rootIndex))
	}
	if hdr.hasIndex {
		// The offset index is redundant with sequential parsing; it only
		// needs to be consumed.
		if _, err := r.readBytes(
			hdr.cellCount*hdr.offsetByteSize,
			"cell offset index",
		); err != nil {
			return nil, err
		}
	}
	return hdr, nil
}

// parseBocCell reads the record for the cell at position idx
func parseBocCell(
	r *bocReader,
	hdr *bocHeader,
	idx int,
) (*rawBocCell, error) {
	d1, err := r.readUint(1, "refs descriptor")
	if err != nil {
		return nil, err
	}
	refCount := int(d1 & 0x07)
	if refCount > MaxRefs {
		return nil, newFormatError(
			"cell %d: absent cells are not supported",
			idx,
		)
	}
	exotic := d1&0x08 != 0
	d2, err := r.readUint(1, "bits descriptor")
	if err != nil {
		return nil, err
	}
	if d1&0x10 != 0 {
		// Explicitly stored hashes are recomputed at finalize; skip them
		mask := LevelMask(d1 >> 5)
		skip := mask.HashesCount() * (HashSize + depthSize)
		if _, err := r.readBytes(skip, "stored hashes"); err != nil {
			return nil, err
		}
	}
	payload, err := r.readBytes(int(d2+1)/2, "cell payload")
	if err != nil {
		return nil, err
	}
	cellBits, err := bitstring.NewFromTopUppedBytes(payload, d2%2 == 0)
	if err != nil {
		return nil, newFormatError("cell %d: %s", idx, err)
	}
	cell := &rawBocCell{
		bits:   cellBits,
		exotic: exotic,
	}
	for i := 0; i < refCount; i++ {
		refIndex, err := r.readUint(hdr.refByteSize, "reference index")
		if err != nil {
			return nil, err
		}
		if int(refIndex) >= hdr.cellCount {
			return nil, newFormatError(
				"cell %d: reference index %d out of range: %d cells",
				idx,
				refIndex,
				hdr.cellCount,
			)
		}
		if int(refIndex) <= idx {
			return nil, newFormatError("topological order is broken")
		}
		cell.refs = append(cell.refs, int(refIndex))
	}
	return cell, nil
}

// DeserializeBOC parses a bag-of-cells container and returns its root cells,
// finalized. Any malformed input is rejected with a FormatError,
// StructuralError, or ChecksumError; no partial result is returned.
func DeserializeBOC(data []byte) ([]*Cell, error) {
	r := &bocReader{data: data}
	hdr, err := parseBocHeader(r)
	if err != nil {
		return nil, err
	}
	cellData, err := r.readBytes(hdr.totalCellSize, "cell data")
	if err != nil {
		return nil, err
	}
	if hdr.hasCRC32C {
		stored, err := r.readBytes(4, "checksum")
		if err != nil {
			return nil, err
		}
		computed := crc32.Checksum(data[:r.pos-4], crc32cTable)
		if got := binary.LittleEndian.Uint32(stored); got != computed {
			return nil, &ChecksumError{Expected: computed, Got: got}
		}
	}
	if r.pos != len(data) {
		return nil, newFormatError(
			"%d trailing bytes after container",
			len(data)-r.pos,
		)
	}

	cr := &bocReader{data: cellData}
	rawCells := make([]*rawBocCell, hdr.cellCount)
	for i := 0; i < hdr.cellCount; i++ {
		raw, err := parseBocCell(cr, hdr, i)
		if err != nil {
			return nil, err
		}
		rawCells[i] = raw
	}
	if cr.pos != len(cellData) {
		return nil, newFormatError(
			"%d trailing bytes after cell records",
			len(cellData)-cr.pos,
		)
	}

	// Resolve reference indices to cells, then finalize in reverse order so
	// every reference is finalized before the cells that hold it
	cells := make([]*Cell, hdr.cellCount)
	for i, raw := range rawCells {
		cells[i] = &Cell{
			bits:   raw.bits,
			exotic: raw.exotic,
		}
	}
	for i, raw := range rawCells {
		for _, refIndex := range raw.refs {
			cells[i].refs = append(cells[i].refs, cells[refIndex])
		}
	}
	for i := hdr.cellCount - 1; i >= 0; i-- {
		if err := cells[i].Finalize(); err != nil {
			return nil, err
		}
	}

	roots := make([]*Cell, 0, hdr.rootCount)
	for _, rootIndex := range hdr.rootIndices {
		roots = append(roots, cells[rootIndex])
	}
	return roots, nil
}

// DeserializeBOCHex parses a hex-encoded bag-of-cells container
func DeserializeBOCHex(s string) ([]*Cell, error) {
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, newFormatError("invalid hex: %s", err)
	}
	return DeserializeBOC(data)
}
