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

// Package bitstring implements the bounded, MSB-first bit buffer used for
// cell payloads in the TON serialization format.
//
// A BitString has a fixed bit capacity and a write cursor. Bits are appended
// sequentially with MSB-first ordering: the first bit written lands in bit
// position 7 of the first byte. Reads address absolute bit offsets and do not
// move the cursor.
package bitstring

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrOverflow is returned when a write would exceed the buffer capacity
	ErrOverflow = errors.New("bit string overflow")

	// ErrOutOfRange is returned when a read addresses bits beyond the cursor
	ErrOutOfRange = errors.New("bit string read out of range")
)

// BitString is a fixed-capacity bit buffer with a write cursor
type BitString struct {
	data   []byte
	bitCap int
	cursor int
}

// New creates an empty BitString with the given bit capacity
func New(bitCap int) *BitString {
	if bitCap < 0 {
		bitCap = 0
	}
	return &BitString{
		data:   make([]byte, (bitCap+7)/8),
		bitCap: bitCap,
	}
}

// NewFromTopUppedBytes reconstructs a BitString from its padded byte form.
// If fullfilled is true every bit of the final byte is payload; otherwise the
// final byte carries an end marker: a single 1 bit immediately after the
// payload, followed only by 0 bits.
func NewFromTopUppedBytes(data []byte, fullfilled bool) (*BitString, error) {
	s := &BitString{
		data:   make([]byte, len(data)),
		bitCap: len(data) * 8,
	}
	copy(s.data, data)
	s.cursor = s.bitCap
	if fullfilled || s.cursor == 0 {
		return s, nil
	}
	// Scan backwards for the end marker within the final byte
	for i := 0; i < 8; i++ {
		s.cursor--
		if s.Get(s.cursor) {
			s.clear(s.cursor)
			return s, nil
		}
	}
	return nil, errors.New("bit string: missing end marker in top-upped bytes")
}

// NewFromHex parses the hex form produced by String, including the trailing
// underscore convention for lengths that are not a multiple of four bits.
func NewFromHex(s string) (*BitString, error) {
	topUpped := strings.HasSuffix(s, "_")
	s = strings.TrimSuffix(s, "_")
	if len(s)%2 != 0 {
		if topUpped {
			s += "0"
		} else {
			// An odd digit count means the final nibble is all payload;
			// complete the byte with an end marker
			s += "8"
			topUpped = true
		}
	}
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("bit string: invalid hex: %w", err)
	}
	return NewFromTopUppedBytes(data, !topUpped)
}

// Length returns the number of bits written so far
func (s *BitString) Length() int {
	return s.cursor
}

// Cap returns the bit capacity
func (s *BitString) Cap() int {
	return s.bitCap
}

// Get returns the bit at the given offset. Offsets at or beyond the cursor
// read as false.
func (s *BitString) Get(offset int) bool {
	if offset < 0 || offset >= s.cursor {
		return false
	}
	return s.data[offset/8]&(1<<(7-offset%8)) != 0
}

func (s *BitString) set(offset int) {
	s.data[offset/8] |= 1 << (7 - offset%8)
}

func (s *BitString) clear(offset int) {
	s.data[offset/8] &^= 1 << (7 - offset%8)
}

// WriteBit appends a single bit
func (s *BitString) WriteBit(bit bool) error {
	if s.cursor >= s.bitCap {
		return ErrOverflow
	}
	if bit {
		s.set(s.cursor)
	}
	s.cursor++
	return nil
}

// WriteBits appends a sequence of bits
func (s *BitString) WriteBits(values []bool) error {
	for _, b := range values {
		if err := s.WriteBit(b); err != nil {
			return err
		}
	}
	return nil
}

// WriteUint appends value as a fixed-width big-endian unsigned integer.
// Returns an error if the value does not fit in width bits.
func (s *BitString) WriteUint(value uint64, width int) error {
	if width < 0 || width > 64 {
		return fmt.Errorf("bit string: invalid uint width %d", width)
	}
	if width < 64 && value >= 1<<width {
		return fmt.Errorf(
			"bit string: value %d does not fit in %d bits",
			value,
			width,
		)
	}
	if s.cursor+width > s.bitCap {
		return ErrOverflow
	}
	for i := width - 1; i >= 0; i-- {
		if err := s.WriteBit(value>>i&1 == 1); err != nil {
			return err
		}
	}
	return nil
}

// WriteBytes appends whole bytes
func (s *BitString) WriteBytes(data []byte) error {
	for _, b := range data {
		if err := s.WriteUint(uint64(b), 8); err != nil {
			return err
		}
	}
	return nil
}

// UintAt reads a fixed-width big-endian unsigned integer at an absolute bit
// offset without moving the cursor
func (s *BitString) UintAt(offset int, width int) (uint64, error) {
	if width < 0 || width > 64 {
		return 0, fmt.Errorf("bit string: invalid uint width %d", width)
	}
	if offset < 0 || offset+width > s.cursor {
		return 0, ErrOutOfRange
	}
	var value uint64
	for i := range width {
		value <<= 1
		if s.Get(offset + i) {
			value |= 1
		}
	}
	return value, nil
}

// BytesAt reads n whole bytes starting at a byte-aligned bit offset
func (s *BitString) BytesAt(offset int, n int) ([]byte, error) {
	if offset%8 != 0 {
		return nil, fmt.Errorf(
			"bit string: byte read at unaligned bit offset %d",
			offset,
		)
	}
	if offset < 0 || n < 0 || offset+n*8 > s.cursor {
		return nil, ErrOutOfRange
	}
	out := make([]byte, n)
	copy(out, s.data[offset/8:offset/8+n])
	return out, nil
}

// Bytes returns the payload as whole bytes, with any unused bits of the
// final byte zeroed
func (s *BitString) Bytes() []byte {
	n := (s.cursor + 7) / 8
	out := make([]byte, n)
	copy(out, s.data[:n])
	if rem := s.cursor % 8; rem != 0 {
		out[n-1] &= byte(0xff) << (8 - rem)
	}
	return out
}

// TopUppedBytes returns the payload padded to a whole number of bytes. When
// padding is needed, a single 1 bit marks the true end of the payload and the
// remainder is zero-filled.
func (s *BitString) TopUppedBytes() []byte {
	out := s.Bytes()
	if rem := s.cursor % 8; rem != 0 {
		out[len(out)-1] |= 1 << (7 - rem)
	}
	return out
}

// Copy returns a new BitString with the same capacity and contents
func (s *BitString) Copy() *BitString {
	c := &BitString{
		data:   make([]byte, len(s.data)),
		bitCap: s.bitCap,
		cursor: s.cursor,
	}
	copy(c.data, s.data)
	return c
}

// String returns the canonical hex form, upper-case, with a trailing
// underscore when the bit length is not a multiple of four
func (s *BitString) String() string {
	if s.cursor%4 == 0 {
		out := strings.ToUpper(hex.EncodeToString(s.Bytes()))
		if s.cursor%8 != 0 {
			out = out[:len(out)-1]
		}
		return out
	}
	tmp := &BitString{
		data:   make([]byte, len(s.data)+1),
		bitCap: s.bitCap + 8,
		cursor: s.cursor,
	}
	copy(tmp.data, s.data)
	_ = tmp.WriteBit(true)
	for tmp.cursor%4 != 0 {
		_ = tmp.WriteBit(false)
	}
	return tmp.String() + "_"
}
