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

package bitstring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteBitAndGet(t *testing.T) {
	s := New(8)
	require.NoError(t, s.WriteBit(true))
	require.NoError(t, s.WriteBit(false))
	require.NoError(t, s.WriteBit(true))
	assert.Equal(t, 3, s.Length())
	assert.True(t, s.Get(0))
	assert.False(t, s.Get(1))
	assert.True(t, s.Get(2))
	// Bits beyond the cursor read as false
	assert.False(t, s.Get(3))
	assert.False(t, s.Get(100))
}

func TestWriteUint(t *testing.T) {
	s := New(64)
	require.NoError(t, s.WriteUint(0xdead, 16))
	value, err := s.UintAt(0, 16)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xdead), value)

	// MSB-first layout
	assert.Equal(t, []byte{0xde, 0xad}, s.Bytes())
}

func TestWriteUintValueTooLarge(t *testing.T) {
	s := New(64)
	err := s.WriteUint(256, 8)
	require.Error(t, err, "expected error for value not fitting width")
}

func TestWriteOverflow(t *testing.T) {
	s := New(4)
	require.NoError(t, s.WriteUint(0x0a, 4))
	err := s.WriteBit(true)
	require.ErrorIs(t, err, ErrOverflow)
	err = s.WriteUint(1, 8)
	require.ErrorIs(t, err, ErrOverflow)
}

func TestWriteBits(t *testing.T) {
	s := New(16)
	require.NoError(t, s.WriteBits([]bool{true, false, true, true}))
	value, err := s.UintAt(0, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0b), value)
}

func TestWriteBytes(t *testing.T) {
	s := New(1023)
	require.NoError(t, s.WriteBytes([]byte{0x01, 0x02, 0x03}))
	assert.Equal(t, 24, s.Length())
	got, err := s.BytesAt(0, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, got)
}

func TestUintAtOutOfRange(t *testing.T) {
	s := New(16)
	require.NoError(t, s.WriteUint(0xff, 8))
	_, err := s.UintAt(1, 8)
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestBytesAtUnaligned(t *testing.T) {
	s := New(16)
	require.NoError(t, s.WriteUint(0xffff, 16))
	_, err := s.BytesAt(4, 1)
	require.Error(t, err, "expected error for unaligned byte read")
}

func TestTopUppedBytesAligned(t *testing.T) {
	s := New(16)
	require.NoError(t, s.WriteBytes([]byte{0xab, 0xcd}))
	assert.Equal(t, []byte{0xab, 0xcd}, s.TopUppedBytes())

	restored, err := NewFromTopUppedBytes(s.TopUppedBytes(), true)
	require.NoError(t, err)
	assert.Equal(t, 16, restored.Length())
	assert.Equal(t, s.Bytes(), restored.Bytes())
}

func TestTopUppedBytesPadded(t *testing.T) {
	s := New(16)
	require.NoError(t, s.WriteUint(0x15, 5)) // 10101
	topUpped := s.TopUppedBytes()
	// 10101 + end marker 1 + zero fill = 10101100
	assert.Equal(t, []byte{0xac}, topUpped)

	restored, err := NewFromTopUppedBytes(topUpped, false)
	require.NoError(t, err)
	assert.Equal(t, 5, restored.Length())
	for i := range 5 {
		assert.Equal(t, s.Get(i), restored.Get(i), "bit %d differs", i)
	}
}

func TestNewFromTopUppedBytesMissingMarker(t *testing.T) {
	_, err := NewFromTopUppedBytes([]byte{0xff, 0x00}, false)
	require.Error(t, err, "expected error for missing end marker")
}

func TestHexForms(t *testing.T) {
	testCases := []struct {
		name  string
		write func(s *BitString)
		want  string
	}{
		{
			name:  "Empty",
			write: func(s *BitString) {},
			want:  "",
		},
		{
			name: "WholeBytes",
			write: func(s *BitString) {
				_ = s.WriteBytes([]byte{0xab, 0xcd})
			},
			want: "ABCD",
		},
		{
			name: "SingleNibble",
			write: func(s *BitString) {
				_ = s.WriteUint(0x0a, 4)
			},
			want: "A",
		},
		{
			name: "FiveBits",
			write: func(s *BitString) {
				_ = s.WriteUint(0x15, 5) // 10101 -> 101011 00 -> AC_
			},
			want: "AC_",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := New(64)
			tc.write(s)
			assert.Equal(t, tc.want, s.String())
		})
	}
}

func TestHexRoundTrip(t *testing.T) {
	testDefs := []struct {
		value uint64
		width int
	}{
		{0xa, 4},
		{0x2f, 7},
		{0xab, 8},
		{0xabc, 12},
		{0x1234, 16},
	}
	for _, testDef := range testDefs {
		s := New(64)
		require.NoError(t, s.WriteUint(testDef.value, testDef.width))
		restored, err := NewFromHex(s.String())
		require.NoError(t, err, "width %d", testDef.width)
		assert.Equal(
			t,
			s.Length(),
			restored.Length(),
			"width %d: length differs",
			testDef.width,
		)
		for i := range s.Length() {
			assert.Equal(
				t,
				s.Get(i),
				restored.Get(i),
				"width %d: bit %d differs",
				testDef.width,
				i,
			)
		}
	}
}

func TestNewFromHexInvalid(t *testing.T) {
	_, err := NewFromHex("zz")
	require.Error(t, err, "expected error for invalid hex")
}

func TestCopyIsIndependent(t *testing.T) {
	s := New(16)
	require.NoError(t, s.WriteUint(0xff, 8))
	c := s.Copy()
	require.NoError(t, c.WriteUint(0x00, 8))
	assert.Equal(t, 8, s.Length())
	assert.Equal(t, 16, c.Length())
	assert.Equal(t, []byte{0xff}, s.Bytes())
}

func TestBytesZeroesTail(t *testing.T) {
	s := New(16)
	require.NoError(t, s.WriteUint(0x07, 3)) // 111
	assert.Equal(t, []byte{0xe0}, s.Bytes())
}
