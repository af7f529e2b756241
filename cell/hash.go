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
	"encoding/hex"
	"encoding/json"

	sha256 "github.com/minio/sha256-simd"
)

// HashSize is the size of a cell representation hash
const HashSize = 32

// Hash is a 32-byte SHA-256 cell hash
type Hash [HashSize]byte

// NewHash creates a Hash from a byte slice
func NewHash(data []byte) Hash {
	h := Hash{}
	copy(h[:], data)
	return h
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) Bytes() []byte {
	return h[:]
}

func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// hashData computes the SHA-256 digest used for cell representation hashes
func hashData(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}
