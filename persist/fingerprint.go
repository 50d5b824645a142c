// Copyright 2023 Stratalang, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0
package persist

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// FingerprintSize is the size in bytes of a Fingerprint.
const FingerprintSize = 32

// Fingerprint is a deterministic digest of the tracked input values a
// computation depended on. A persisted entry is only ever a hit when
// its fingerprint matches, so a hit implies re-executing the pure
// computation would have produced the identical value. Wall-clock time
// and file metadata must never feed a fingerprint.
type Fingerprint [FingerprintSize]byte

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Hasher accumulates input values into a Fingerprint.
type Hasher struct {
	h *blake3.Hasher
}

func NewHasher() *Hasher {
	return &Hasher{h: blake3.New()}
}

func (h *Hasher) Write(b []byte) *Hasher {
	_, _ = h.h.Write(b)
	return h
}

func (h *Hasher) WriteString(s string) *Hasher {
	_, _ = h.h.WriteString(s)
	return h
}

func (h *Hasher) WriteUint64(v uint64) *Hasher {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, _ = h.h.Write(buf[:])
	return h
}

func (h *Hasher) WriteBool(v bool) *Hasher {
	if v {
		return h.Write([]byte{1})
	}
	return h.Write([]byte{0})
}

// Sum yields the fingerprint of everything written so far. The Hasher
// remains usable; further writes extend the digest.
func (h *Hasher) Sum() Fingerprint {
	var f Fingerprint
	d := h.h.Digest()
	_, _ = d.Read(f[:])
	return f
}

// FingerprintString is a convenience for single-string inputs.
func FingerprintString(s string) Fingerprint {
	return NewHasher().WriteString(s).Sum()
}
