// Copyright 2025 The loro-go-core Authors
// This file is part of loro-go-core.
//
// loro-go-core is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// loro-go-core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with loro-go-core. If not, see <http://www.gnu.org/licenses/>.

package kv

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// CompressionType tags how a block's payload was compressed, stored in the
// block-meta "flags" byte alongside is_large (spec.md §4.2).
type CompressionType uint8

const (
	CompressionNone CompressionType = iota
	CompressionZstd
)

var (
	encOnce sync.Once
	enc     *zstd.Encoder
	decOnce sync.Once
	dec     *zstd.Decoder
)

func encoder() *zstd.Encoder {
	encOnce.Do(func() {
		e, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			panic(fmt.Sprintf("kv: failed to build zstd encoder: %v", err))
		}
		enc = e
	})
	return enc
}

func decoder() *zstd.Decoder {
	decOnce.Do(func() {
		d, err := zstd.NewReader(nil)
		if err != nil {
			panic(fmt.Sprintf("kv: failed to build zstd decoder: %v", err))
		}
		dec = d
	})
	return dec
}

// compressBlock compresses src per the requested compression type. None is
// a pass-through (useful for already-incompressible large-block payloads).
func compressBlock(src []byte, ct CompressionType) ([]byte, error) {
	switch ct {
	case CompressionNone:
		return src, nil
	case CompressionZstd:
		return encoder().EncodeAll(src, make([]byte, 0, len(src))), nil
	default:
		return nil, fmt.Errorf("kv: unknown compression type %d", ct)
	}
}

// decompressBlock reverses compressBlock.
func decompressBlock(src []byte, ct CompressionType) ([]byte, error) {
	switch ct {
	case CompressionNone:
		return src, nil
	case CompressionZstd:
		return decoder().DecodeAll(src, nil)
	default:
		return nil, fmt.Errorf("kv: unknown compression type %d", ct)
	}
}

// CompressBytes and DecompressBytes expose this package's shared zstd
// encoder/decoder pair to oplog's ChangeBlock body compression (spec.md
// §4.4), so the whole module standardizes on one compressor instance
// rather than each package building its own.
func CompressBytes(src []byte, ct CompressionType) ([]byte, error) {
	return compressBlock(src, ct)
}

func DecompressBytes(src []byte, ct CompressionType) ([]byte, error) {
	return decompressBlock(src, ct)
}

// Checksum32 exposes this package's checksum function for other packages
// (oplog change blocks) that want the same xxhash-based checksum spec.md §3
// requires to be "consistent within a file".
func Checksum32(b []byte) uint32 { return checksum32(b) }
