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

package encoding

import "github.com/loro-dev/loro-go-core/common"

// blobMagic and blobSchemaVersion open every document snapshot/updates
// blob, per spec.md §6: "MAGIC(4)=LORO | VERSION(1)".
var blobMagic = [4]byte{'L', 'O', 'R', 'O'}

const blobSchemaVersion = 0

// BlobMode selects which of the four codecs a blob's body is routed to,
// immediately following MAGIC+VERSION.
type BlobMode uint8

const (
	ModeOutdatedRLE BlobMode = iota
	ModeOutdatedSnapshot
	ModeFastUpdates
	ModeFastSnapshot
)

// wrapBlob prepends the MAGIC/VERSION/mode header to an already-encoded
// body.
func wrapBlob(mode BlobMode, body []byte) []byte {
	out := make([]byte, 0, 5+len(body))
	out = append(out, blobMagic[:]...)
	out = append(out, blobSchemaVersion)
	out = append(out, byte(mode))
	out = append(out, body...)
	return out
}

// unwrapBlob validates MAGIC/VERSION and returns the mode plus the body
// bytes that follow. Outdated modes are recognized but rejected with
// ErrUnsupportedOutdated: this codec implements only the fast formats, per
// spec.md §4.7's "the core of this spec concerns the fast formats."
func unwrapBlob(raw []byte) (BlobMode, []byte, error) {
	if len(raw) < 6 {
		return 0, nil, common.ErrTruncated
	}
	if raw[0] != blobMagic[0] || raw[1] != blobMagic[1] || raw[2] != blobMagic[2] || raw[3] != blobMagic[3] {
		return 0, nil, common.ErrBadMagic
	}
	if raw[4] != blobSchemaVersion {
		return 0, nil, common.ErrBadSchemaVersion
	}
	mode := BlobMode(raw[5])
	switch mode {
	case ModeOutdatedRLE, ModeOutdatedSnapshot:
		return mode, nil, common.ErrUnsupportedOutdated
	case ModeFastUpdates, ModeFastSnapshot:
		return mode, raw[6:], nil
	default:
		return mode, nil, common.NewDecodeError("unknown blob mode", nil)
	}
}
