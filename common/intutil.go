// Copyright 2021 The go-ethereum Authors
// (original work)
// Copyright 2024 The Erigon Authors
// (modifications)
// Copyright 2025 The loro-go-core Authors
// (further modifications)
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

package common

import "math/bits"

// CeilDiv returns ceil(x/y), or 0 if y is 0.
func CeilDiv(x, y int) int {
	if y == 0 {
		return 0
	}
	return (x + y - 1) / y
}

// SafeAddU32 returns x+y and whether the addition overflowed uint32.
func SafeAddU32(x, y uint32) (uint32, bool) {
	sum, carryOut := bits.Add32(x, y, 0)
	return sum, carryOut != 0
}

// AbsDiffU32 returns the absolute difference between two uint32s.
func AbsDiffU32(x, y uint32) uint32 {
	if x > y {
		return x - y
	}
	return y - x
}
