// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package evermark

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBytes32(t *testing.T) {
	b32 := Blake2b([]byte("evermark"))

	parsed, err := ParseBytes32(b32.String())
	assert.NoError(t, err)
	assert.Equal(t, b32, parsed)

	_, err = ParseBytes32("0x123")
	assert.Error(t, err)

	_, err = ParseBytes32("zz" + b32.String()[2:])
	assert.Error(t, err)
}

func TestBytes32JSON(t *testing.T) {
	b32 := Blake2b([]byte("json"))

	data, err := json.Marshal(&b32)
	assert.NoError(t, err)

	var decoded Bytes32
	assert.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, b32, decoded)
}

func TestBytesToBytes32(t *testing.T) {
	assert.True(t, BytesToBytes32(nil).IsZero())
	assert.Equal(t, BytesToBytes32([]byte{1}), Uint64ToBytes32(1))

	// cropped from the left
	long := make([]byte, 40)
	long[39] = 7
	assert.Equal(t, Uint64ToBytes32(7), BytesToBytes32(long))
}

func TestParseAddress(t *testing.T) {
	addr := BytesToAddress([]byte("addr"))

	parsed, err := ParseAddress(addr.String())
	assert.NoError(t, err)
	assert.Equal(t, addr, *parsed)

	_, err = ParseAddress("0x00")
	assert.Error(t, err)
	assert.False(t, addr.IsZero())
}
