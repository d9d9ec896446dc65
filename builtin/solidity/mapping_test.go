// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package solidity

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipfsnut/evermark-contracts/evermark"
	"github.com/ipfsnut/evermark-contracts/lvldb"
	"github.com/ipfsnut/evermark-contracts/state"
)

type testEntry struct {
	Field1 uint64
	Field2 uint64
	Addr1  evermark.Address
	Bytes1 evermark.Bytes32
}

// bigEntry spans multiple slots: 3 Bytes32 fields.
type bigEntry struct {
	A evermark.Bytes32
	B evermark.Bytes32
	C evermark.Bytes32
}

// newTestContext returns a fresh Context with an in-memory store and a gas tally.
func newTestContext() (*Context, *uint64) {
	db, _ := lvldb.NewMem()
	st := state.New(db)
	var used uint64
	ctx := NewContext(evermark.Address{1}, st, func(gas uint64) { used += gas })
	return ctx, &used
}

func TestMappingGetSet(t *testing.T) {
	ctx, used := newTestContext()
	m := NewMapping[evermark.Bytes32, *testEntry](ctx, evermark.Bytes32{1})

	key := evermark.Uint64ToBytes32(7)
	entry := &testEntry{
		Field1: 100,
		Field2: 200,
		Addr1:  evermark.Address{0xca, 0xfe},
		Bytes1: evermark.Bytes32{0xbe, 0xef},
	}
	require.NoError(t, m.Set(key, entry, true))
	assert.Positive(t, *used)

	got, err := m.Get(key)
	require.NoError(t, err)
	assert.Equal(t, entry, got)
}

func TestMappingMissingKey(t *testing.T) {
	ctx, _ := newTestContext()
	m := NewMapping[evermark.Bytes32, *testEntry](ctx, evermark.Bytes32{1})

	got, err := m.Get(evermark.Uint64ToBytes32(404))
	require.NoError(t, err)
	assert.Equal(t, &testEntry{}, got)
}

func TestMappingDelete(t *testing.T) {
	ctx, _ := newTestContext()
	m := NewMapping[evermark.Bytes32, uint64](ctx, evermark.Bytes32{1})

	key := evermark.Uint64ToBytes32(1)
	require.NoError(t, m.Set(key, 42, true))
	require.NoError(t, m.Delete(key))

	got, err := m.Get(key)
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestMappingGasCharging(t *testing.T) {
	ctx, used := newTestContext()
	m := NewMapping[evermark.Bytes32, *bigEntry](ctx, evermark.Bytes32{1})

	key := evermark.Uint64ToBytes32(1)
	entry := &bigEntry{A: evermark.Bytes32{1}, B: evermark.Bytes32{2}, C: evermark.Bytes32{3}}
	require.NoError(t, m.Set(key, entry, true))
	// encoded value spans more than one word, so both words are charged
	assert.Equal(t, 2*evermark.SstoreSetGas, *used)

	*used = 0
	require.NoError(t, m.Set(key, entry, false))
	assert.Equal(t, 2*evermark.SstoreResetGas, *used)

	*used = 0
	_, err := m.Get(key)
	require.NoError(t, err)
	assert.Equal(t, 2*evermark.SloadGas, *used)
}

func TestMappingDistinctBasePositions(t *testing.T) {
	ctx, _ := newTestContext()
	m1 := NewMapping[evermark.Bytes32, uint64](ctx, evermark.Bytes32{1})
	m2 := NewMapping[evermark.Bytes32, uint64](ctx, evermark.Bytes32{2})

	key := evermark.Uint64ToBytes32(9)
	require.NoError(t, m1.Set(key, 11, true))
	require.NoError(t, m2.Set(key, 22, true))

	v1, err := m1.Get(key)
	require.NoError(t, err)
	v2, err := m2.Get(key)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), v1)
	assert.Equal(t, uint64(22), v2)
}

func TestUint256AddSub(t *testing.T) {
	ctx, _ := newTestContext()
	u := NewUint256(ctx, evermark.Bytes32{3})

	require.NoError(t, u.Add(big.NewInt(100)))
	require.NoError(t, u.Sub(big.NewInt(40)))

	got, err := u.Get()
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(60), got)

	err = u.Sub(big.NewInt(61))
	assert.ErrorContains(t, err, "uint256 underflow")
}

func TestAddressGetSet(t *testing.T) {
	ctx, _ := newTestContext()
	a := NewAddress(ctx, evermark.Bytes32{4})

	got, err := a.Get()
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	addr := evermark.Address{0xab, 0xcd}
	a.Set(&addr)
	got, err = a.Get()
	require.NoError(t, err)
	assert.Equal(t, addr, got)

	a.Set(nil)
	got, err = a.Get()
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestConfigVariableOverride(t *testing.T) {
	ctx, _ := newTestContext()

	cv := NewConfigVariable("test-config", 5)
	cv.Override(ctx)
	assert.Equal(t, uint32(5), cv.Get())

	cv2 := NewConfigVariable("test-config", 5)
	ctx.state.SetStorage(ctx.address, cv2.Slot(), evermark.BytesToBytes32(big.NewInt(99).Bytes()))
	cv2.Override(ctx)
	assert.Equal(t, uint32(99), cv2.Get())

	// cached after first read
	ctx.state.SetStorage(ctx.address, cv2.Slot(), evermark.BytesToBytes32(big.NewInt(123).Bytes()))
	cv2.Override(ctx)
	assert.Equal(t, uint32(99), cv2.Get())
}
