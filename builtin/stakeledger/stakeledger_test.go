// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package stakeledger

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipfsnut/evermark-contracts/builtin/reverts"
	"github.com/ipfsnut/evermark-contracts/builtin/solidity"
	"github.com/ipfsnut/evermark-contracts/builtin/token"
	"github.com/ipfsnut/evermark-contracts/evermark"
	"github.com/ipfsnut/evermark-contracts/lvldb"
	"github.com/ipfsnut/evermark-contracts/state"
)

var alice = evermark.Address{0xa1}

func newTestLedger(t *testing.T) (*Ledger, *token.Token) {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	st := state.New(db)
	tok := token.New(solidity.NewContext(evermark.Address{0x01}, st, nil))
	ledger := New(solidity.NewContext(evermark.Address{0x03}, st, nil), tok, evermark.UnbondPeriod)
	require.NoError(t, tok.Mint(alice, big.NewInt(1000)))
	return ledger, tok
}

func TestWrap(t *testing.T) {
	ledger, tok := newTestLedger(t)

	require.NoError(t, ledger.Wrap(alice, big.NewInt(600)))

	power, err := ledger.AvailablePower(alice)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(600), power)

	total, err := ledger.TotalStaked()
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(600), total)

	bal, err := tok.BalanceOf(alice)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(400), bal)

	// wrapping beyond the token balance reverts inside the token
	err = ledger.Wrap(alice, big.NewInt(500))
	assert.True(t, reverts.IsRevertErr(err))
}

func TestReserveRelease(t *testing.T) {
	ledger, _ := newTestLedger(t)
	require.NoError(t, ledger.Wrap(alice, big.NewInt(600)))

	require.NoError(t, ledger.Reserve(alice, big.NewInt(400)))

	avail, err := ledger.AvailablePower(alice)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(200), avail)

	delegated, err := ledger.DelegatedPower(alice)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(400), delegated)

	err = ledger.Reserve(alice, big.NewInt(201))
	kind, ok := reverts.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, reverts.State, kind)

	require.NoError(t, ledger.Release(alice, big.NewInt(400)))
	avail, err = ledger.AvailablePower(alice)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(600), avail)

	err = ledger.Release(alice, big.NewInt(1))
	assert.True(t, reverts.IsRevertErr(err))
}

func TestUnwrapLifecycle(t *testing.T) {
	ledger, tok := newTestLedger(t)
	require.NoError(t, ledger.Wrap(alice, big.NewInt(600)))
	require.NoError(t, ledger.Reserve(alice, big.NewInt(500)))

	// delegated power blocks unwrap beyond the undelegated balance
	err := ledger.RequestUnwrap(alice, big.NewInt(101), 1000)
	assert.True(t, reverts.IsRevertErr(err))

	require.NoError(t, ledger.RequestUnwrap(alice, big.NewInt(100), 1000))

	// unbonding power is no longer available
	avail, err := ledger.AvailablePower(alice)
	require.NoError(t, err)
	assert.Zero(t, avail.Sign())

	// too early
	_, err = ledger.CompleteUnwrap(alice, 1000+evermark.UnbondPeriod-1)
	kind, ok := reverts.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, reverts.State, kind)

	amount, err := ledger.CompleteUnwrap(alice, 1000+evermark.UnbondPeriod)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(100), amount)

	bal, err := tok.BalanceOf(alice)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(500), bal)

	total, err := ledger.TotalStaked()
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(500), total)

	// nothing left to unwrap
	_, err = ledger.CompleteUnwrap(alice, 1000+2*evermark.UnbondPeriod)
	assert.True(t, reverts.IsRevertErr(err))
}

func TestRequestRestartsClock(t *testing.T) {
	ledger, _ := newTestLedger(t)
	require.NoError(t, ledger.Wrap(alice, big.NewInt(600)))

	require.NoError(t, ledger.RequestUnwrap(alice, big.NewInt(100), 1000))
	require.NoError(t, ledger.RequestUnwrap(alice, big.NewInt(100), 2000))

	// first request alone has matured, but the clock restarted at 2000
	_, err := ledger.CompleteUnwrap(alice, 1000+evermark.UnbondPeriod)
	assert.True(t, reverts.IsRevertErr(err))

	amount, err := ledger.CompleteUnwrap(alice, 2000+evermark.UnbondPeriod)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(200), amount)
}
