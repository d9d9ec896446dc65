// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package voting

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipfsnut/evermark-contracts/builtin/registry"
	"github.com/ipfsnut/evermark-contracts/builtin/reverts"
	"github.com/ipfsnut/evermark-contracts/builtin/solidity"
	"github.com/ipfsnut/evermark-contracts/builtin/stakeledger"
	"github.com/ipfsnut/evermark-contracts/builtin/token"
	"github.com/ipfsnut/evermark-contracts/evermark"
	"github.com/ipfsnut/evermark-contracts/lvldb"
	"github.com/ipfsnut/evermark-contracts/state"
)

const (
	cycleDuration = uint64(7 * 24 * 3600)
	maxActive     = uint64(1000)
	maxBatch      = 20
)

var (
	alice   = evermark.Address{0xa1}
	bob     = evermark.Address{0xb0}
	creator = evermark.Address{0xc1}
)

type fixture struct {
	engine   *Engine
	registry *registry.Registry
	ledger   *stakeledger.Ledger
	token    *token.Token
}

func newFixture(t *testing.T, active uint64) *fixture {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	st := state.New(db)

	tok := token.New(solidity.NewContext(evermark.Address{0x01}, st, nil))
	reg := registry.New(solidity.NewContext(evermark.Address{0x02}, st, nil))
	ledger := stakeledger.New(solidity.NewContext(evermark.Address{0x03}, st, nil), tok, evermark.UnbondPeriod)
	engine := New(solidity.NewContext(evermark.Address{0x04}, st, nil), reg, ledger, cycleDuration, active, maxBatch)

	for _, user := range []evermark.Address{alice, bob} {
		require.NoError(t, tok.Mint(user, big.NewInt(1000)))
		require.NoError(t, ledger.Wrap(user, big.NewInt(1000)))
	}
	return &fixture{engine: engine, registry: reg, ledger: ledger, token: tok}
}

// mint n candidates owned by creator, returning their ids
func (f *fixture) mint(t *testing.T, n int) []uint64 {
	ids := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		id, err := f.registry.Mint(creator, evermark.Bytes32{}, 0)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func TestDelegate(t *testing.T) {
	f := newFixture(t, maxActive)
	ids := f.mint(t, 2)

	cycleID, err := f.engine.Delegate(alice, ids[0], big.NewInt(300), 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cycleID)

	cv, err := f.engine.CandidateVotes(cycleID, ids[0])
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(300), cv)

	uv, err := f.engine.UserVotes(cycleID, alice)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(300), uv)

	ucv, err := f.engine.UserCandidateVotes(cycleID, alice, ids[0])
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(300), ucv)

	cycle, err := f.engine.GetCycle(cycleID)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(300), cycle.TotalVotes)
	assert.Equal(t, uint64(1), cycle.DelegationEvents)
	assert.Equal(t, uint64(1), cycle.ActiveCount)

	// delegated power is reserved on the ledger
	avail, err := f.ledger.AvailablePower(alice)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(700), avail)

	active, err := f.engine.ActiveCandidates(cycleID)
	require.NoError(t, err)
	assert.Equal(t, []uint64{ids[0]}, active)
}

func TestDelegateValidation(t *testing.T) {
	f := newFixture(t, maxActive)
	ids := f.mint(t, 1)

	// non-positive amount
	_, err := f.engine.Delegate(alice, ids[0], big.NewInt(0), 100)
	kind, ok := reverts.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, reverts.Validation, kind)

	// nonexistent candidate
	_, err = f.engine.Delegate(alice, 99, big.NewInt(10), 100)
	kind, ok = reverts.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, reverts.Validation, kind)

	// self-vote
	require.NoError(t, f.token.Mint(creator, big.NewInt(100)))
	require.NoError(t, f.ledger.Wrap(creator, big.NewInt(100)))
	_, err = f.engine.Delegate(creator, ids[0], big.NewInt(10), 100)
	kind, ok = reverts.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, reverts.Validation, kind)

	// more than available power
	_, err = f.engine.Delegate(alice, ids[0], big.NewInt(1001), 100)
	kind, ok = reverts.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, reverts.State, kind)
}

func TestUndelegate(t *testing.T) {
	f := newFixture(t, maxActive)
	ids := f.mint(t, 1)

	_, err := f.engine.Delegate(alice, ids[0], big.NewInt(300), 100)
	require.NoError(t, err)

	cycleID, err := f.engine.Undelegate(alice, ids[0], big.NewInt(300), 200)
	require.NoError(t, err)

	cv, err := f.engine.CandidateVotes(cycleID, ids[0])
	require.NoError(t, err)
	assert.Zero(t, cv.Sign())

	cycle, err := f.engine.GetCycle(cycleID)
	require.NoError(t, err)
	assert.Zero(t, cycle.TotalVotes.Sign())

	avail, err := f.ledger.AvailablePower(alice)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1000), avail)

	// a zero-tally candidate stays in the active set
	active, err := f.engine.ActiveCandidates(cycleID)
	require.NoError(t, err)
	assert.Equal(t, []uint64{ids[0]}, active)

	// undelegating votes that were never cast fails, not underflows
	_, err = f.engine.Undelegate(bob, ids[0], big.NewInt(1), 200)
	kind, ok := reverts.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, reverts.State, kind)
}

func TestLazyCycleRoll(t *testing.T) {
	f := newFixture(t, maxActive)
	ids := f.mint(t, 1)

	c1, err := f.engine.Delegate(alice, ids[0], big.NewInt(100), 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), c1)

	// a late vote lands in the newly opened cycle, not the expired one
	c2, err := f.engine.Delegate(alice, ids[0], big.NewInt(100), 100+cycleDuration)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), c2)

	old, err := f.engine.GetCycle(1)
	require.NoError(t, err)
	assert.True(t, old.Finalized)
	assert.Equal(t, big.NewInt(100), old.TotalVotes)

	cur, err := f.engine.GetCycle(2)
	require.NoError(t, err)
	assert.False(t, cur.Finalized)
	assert.Equal(t, big.NewInt(100), cur.TotalVotes)
}

func TestCheckAndAdvanceIdempotent(t *testing.T) {
	f := newFixture(t, maxActive)

	// genesis roll
	id, rolled, err := f.engine.CheckAndAdvance(100)
	require.NoError(t, err)
	assert.True(t, rolled)
	assert.Equal(t, uint64(1), id)

	// before the boundary: no-op
	id, rolled, err = f.engine.CheckAndAdvance(200)
	require.NoError(t, err)
	assert.False(t, rolled)
	assert.Equal(t, uint64(1), id)

	// past the boundary: exactly one advance
	id, rolled, err = f.engine.CheckAndAdvance(100 + cycleDuration)
	require.NoError(t, err)
	assert.True(t, rolled)
	assert.Equal(t, uint64(2), id)

	id, rolled, err = f.engine.CheckAndAdvance(100 + cycleDuration)
	require.NoError(t, err)
	assert.False(t, rolled)
	assert.Equal(t, uint64(2), id)
}

func TestStartNewCycle(t *testing.T) {
	f := newFixture(t, maxActive)

	id, err := f.engine.StartNewCycle(100)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	// force roll before the clock boundary
	id, err = f.engine.StartNewCycle(200)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), id)

	old, err := f.engine.GetCycle(1)
	require.NoError(t, err)
	assert.True(t, old.Finalized)
}

func TestDelegateBatch(t *testing.T) {
	f := newFixture(t, maxActive)
	ids := f.mint(t, 3)

	cycleID, err := f.engine.DelegateBatch(alice,
		[]uint64{ids[0], ids[1], ids[2]},
		[]*big.Int{big.NewInt(100), big.NewInt(200), big.NewInt(300)}, 100)
	require.NoError(t, err)

	cycle, err := f.engine.GetCycle(cycleID)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(600), cycle.TotalVotes)
	assert.Equal(t, uint64(3), cycle.ActiveCount)

	avail, err := f.ledger.AvailablePower(alice)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(400), avail)
}

func TestDelegateBatchBounds(t *testing.T) {
	f := newFixture(t, maxActive)
	ids := f.mint(t, 21)

	amounts := make([]*big.Int, 21)
	for i := range amounts {
		amounts[i] = big.NewInt(1)
	}

	// strictly more than the cap fails before any state mutates
	_, err := f.engine.DelegateBatch(alice, ids, amounts, 100)
	kind, ok := reverts.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, reverts.Capacity, kind)

	avail, err := f.ledger.AvailablePower(alice)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1000), avail)

	cycleID, err := f.engine.CurrentCycleID()
	require.NoError(t, err)
	assert.Zero(t, cycleID)

	// exactly the cap passes
	_, err = f.engine.DelegateBatch(alice, ids[:20], amounts[:20], 100)
	require.NoError(t, err)

	// mismatched lengths
	_, err = f.engine.DelegateBatch(alice, ids[:2], amounts[:3], 100)
	assert.True(t, reverts.IsRevertErr(err))

	// empty batch
	_, err = f.engine.DelegateBatch(alice, nil, nil, 100)
	assert.True(t, reverts.IsRevertErr(err))
}

func TestDelegateBatchInsufficientSum(t *testing.T) {
	f := newFixture(t, maxActive)
	ids := f.mint(t, 2)

	// each amount fits but the sum does not; nothing mutates
	_, err := f.engine.DelegateBatch(alice,
		[]uint64{ids[0], ids[1]},
		[]*big.Int{big.NewInt(600), big.NewInt(600)}, 100)
	kind, ok := reverts.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, reverts.State, kind)

	cycleID, err := f.engine.CurrentCycleID()
	require.NoError(t, err)
	cv, err := f.engine.CandidateVotes(cycleID, ids[0])
	require.NoError(t, err)
	assert.Zero(t, cv.Sign())
}

func TestActiveCandidateCap(t *testing.T) {
	f := newFixture(t, 2)
	ids := f.mint(t, 3)

	_, err := f.engine.Delegate(alice, ids[0], big.NewInt(10), 100)
	require.NoError(t, err)
	_, err = f.engine.Delegate(alice, ids[1], big.NewInt(10), 100)
	require.NoError(t, err)

	// third new candidate crosses the cap
	_, err = f.engine.Delegate(alice, ids[2], big.NewInt(10), 100)
	kind, ok := reverts.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, reverts.Capacity, kind)

	// voting again for an already-active candidate still works
	_, err = f.engine.Delegate(bob, ids[0], big.NewInt(10), 100)
	require.NoError(t, err)

	// the cap resets with the next cycle
	_, err = f.engine.Delegate(alice, ids[2], big.NewInt(10), 100+cycleDuration)
	require.NoError(t, err)
}

func TestExpiredDelegationReleased(t *testing.T) {
	f := newFixture(t, maxActive)
	ids := f.mint(t, 1)

	_, err := f.engine.Delegate(alice, ids[0], big.NewInt(900), 100)
	require.NoError(t, err)

	avail, err := f.ledger.AvailablePower(alice)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(100), avail)

	// the reservation from the expired cycle is released on the next action,
	// so the full power is usable again
	_, err = f.engine.Delegate(alice, ids[0], big.NewInt(900), 100+cycleDuration)
	require.NoError(t, err)

	delegated, err := f.ledger.DelegatedPower(alice)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(900), delegated)
}

func TestConservation(t *testing.T) {
	f := newFixture(t, maxActive)
	ids := f.mint(t, 3)

	_, err := f.engine.Delegate(alice, ids[0], big.NewInt(100), 100)
	require.NoError(t, err)
	_, err = f.engine.Delegate(alice, ids[1], big.NewInt(250), 100)
	require.NoError(t, err)
	_, err = f.engine.Delegate(bob, ids[1], big.NewInt(400), 100)
	require.NoError(t, err)
	_, err = f.engine.Undelegate(alice, ids[1], big.NewInt(50), 100)
	require.NoError(t, err)

	cycleID, err := f.engine.CurrentCycleID()
	require.NoError(t, err)
	cycle, err := f.engine.GetCycle(cycleID)
	require.NoError(t, err)

	// sum of per-candidate votes equals the cycle total
	sum := new(big.Int)
	active, err := f.engine.ActiveCandidates(cycleID)
	require.NoError(t, err)
	for _, id := range active {
		cv, err := f.engine.CandidateVotes(cycleID, id)
		require.NoError(t, err)
		sum.Add(sum, cv)
	}
	assert.Equal(t, cycle.TotalVotes, sum)

	// sum of per-user totals equals the cycle total
	userSum := new(big.Int)
	for _, user := range []evermark.Address{alice, bob} {
		uv, err := f.engine.UserVotes(cycleID, user)
		require.NoError(t, err)
		userSum.Add(userSum, uv)
	}
	assert.Equal(t, cycle.TotalVotes, userSum)
}
