// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package runtime

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipfsnut/evermark-contracts/builtin"
	"github.com/ipfsnut/evermark-contracts/builtin/reverts"
	"github.com/ipfsnut/evermark-contracts/evermark"
	"github.com/ipfsnut/evermark-contracts/logdb"
	"github.com/ipfsnut/evermark-contracts/lvldb"
	"github.com/ipfsnut/evermark-contracts/state"
)

var (
	executor = evermark.Address{0xee}
	alice    = evermark.Address{0xa1}
	bob      = evermark.Address{0xb0}
	creator  = evermark.Address{0xc1}
)

func newRuntime(t *testing.T) (*Runtime, *logdb.LogDB) {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	events, err := logdb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { events.Close() })

	rt := New(state.New(db), builtin.DefaultConfig(), events)
	require.NoError(t, rt.Genesis(executor))
	return rt, events
}

func (r *Runtime) fundUser(t *testing.T, user evermark.Address, amount int64) {
	_, err := r.transact("test_mint", func(c *builtin.Contracts) error {
		return c.Token.Mint(user, big.NewInt(amount))
	})
	require.NoError(t, err)
}

func TestGenesis(t *testing.T) {
	rt, _ := newRuntime(t)
	c := rt.Contracts()

	got, err := c.Params.Executor()
	require.NoError(t, err)
	assert.Equal(t, executor, got)

	balance, err := c.Token.BalanceOf(executor)
	require.NoError(t, err)
	assert.Equal(t, evermark.InitialTokenSupply, balance)

	duration, err := c.Params.Get(evermark.KeyCycleDuration)
	require.NoError(t, err)
	assert.Equal(t, evermark.CycleDuration, duration.Uint64())
}

func TestTransactRevertsAllMutations(t *testing.T) {
	rt, _ := newRuntime(t)

	_, err := rt.transact("failing", func(c *builtin.Contracts) error {
		if err := c.Token.Mint(alice, big.NewInt(500)); err != nil {
			return err
		}
		return reverts.New(reverts.State, "boom")
	})
	require.Error(t, err)

	balance, err := rt.Contracts().Token.BalanceOf(alice)
	require.NoError(t, err)
	assert.Zero(t, balance.Sign(), "mint inside a failed operation must not survive")
}

func TestTransactCommits(t *testing.T) {
	rt, _ := newRuntime(t)
	rt.fundUser(t, alice, 500)

	balance, err := rt.Contracts().Token.BalanceOf(alice)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(500), balance)
}

func TestExecutorOnlyOps(t *testing.T) {
	rt, _ := newRuntime(t)

	_, _, err := rt.StartNewCycle(alice, 100)
	require.True(t, reverts.IsRevertErr(err))
	kind, ok := reverts.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, reverts.State, kind)

	_, _, err = rt.Fund(alice, big.NewInt(1000), 100)
	require.True(t, reverts.IsRevertErr(err))

	_, err = rt.FinalizeWeek(alice, 1, 1, 100)
	require.True(t, reverts.IsRevertErr(err))

	_, err = rt.BatchCompute(alice, 1, []evermark.Address{alice}, 100)
	require.True(t, reverts.IsRevertErr(err))

	cycleID, _, err := rt.StartNewCycle(executor, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cycleID)
}

func TestDelegateAppendsEvent(t *testing.T) {
	rt, events := newRuntime(t)
	rt.fundUser(t, alice, 1000)

	_, _, err := rt.MintEvermark(creator, evermark.BytesToBytes32([]byte("ipfs://meta")), 50)
	require.NoError(t, err)
	_, err = rt.Wrap(alice, big.NewInt(1000), 60)
	require.NoError(t, err)
	_, err = rt.Delegate(alice, 1, big.NewInt(400), 100)
	require.NoError(t, err)

	got, err := events.FilterEvents(context.Background(), &logdb.EventFilter{Kind: logdb.KindDelegate})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, alice, got[0].User)
	assert.Equal(t, uint64(1), got[0].Candidate)
	assert.Equal(t, uint64(1), got[0].Cycle)
	assert.Equal(t, big.NewInt(400), got[0].Amount)

	got, err = events.FilterEvents(context.Background(), &logdb.EventFilter{User: &alice})
	require.NoError(t, err)
	assert.Len(t, got, 2) // wrap + delegate
}

func TestFailedOpLeavesNoOpEvent(t *testing.T) {
	rt, events := newRuntime(t)

	_, err := rt.Wrap(alice, big.NewInt(1000), 60) // no balance
	require.Error(t, err)

	got, err := events.FilterEvents(context.Background(), &logdb.EventFilter{Kind: logdb.KindStakeWrapped})
	require.NoError(t, err)
	assert.Empty(t, got)

	failed, err := events.FilterEvents(context.Background(), &logdb.EventFilter{Kind: logdb.KindOperationFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Detail, "wrap")
}

func TestLiveRanking(t *testing.T) {
	rt, _ := newRuntime(t)
	rt.EnableLiveRanking()
	rt.fundUser(t, alice, 1000)
	rt.fundUser(t, bob, 1000)

	_, _, err := rt.MintEvermark(creator, evermark.Bytes32{0x01}, 50)
	require.NoError(t, err)
	_, _, err = rt.MintEvermark(creator, evermark.Bytes32{0x02}, 50)
	require.NoError(t, err)
	_, err = rt.Wrap(alice, big.NewInt(1000), 60)
	require.NoError(t, err)
	_, err = rt.Wrap(bob, big.NewInt(1000), 60)
	require.NoError(t, err)

	_, err = rt.Delegate(alice, 1, big.NewInt(300), 100)
	require.NoError(t, err)
	_, err = rt.Delegate(bob, 2, big.NewInt(700), 100)
	require.NoError(t, err)

	c := rt.Contracts()
	top, err := c.Leaderboard.GetTopN(1, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, uint64(2), top[0].CandidateID)
	assert.Equal(t, big.NewInt(700), top[0].Votes)
	assert.Equal(t, uint64(1), top[1].CandidateID)
}

func TestLiveRankingFailureDoesNotBlock(t *testing.T) {
	rt, _ := newRuntime(t)
	rt.EnableLiveRanking()

	// an empty candidate batch makes the ranker revert; the nested
	// checkpoint swallows the failure and the operation still commits
	_, err := rt.transact("test_refresh", func(c *builtin.Contracts) error {
		rt.refreshRanking(1, nil, 100)
		return nil
	})
	require.NoError(t, err)
}

func TestLiveRankingGasStaysOffBudget(t *testing.T) {
	rt, _ := newRuntime(t)
	rt.fundUser(t, alice, 1000)

	_, _, err := rt.MintEvermark(creator, evermark.Bytes32{0x01}, 50)
	require.NoError(t, err)
	_, err = rt.Wrap(alice, big.NewInt(1000), 60)
	require.NoError(t, err)

	// size the budget off a plain delegate
	receipt, err := rt.Delegate(alice, 1, big.NewInt(300), 100)
	require.NoError(t, err)
	budget := receipt.GasUsed

	// the same delegate must fit that budget with live ranking on
	rt.EnableLiveRanking()
	rt.SetGasBudget(budget)
	receipt, err = rt.Delegate(alice, 1, big.NewInt(300), 110)
	require.NoError(t, err)
	assert.LessOrEqual(t, receipt.GasUsed, budget)

	c := rt.Contracts()
	rank, err := c.Leaderboard.GetRank(1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rank)
}

func TestFullLifecycle(t *testing.T) {
	rt, events := newRuntime(t)
	cfg := builtin.DefaultConfig()

	rt.fundUser(t, alice, 1_000_000)
	rt.fundUser(t, bob, 1_000_000)

	_, _, err := rt.MintEvermark(creator, evermark.Bytes32{0x01}, 10)
	require.NoError(t, err)
	_, err = rt.Wrap(alice, big.NewInt(400_000), 20)
	require.NoError(t, err)
	_, err = rt.Wrap(bob, big.NewInt(400_000), 20)
	require.NoError(t, err)

	_, err = rt.Delegate(alice, 1, big.NewInt(300_000), 100)
	require.NoError(t, err)
	_, err = rt.Delegate(bob, 1, big.NewInt(100_000), 100)
	require.NoError(t, err)

	weekID, _, err := rt.Fund(executor, big.NewInt(1_000_000), 100)
	require.NoError(t, err)

	// past both the cycle and week ends
	later := 100 + cfg.CycleDuration + 1
	cycleID, _, err := rt.CheckAndAdvance(later)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), cycleID)

	_, err = rt.FinalizeLeaderboard(1, later)
	require.NoError(t, err)

	_, err = rt.FinalizeWeek(executor, weekID, 1, later)
	require.NoError(t, err)

	_, err = rt.BatchCompute(executor, weekID, []evermark.Address{alice, bob}, later)
	require.NoError(t, err)

	// base pool 300,000 split by stake: 150,000 each; variable pool 300,000
	// scaled by delegated/totalStaked: alice 300k/800k, bob 100k/800k
	paid, _, err := rt.Claim(alice, later+10)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(262_500), paid)

	paid, _, err = rt.Claim(bob, later+10)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(187_500), paid)

	// creator pool 400,000 went to the sole ranked creator
	paid, _, err = rt.Claim(creator, later+10)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(400_000), paid)

	// second claim finds nothing
	_, _, err = rt.Claim(alice, later+20)
	require.True(t, reverts.IsRevertErr(err))

	claims, err := events.FilterEvents(context.Background(), &logdb.EventFilter{Kind: logdb.KindClaim})
	require.NoError(t, err)
	assert.Len(t, claims, 3)
}

func TestGasBudget(t *testing.T) {
	rt, _ := newRuntime(t)
	rt.fundUser(t, alice, 1000)

	rt.SetGasBudget(100) // below a single storage write
	_, err := rt.Wrap(alice, big.NewInt(1000), 60)
	require.True(t, reverts.IsRevertErr(err))
	kind, ok := reverts.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, reverts.Capacity, kind)

	rt.SetGasBudget(0)
	receipt, err := rt.Wrap(alice, big.NewInt(1000), 60)
	require.NoError(t, err)
	assert.NotZero(t, receipt.GasUsed)
}
