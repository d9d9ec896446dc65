// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package leaderboard

import (
	"math/big"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipfsnut/evermark-contracts/builtin/reverts"
	"github.com/ipfsnut/evermark-contracts/builtin/solidity"
	"github.com/ipfsnut/evermark-contracts/evermark"
	"github.com/ipfsnut/evermark-contracts/lvldb"
	"github.com/ipfsnut/evermark-contracts/state"
)

type fakeTallies struct {
	active    []uint64
	votes     map[uint64]int64
	finalized bool
	reads     int
}

func (f *fakeTallies) ActiveCandidates(uint64) ([]uint64, error) {
	return f.active, nil
}

func (f *fakeTallies) CandidateVotes(_, candidateID uint64) (*big.Int, error) {
	f.reads++
	return big.NewInt(f.votes[candidateID]), nil
}

func (f *fakeTallies) CycleFinalized(uint64) (bool, error) {
	return f.finalized, nil
}

type fakeCreators struct {
	creators map[uint64]evermark.Address
}

func (f *fakeCreators) CreatorOf(candidateID uint64) (evermark.Address, error) {
	creator, ok := f.creators[candidateID]
	if !ok {
		return evermark.Address{}, errors.New("unknown candidate")
	}
	return creator, nil
}

func newTestRanker(t *testing.T, tallies *fakeTallies, creators *fakeCreators, maxSize uint64) *Ranker {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	st := state.New(db)
	return New(solidity.NewContext(evermark.Address{0x05}, st, nil), tallies, creators, maxSize, 50, 20)
}

func creatorFor(id uint64) evermark.Address {
	return evermark.Address{0xc0, byte(id)}
}

func fullCreators(ids ...uint64) *fakeCreators {
	m := make(map[uint64]evermark.Address)
	for _, id := range ids {
		m[id] = creatorFor(id)
	}
	return &fakeCreators{creators: m}
}

func boardIDs(entries []*Entry) []uint64 {
	ids := make([]uint64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.CandidateID)
	}
	return ids
}

func TestFinalizeSortsAndTruncates(t *testing.T) {
	tallies := &fakeTallies{
		active:    []uint64{5, 1, 9, 3},
		votes:     map[uint64]int64{5: 100, 1: 300, 9: 100, 3: 50},
		finalized: true,
	}
	r := newTestRanker(t, tallies, fullCreators(5, 1, 9, 3), 3)

	require.NoError(t, r.Finalize(7))

	top, err := r.GetTopN(7, 10)
	require.NoError(t, err)
	// descending by votes, the 100-vote tie broken by ascending id, size capped at 3
	assert.Equal(t, []uint64{1, 5, 9}, boardIDs(top))
	assert.Equal(t, big.NewInt(300), top[0].Votes)
	assert.Equal(t, creatorFor(1), top[0].Creator)

	rank, err := r.GetRank(7, 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), rank)

	rank, err = r.GetRank(7, 3)
	require.NoError(t, err)
	assert.Zero(t, rank)

	// immutable once finalized
	err = r.Finalize(7)
	kind, ok := reverts.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, reverts.State, kind)

	err = r.Update(7, 1, 1)
	assert.True(t, reverts.IsRevertErr(err))
}

func TestFinalizeDropsLivePhaseRanks(t *testing.T) {
	tallies := &fakeTallies{
		active: []uint64{1, 2, 3},
		votes:  map[uint64]int64{1: 10},
	}
	r := newTestRanker(t, tallies, fullCreators(1, 2, 3), 2)

	// live phase: candidate 1 is the only vote so far and holds the top slot
	require.NoError(t, r.Update(4, 1, 100))
	rank, err := r.GetRank(4, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rank)

	// by cycle end it has been out-voted off the capped board
	tallies.votes = map[uint64]int64{1: 10, 2: 50, 3: 80}
	tallies.finalized = true
	require.NoError(t, r.Finalize(4))

	top, err := r.GetTopN(4, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 2}, boardIDs(top))

	rank, err = r.GetRank(4, 1)
	require.NoError(t, err)
	assert.Zero(t, rank)

	rank, err = r.GetRank(4, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rank)
}

func TestFinalizeRequiresFinalizedCycle(t *testing.T) {
	tallies := &fakeTallies{active: []uint64{1}, votes: map[uint64]int64{1: 10}}
	r := newTestRanker(t, tallies, fullCreators(1), 10)

	err := r.Finalize(1)
	kind, ok := reverts.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, reverts.State, kind)
}

func TestFinalizeSkipsUnresolvableCreators(t *testing.T) {
	tallies := &fakeTallies{
		active:    []uint64{1, 2, 3},
		votes:     map[uint64]int64{1: 30, 2: 20, 3: 10},
		finalized: true,
	}
	// candidate 2 no longer resolves; the build should skip it, not fail
	r := newTestRanker(t, tallies, fullCreators(1, 3), 10)

	require.NoError(t, r.Finalize(1))

	top, err := r.GetTopN(1, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 3}, boardIDs(top))
}

func TestPageBounds(t *testing.T) {
	tallies := &fakeTallies{
		active:    []uint64{1, 2, 3},
		votes:     map[uint64]int64{1: 30, 2: 20, 3: 10},
		finalized: true,
	}
	r := newTestRanker(t, tallies, fullCreators(1, 2, 3), 10)
	require.NoError(t, r.Finalize(1))

	page, err := r.GetPage(1, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 3}, boardIDs(page))

	page, err = r.GetPage(1, 5, 2)
	require.NoError(t, err)
	assert.Empty(t, page)

	_, err = r.GetPage(1, 0, 0)
	assert.True(t, reverts.IsRevertErr(err))

	_, err = r.GetPage(1, 0, 51)
	kind, ok := reverts.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, reverts.Capacity, kind)
}

func TestIncrementalUpdate(t *testing.T) {
	tallies := &fakeTallies{
		active: []uint64{1, 2, 3},
		votes:  map[uint64]int64{1: 10, 2: 20, 3: 30},
	}
	r := newTestRanker(t, tallies, fullCreators(1, 2, 3), 10)

	require.NoError(t, r.Update(1, 1, 100))
	require.NoError(t, r.Update(1, 2, 100))
	require.NoError(t, r.Update(1, 3, 100))

	top, err := r.GetTopN(1, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 2, 1}, boardIDs(top))

	// candidate 1 overtakes, bubbles to the top
	tallies.votes[1] = 50
	require.NoError(t, r.Update(1, 1, 101))

	top, err = r.GetTopN(1, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 3, 2}, boardIDs(top))

	// candidate 1 drops, bubbles back down
	tallies.votes[1] = 5
	require.NoError(t, r.Update(1, 1, 102))

	top, err = r.GetTopN(1, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 2, 1}, boardIDs(top))

	for i, id := range []uint64{3, 2, 1} {
		rank, err := r.GetRank(1, id)
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), rank)
	}
}

func TestIncrementalEviction(t *testing.T) {
	tallies := &fakeTallies{
		votes: map[uint64]int64{1: 10, 2: 20, 3: 5},
	}
	r := newTestRanker(t, tallies, fullCreators(1, 2, 3), 2)

	require.NoError(t, r.Update(1, 1, 100))
	require.NoError(t, r.Update(1, 2, 100))

	// below the tail: no change
	require.NoError(t, r.Update(1, 3, 100))
	top, err := r.GetTopN(1, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 1}, boardIDs(top))

	// now outranks the tail: candidate 1 is evicted
	tallies.votes[3] = 15
	require.NoError(t, r.Update(1, 3, 101))
	top, err = r.GetTopN(1, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 3}, boardIDs(top))

	rank, err := r.GetRank(1, 1)
	require.NoError(t, err)
	assert.Zero(t, rank)
}

func TestBatchUpdateDedup(t *testing.T) {
	tallies := &fakeTallies{
		votes: map[uint64]int64{1: 10, 2: 20},
	}
	r := newTestRanker(t, tallies, fullCreators(1, 2), 10)

	require.NoError(t, r.BatchUpdate(1, []uint64{1, 2, 1, 1}, 100))
	// the duplicate updates in the same block are skipped
	assert.Equal(t, 2, tallies.reads)

	// a later block refreshes again
	require.NoError(t, r.BatchUpdate(1, []uint64{1}, 101))
	assert.Equal(t, 3, tallies.reads)
}

func TestBatchUpdateBounds(t *testing.T) {
	r := newTestRanker(t, &fakeTallies{votes: map[uint64]int64{}}, fullCreators(), 10)

	err := r.BatchUpdate(1, nil, 100)
	assert.True(t, reverts.IsRevertErr(err))

	ids := make([]uint64, 21)
	err = r.BatchUpdate(1, ids, 100)
	kind, ok := reverts.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, reverts.Capacity, kind)
}
