// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package leaderboard implements the per-cycle candidate ranking. The default
// lifecycle is batch: tallies accumulate unsorted in the voting engine and
// the board is built once when the cycle finalizes. An incremental path keeps
// a live board for the open cycle via swap-based bubbling; the batch build at
// finalize time stays authoritative either way.
package leaderboard

import (
	"math/big"
	"sort"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/ipfsnut/evermark-contracts/builtin/reverts"
	"github.com/ipfsnut/evermark-contracts/builtin/solidity"
	"github.com/ipfsnut/evermark-contracts/evermark"
	"github.com/ipfsnut/evermark-contracts/log"
	"github.com/ipfsnut/evermark-contracts/metrics"
)

const creatorCacheSize = 1024

var (
	logger = log.WithContext("pkg", "leaderboard")

	metricLookupFailures = metrics.LazyLoadCounter("creator_lookup_failures_total")

	slotBoards      = evermark.BytesToBytes32([]byte("boards"))
	slotEntries     = evermark.BytesToBytes32([]byte("entries"))
	slotPositions   = evermark.BytesToBytes32([]byte("positions"))
	slotLastUpdated = evermark.BytesToBytes32([]byte("last-updated"))
)

// TallySource is the slice of the voting engine the ranker reads.
type TallySource interface {
	ActiveCandidates(cycleID uint64) ([]uint64, error)
	CandidateVotes(cycleID, candidateID uint64) (*big.Int, error)
	CycleFinalized(cycleID uint64) (bool, error)
}

// CreatorResolver resolves a candidate to its creator address.
type CreatorResolver interface {
	CreatorOf(candidateID uint64) (evermark.Address, error)
}

// Ranker implements native methods of the `LeaderboardRanker` contract.
type Ranker struct {
	tallies  TallySource
	creators CreatorResolver

	boards      *solidity.Mapping[mapKey, *board]
	entries     *solidity.Mapping[mapKey, *Entry]  // (cycle, position) -> entry
	positions   *solidity.Mapping[mapKey, uint64]  // (cycle, candidate) -> position + 1
	lastUpdated *solidity.Mapping[mapKey, uint64]  // (cycle, candidate) -> block

	creatorCache *lru.Cache

	maxSize     uint64
	maxPageSize uint64
	maxBatch    int
}

// New create a new instance.
func New(context *solidity.Context, tallies TallySource, creators CreatorResolver, maxSize, maxPageSize uint64, maxBatch int) *Ranker {
	cache, _ := lru.New(creatorCacheSize)
	return &Ranker{
		tallies:      tallies,
		creators:     creators,
		boards:       solidity.NewMapping[mapKey, *board](context, slotBoards),
		entries:      solidity.NewMapping[mapKey, *Entry](context, slotEntries),
		positions:    solidity.NewMapping[mapKey, uint64](context, slotPositions),
		lastUpdated:  solidity.NewMapping[mapKey, uint64](context, slotLastUpdated),
		creatorCache: cache,
		maxSize:      maxSize,
		maxPageSize:  maxPageSize,
		maxBatch:     maxBatch,
	}
}

func (r *Ranker) getBoard(cycleID uint64) (*board, error) {
	b, err := r.boards.Get(boardKey(cycleID))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get board")
	}
	return b, nil
}

// resolveCreator looks up the candidate's creator through an LRU cache. A
// failed lookup is reported, never propagated; callers skip the candidate.
func (r *Ranker) resolveCreator(candidateID uint64) (evermark.Address, bool) {
	if cached, ok := r.creatorCache.Get(candidateID); ok {
		return cached.(evermark.Address), true
	}
	creator, err := r.creators.CreatorOf(candidateID)
	if err != nil {
		metricLookupFailures().Add(1)
		logger.Warn("creator lookup failed", "candidate", candidateID, "error", err)
		return evermark.Address{}, false
	}
	r.creatorCache.Add(candidateID, creator)
	return creator, true
}

// Finalize builds the immutable board of a finalized voting cycle. Candidates
// whose creator no longer resolves are skipped, never aborting the build.
func (r *Ranker) Finalize(cycleID uint64) error {
	b, err := r.getBoard(cycleID)
	if err != nil {
		return err
	}
	if b.Finalized {
		return reverts.Newf(reverts.State, "leaderboard: cycle %d already finalized", cycleID)
	}
	done, err := r.tallies.CycleFinalized(cycleID)
	if err != nil {
		return err
	}
	if !done {
		return reverts.Newf(reverts.State, "leaderboard: voting cycle %d still open", cycleID)
	}

	candidates, err := r.tallies.ActiveCandidates(cycleID)
	if err != nil {
		return err
	}

	ranked := make([]*Entry, 0, len(candidates))
	for _, id := range candidates {
		votes, err := r.tallies.CandidateVotes(cycleID, id)
		if err != nil {
			return err
		}
		creator, ok := r.resolveCreator(id)
		if !ok {
			continue
		}
		ranked = append(ranked, &Entry{CandidateID: id, Votes: votes, Creator: creator})
	}

	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].ranksBefore(ranked[j])
	})
	if uint64(len(ranked)) > r.maxSize {
		ranked = ranked[:r.maxSize]
	}

	// Clear the live-phase board first so candidates truncated or skipped by
	// the rebuild don't keep a stale rank in the position index.
	for pos := uint64(0); pos < b.Size; pos++ {
		live, err := r.entries.Get(slotKey(cycleID, pos))
		if err != nil {
			return err
		}
		if err := r.positions.Delete(candidateKey(cycleID, live.CandidateID)); err != nil {
			return err
		}
		if err := r.entries.Delete(slotKey(cycleID, pos)); err != nil {
			return err
		}
	}

	for i, entry := range ranked {
		if err := r.setEntry(cycleID, uint64(i), entry); err != nil {
			return err
		}
	}
	b.Size = uint64(len(ranked))
	b.Finalized = true
	if err := r.boards.Set(boardKey(cycleID), b, true); err != nil {
		return err
	}
	logger.Info("leaderboard finalized", "cycle", cycleID, "entries", b.Size)
	return nil
}

func (r *Ranker) setEntry(cycleID, pos uint64, entry *Entry) error {
	if err := r.entries.Set(slotKey(cycleID, pos), entry, false); err != nil {
		return err
	}
	return r.positions.Set(candidateKey(cycleID, entry.CandidateID), pos+1, false)
}

// Update refreshes one candidate's live position on the open cycle's board.
// The board bubbles the entry up or down to its sorted slot; at capacity the
// lowest entry is evicted when the new tally outranks it.
func (r *Ranker) Update(cycleID, candidateID, blockNum uint64) error {
	b, err := r.getBoard(cycleID)
	if err != nil {
		return err
	}
	if b.Finalized {
		return reverts.Newf(reverts.State, "leaderboard: cycle %d already finalized", cycleID)
	}

	votes, err := r.tallies.CandidateVotes(cycleID, candidateID)
	if err != nil {
		return err
	}
	creator, _ := r.resolveCreator(candidateID) // zero address when unresolvable
	entry := &Entry{CandidateID: candidateID, Votes: votes, Creator: creator}

	pos, err := r.positions.Get(candidateKey(cycleID, candidateID))
	if err != nil {
		return err
	}

	switch {
	case pos > 0:
		// already on the board, refresh in place then re-sort locally
		if err := r.entries.Set(slotKey(cycleID, pos-1), entry, false); err != nil {
			return err
		}
		if err := r.bubbleUp(cycleID, pos-1); err != nil {
			return err
		}
		if err := r.bubbleDown(cycleID, b.Size, pos-1); err != nil {
			return err
		}
	case b.Size < r.maxSize:
		if err := r.setEntry(cycleID, b.Size, entry); err != nil {
			return err
		}
		b.Size++
		if err := r.boards.Set(boardKey(cycleID), b, false); err != nil {
			return err
		}
		if err := r.bubbleUp(cycleID, b.Size-1); err != nil {
			return err
		}
	default:
		last, err := r.entries.Get(slotKey(cycleID, b.Size-1))
		if err != nil {
			return err
		}
		if !entry.ranksBefore(last.normalize()) {
			break // does not outrank the board's tail
		}
		if err := r.positions.Delete(candidateKey(cycleID, last.CandidateID)); err != nil {
			return err
		}
		if err := r.setEntry(cycleID, b.Size-1, entry); err != nil {
			return err
		}
		if err := r.bubbleUp(cycleID, b.Size-1); err != nil {
			return err
		}
	}

	return r.lastUpdated.Set(candidateKey(cycleID, candidateID), blockNum, false)
}

func (r *Ranker) swap(cycleID, i, j uint64, a, b *Entry) error {
	if err := r.setEntry(cycleID, i, b); err != nil {
		return err
	}
	return r.setEntry(cycleID, j, a)
}

func (r *Ranker) bubbleUp(cycleID, pos uint64) error {
	for pos > 0 {
		cur, err := r.entries.Get(slotKey(cycleID, pos))
		if err != nil {
			return err
		}
		above, err := r.entries.Get(slotKey(cycleID, pos-1))
		if err != nil {
			return err
		}
		if !cur.normalize().ranksBefore(above.normalize()) {
			return nil
		}
		if err := r.swap(cycleID, pos-1, pos, above, cur); err != nil {
			return err
		}
		pos--
	}
	return nil
}

func (r *Ranker) bubbleDown(cycleID, size, pos uint64) error {
	for pos+1 < size {
		cur, err := r.entries.Get(slotKey(cycleID, pos))
		if err != nil {
			return err
		}
		below, err := r.entries.Get(slotKey(cycleID, pos+1))
		if err != nil {
			return err
		}
		if !below.normalize().ranksBefore(cur.normalize()) {
			return nil
		}
		if err := r.swap(cycleID, pos, pos+1, cur, below); err != nil {
			return err
		}
		pos++
	}
	return nil
}

// BatchUpdate applies several live updates, skipping candidates already
// refreshed in the same block since their tally cannot have changed.
func (r *Ranker) BatchUpdate(cycleID uint64, candidateIDs []uint64, blockNum uint64) error {
	if len(candidateIDs) == 0 {
		return reverts.New(reverts.Validation, "leaderboard: empty candidate batch")
	}
	if len(candidateIDs) > r.maxBatch {
		return reverts.Newf(reverts.Capacity, "leaderboard: batch size %d exceeds %d", len(candidateIDs), r.maxBatch)
	}
	for _, id := range candidateIDs {
		updated, err := r.lastUpdated.Get(candidateKey(cycleID, id))
		if err != nil {
			return err
		}
		if updated == blockNum && updated != 0 {
			continue
		}
		if err := r.Update(cycleID, id, blockNum); err != nil {
			return err
		}
	}
	return nil
}

// GetPage returns entries [offset, offset+limit) of a cycle's board.
func (r *Ranker) GetPage(cycleID, offset, limit uint64) ([]*Entry, error) {
	if limit == 0 {
		return nil, reverts.New(reverts.Validation, "leaderboard: limit must be positive")
	}
	if limit > r.maxPageSize {
		return nil, reverts.Newf(reverts.Capacity, "leaderboard: page size %d exceeds %d", limit, r.maxPageSize)
	}
	b, err := r.getBoard(cycleID)
	if err != nil {
		return nil, err
	}
	if offset >= b.Size {
		return []*Entry{}, nil
	}
	end := min(offset+limit, b.Size)
	page := make([]*Entry, 0, end-offset)
	for pos := offset; pos < end; pos++ {
		entry, err := r.entries.Get(slotKey(cycleID, pos))
		if err != nil {
			return nil, err
		}
		page = append(page, entry.normalize())
	}
	return page, nil
}

// GetTopN returns the board's first n entries.
func (r *Ranker) GetTopN(cycleID, n uint64) ([]*Entry, error) {
	return r.GetPage(cycleID, 0, n)
}

// GetRank returns a candidate's 1-based rank, 0 when not on the board.
func (r *Ranker) GetRank(cycleID, candidateID uint64) (uint64, error) {
	return r.positions.Get(candidateKey(cycleID, candidateID))
}

// Size returns the number of entries on a cycle's board.
func (r *Ranker) Size(cycleID uint64) (uint64, error) {
	b, err := r.getBoard(cycleID)
	if err != nil {
		return 0, err
	}
	return b.Size, nil
}

// Finalized reports whether a cycle's board is immutable.
func (r *Ranker) Finalized(cycleID uint64) (bool, error) {
	b, err := r.getBoard(cycleID)
	if err != nil {
		return false, err
	}
	return b.Finalized, nil
}
