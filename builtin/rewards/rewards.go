// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package rewards implements the reward accountant. Funded EMARK is split
// into weekly staker and creator pools, staker shares are snapshotted per
// user at distribution time, and claims consume cached shares exactly once
// through a per-user week bitmap.
package rewards

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/ipfsnut/evermark-contracts/builtin/leaderboard"
	"github.com/ipfsnut/evermark-contracts/builtin/reverts"
	"github.com/ipfsnut/evermark-contracts/builtin/solidity"
	"github.com/ipfsnut/evermark-contracts/evermark"
	"github.com/ipfsnut/evermark-contracts/log"
	"github.com/ipfsnut/evermark-contracts/metrics"
)

// claim scans are bounded; weeks below the per-user floor are already settled
const maxClaimScan = 256

var (
	logger = log.WithContext("pkg", "rewards")

	metricClaims       = metrics.LazyLoadCounter("claims_total")
	metricDistribution = metrics.LazyLoadCounter("creator_distribution_failures_total")

	slotWeeks          = evermark.BytesToBytes32([]byte("weeks"))
	slotShares         = evermark.BytesToBytes32([]byte("shares"))
	slotClaimBitmap    = evermark.BytesToBytes32([]byte("claim-bitmap"))
	slotPendingCreator = evermark.BytesToBytes32([]byte("pending-creator"))
	slotClaimFloor     = evermark.BytesToBytes32([]byte("claim-floor"))

	currentWeekPos = evermark.Blake2b([]byte("current-week"))
)

// StakeSource is the slice of the stake ledger used to size shares.
type StakeSource interface {
	TotalPower(user evermark.Address) (*big.Int, error)
	DelegatedPower(user evermark.Address) (*big.Int, error)
	TotalStaked() (*big.Int, error)
}

// TokenTransfer moves the reward asset.
type TokenTransfer interface {
	Transfer(from, to evermark.Address, amount *big.Int) error
}

// BoardSource is the slice of the leaderboard the creator split reads.
type BoardSource interface {
	Finalized(cycleID uint64) (bool, error)
	Size(cycleID uint64) (uint64, error)
	GetPage(cycleID, offset, limit uint64) ([]*leaderboard.Entry, error)
}

// Accountant implements native methods of the `RewardAccountant` contract.
type Accountant struct {
	context *solidity.Context
	stakes  StakeSource
	token   TokenTransfer
	board   BoardSource

	weeks          *solidity.Mapping[mapKey, *Week]
	shares         *solidity.Mapping[mapKey, *Share]
	claimBitmap    *solidity.Mapping[mapKey, *big.Int]
	pendingCreator *solidity.Mapping[evermark.Address, *big.Int]
	claimFloor     *solidity.Mapping[evermark.Address, uint64]
	currentWeek    *solidity.Uint256

	weekDuration  uint64
	stakerPoolBps uint64
	basePoolBps   uint64
	maxBatch      int
	maxPageSize   uint64
}

// New create a new instance.
func New(context *solidity.Context, stakes StakeSource, token TokenTransfer, board BoardSource,
	weekDuration, stakerPoolBps, basePoolBps uint64, maxBatch int, maxPageSize uint64,
) *Accountant {
	return &Accountant{
		context:        context,
		stakes:         stakes,
		token:          token,
		board:          board,
		weeks:          solidity.NewMapping[mapKey, *Week](context, slotWeeks),
		shares:         solidity.NewMapping[mapKey, *Share](context, slotShares),
		claimBitmap:    solidity.NewMapping[mapKey, *big.Int](context, slotClaimBitmap),
		pendingCreator: solidity.NewMapping[evermark.Address, *big.Int](context, slotPendingCreator),
		claimFloor:     solidity.NewMapping[evermark.Address, uint64](context, slotClaimFloor),
		currentWeek:    solidity.NewUint256(context, currentWeekPos),
		weekDuration:   weekDuration,
		stakerPoolBps:  stakerPoolBps,
		basePoolBps:    basePoolBps,
		maxBatch:       maxBatch,
		maxPageSize:    maxPageSize,
	}
}

// CurrentWeekID returns the id of the open week, 0 before the first funding.
func (a *Accountant) CurrentWeekID() (uint64, error) {
	v, err := a.currentWeek.Get()
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

// GetWeek returns the stored record of weekID.
func (a *Accountant) GetWeek(weekID uint64) (*Week, error) {
	w, err := a.weeks.Get(weekKey(weekID))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get week")
	}
	return w.normalize(), nil
}

func (a *Accountant) setWeek(weekID uint64, w *Week) error {
	return a.weeks.Set(weekKey(weekID), w, false)
}

// CheckAndAdvanceWeek rolls to a new week if the open one has expired.
func (a *Accountant) CheckAndAdvanceWeek(now uint64) (weekID uint64, rolled bool, err error) {
	cur, err := a.CurrentWeekID()
	if err != nil {
		return 0, false, err
	}
	if cur == 0 {
		if err := a.openWeek(1, now); err != nil {
			return 0, false, err
		}
		return 1, true, nil
	}
	week, err := a.GetWeek(cur)
	if err != nil {
		return 0, false, err
	}
	if now < week.EndTime {
		return cur, false, nil
	}
	if err := a.openWeek(cur+1, now); err != nil {
		return 0, false, err
	}
	return cur + 1, true, nil
}

func (a *Accountant) openWeek(weekID, now uint64) error {
	week := (&Week{StartTime: now, EndTime: now + a.weekDuration}).normalize()
	if err := a.setWeek(weekID, week); err != nil {
		return err
	}
	a.currentWeek.Set(new(big.Int).SetUint64(weekID))
	logger.Info("week opened", "week", weekID, "start", week.StartTime, "end", week.EndTime)
	return nil
}

// Fund pulls amount of EMARK from the funder into the open week's pools.
// The staker/creator and base/variable splits use basis points; the creator
// and variable legs absorb the integer-division dust so the pool sums stay
// exact. Multiple fundings within one week accumulate additively.
func (a *Accountant) Fund(from evermark.Address, amount *big.Int, now uint64) (uint64, error) {
	if amount == nil || amount.Sign() <= 0 {
		return 0, reverts.New(reverts.Validation, "rewards: fund amount must be positive")
	}
	weekID, _, err := a.CheckAndAdvanceWeek(now)
	if err != nil {
		return 0, err
	}
	if err := a.token.Transfer(from, a.context.Address(), amount); err != nil {
		return 0, err
	}

	week, err := a.GetWeek(weekID)
	if err != nil {
		return 0, err
	}

	denom := big.NewInt(int64(evermark.BpsDenominator))
	stakerCut := new(big.Int).Mul(amount, big.NewInt(int64(a.stakerPoolBps)))
	stakerCut.Div(stakerCut, denom)
	creatorCut := new(big.Int).Sub(amount, stakerCut)

	baseCut := new(big.Int).Mul(stakerCut, big.NewInt(int64(a.basePoolBps)))
	baseCut.Div(baseCut, denom)
	variableCut := new(big.Int).Sub(stakerCut, baseCut)

	week.TotalPool.Add(week.TotalPool, amount)
	week.StakerPool.Add(week.StakerPool, stakerCut)
	week.CreatorPool.Add(week.CreatorPool, creatorCut)
	week.BasePool.Add(week.BasePool, baseCut)
	week.VariablePool.Add(week.VariablePool, variableCut)
	if err := a.setWeek(weekID, week); err != nil {
		return 0, err
	}

	logger.Info("week funded", "week", weekID, "amount", amount,
		"stakerPool", week.StakerPool, "creatorPool", week.CreatorPool)
	return weekID, nil
}

// FinalizeWeek closes a past week to further funding and forwards its creator
// pool to the finalized leaderboard of cycleID. The creator split is best
// effort: a failure is logged and the pool stays pending for a manual retry
// via DistributeCreatorPool.
func (a *Accountant) FinalizeWeek(weekID, cycleID, now uint64) error {
	cur, _, err := a.CheckAndAdvanceWeek(now)
	if err != nil {
		return err
	}
	if weekID >= cur {
		return reverts.Newf(reverts.State, "rewards: week %d is still open", weekID)
	}
	week, err := a.GetWeek(weekID)
	if err != nil {
		return err
	}
	if week.Finalized {
		return reverts.Newf(reverts.State, "rewards: week %d already finalized", weekID)
	}
	week.Finalized = true
	if err := a.setWeek(weekID, week); err != nil {
		return err
	}
	logger.Info("week finalized", "week", weekID, "totalPool", week.TotalPool)

	if week.CreatorPool.Sign() > 0 {
		// Nested checkpoint: a mid-loop failure must not leave partial
		// creator credits behind, or the manual retry would pay twice.
		checkpoint := a.context.State().NewCheckpoint()
		if err := a.DistributeCreatorPool(weekID, cycleID); err != nil {
			a.context.State().RevertTo(checkpoint)
			metricDistribution().Add(1)
			logger.Warn("creator distribution failed, pool stays pending",
				"week", weekID, "cycle", cycleID, "error", err)
		}
	}
	return nil
}

// DistributeCreatorPool splits a finalized week's creator pool across the
// finalized leaderboard of cycleID, proportionally to votes. The last entry
// absorbs the rounding dust. Credited amounts land in per-creator pending
// balances claimable through the normal claim path.
func (a *Accountant) DistributeCreatorPool(weekID, cycleID uint64) error {
	week, err := a.GetWeek(weekID)
	if err != nil {
		return err
	}
	if !week.Finalized {
		return reverts.Newf(reverts.State, "rewards: week %d not finalized", weekID)
	}
	if week.CreatorPaid {
		return reverts.Newf(reverts.State, "rewards: week %d creator pool already distributed", weekID)
	}
	if week.CreatorPool.Sign() == 0 {
		return reverts.Newf(reverts.State, "rewards: week %d has no creator pool", weekID)
	}

	done, err := a.board.Finalized(cycleID)
	if err != nil {
		return errors.Wrap(err, "leaderboard lookup failed")
	}
	if !done {
		return reverts.Newf(reverts.State, "rewards: leaderboard for cycle %d not finalized", cycleID)
	}

	entries, err := a.boardEntries(cycleID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return reverts.Newf(reverts.State, "rewards: leaderboard for cycle %d is empty", cycleID)
	}

	totalVotes := new(big.Int)
	for _, e := range entries {
		totalVotes.Add(totalVotes, e.Votes)
	}

	pool := new(big.Int).Set(week.CreatorPool)
	paid := new(big.Int)
	for i, e := range entries {
		var share *big.Int
		if i == len(entries)-1 {
			share = new(big.Int).Sub(pool, paid) // dust lands here
		} else if totalVotes.Sign() == 0 {
			share = new(big.Int).Div(pool, big.NewInt(int64(len(entries))))
		} else {
			share = new(big.Int).Mul(pool, e.Votes)
			share.Div(share, totalVotes)
		}
		paid.Add(paid, share)
		if share.Sign() == 0 {
			continue
		}
		pending, err := a.pendingCreator.Get(e.Creator)
		if err != nil {
			return err
		}
		if err := a.pendingCreator.Set(e.Creator, pending.Add(pending, share), false); err != nil {
			return err
		}
	}

	week.CreatorPaid = true
	if err := a.setWeek(weekID, week); err != nil {
		return err
	}
	logger.Info("creator pool distributed", "week", weekID, "cycle", cycleID,
		"pool", pool, "creators", len(entries))
	return nil
}

func (a *Accountant) boardEntries(cycleID uint64) ([]*leaderboard.Entry, error) {
	size, err := a.board.Size(cycleID)
	if err != nil {
		return nil, err
	}
	entries := make([]*leaderboard.Entry, 0, size)
	for offset := uint64(0); offset < size; offset += a.maxPageSize {
		page, err := a.board.GetPage(cycleID, offset, a.maxPageSize)
		if err != nil {
			return nil, err
		}
		entries = append(entries, page...)
	}
	return entries, nil
}

// ComputeUserShare returns the user's live base and variable reward for a
// finalized week. The variable leg is proportional to the fraction of the
// user's own stake actually delegated, so
// variable = variablePool * min(delegated, stake) / totalStaked.
func (a *Accountant) ComputeUserShare(user evermark.Address, weekID uint64) (base, variable *big.Int, err error) {
	week, err := a.GetWeek(weekID)
	if err != nil {
		return nil, nil, err
	}
	if !week.Finalized {
		return nil, nil, reverts.Newf(reverts.State, "rewards: week %d not finalized", weekID)
	}

	stake, err := a.stakes.TotalPower(user)
	if err != nil {
		return nil, nil, err
	}
	totalStaked, err := a.stakes.TotalStaked()
	if err != nil {
		return nil, nil, err
	}
	if stake.Sign() == 0 || totalStaked.Sign() == 0 {
		return new(big.Int), new(big.Int), nil
	}

	base = new(big.Int).Mul(week.BasePool, stake)
	base.Div(base, totalStaked)

	delegated, err := a.stakes.DelegatedPower(user)
	if err != nil {
		return nil, nil, err
	}
	if delegated.Cmp(stake) > 0 {
		delegated = stake
	}
	variable = new(big.Int).Mul(week.VariablePool, delegated)
	variable.Div(variable, totalStaked)
	return base, variable, nil
}

// BatchCompute snapshots and caches the shares of up to maxBatch users for a
// finalized week. Claims read the cached values, so later stake fluctuation
// cannot change what a user is owed for the week.
func (a *Accountant) BatchCompute(weekID uint64, users []evermark.Address) error {
	if len(users) == 0 {
		return reverts.New(reverts.Validation, "rewards: empty user batch")
	}
	if len(users) > a.maxBatch {
		return reverts.Newf(reverts.Capacity, "rewards: batch size %d exceeds %d", len(users), a.maxBatch)
	}
	week, err := a.GetWeek(weekID)
	if err != nil {
		return err
	}
	if !week.Finalized {
		return reverts.Newf(reverts.State, "rewards: week %d not finalized", weekID)
	}

	for _, user := range users {
		cached, err := a.shares.Get(shareKey(weekID, user))
		if err != nil {
			return err
		}
		if cached.Computed {
			continue // snapshot already taken
		}
		base, variable, err := a.ComputeUserShare(user, weekID)
		if err != nil {
			return err
		}
		share := &Share{Base: base, Variable: variable, Computed: true}
		if err := a.shares.Set(shareKey(weekID, user), share, true); err != nil {
			return err
		}
	}

	if !week.Distributed {
		week.Distributed = true
		if err := a.setWeek(weekID, week); err != nil {
			return err
		}
	}
	return nil
}

// GetShare returns the user's cached share for a week, zero when no snapshot
// was taken.
func (a *Accountant) GetShare(user evermark.Address, weekID uint64) (*Share, error) {
	share, err := a.shares.Get(shareKey(weekID, user))
	if err != nil {
		return nil, err
	}
	return share.normalize(), nil
}

// PendingCreatorReward returns the user's undisbursed creator balance.
func (a *Accountant) PendingCreatorReward(user evermark.Address) (*big.Int, error) {
	return a.pendingCreator.Get(user)
}

// Claimed reports whether the user already claimed weekID.
func (a *Accountant) Claimed(user evermark.Address, weekID uint64) (bool, error) {
	word, err := a.claimBitmap.Get(bitmapKey(user, weekID/256))
	if err != nil {
		return false, err
	}
	return word.Bit(int(weekID%256)) == 1, nil
}

func (a *Accountant) markClaimed(user evermark.Address, weekID uint64) error {
	key := bitmapKey(user, weekID/256)
	word, err := a.claimBitmap.Get(key)
	if err != nil {
		return err
	}
	return a.claimBitmap.Set(key, word.SetBit(word, int(weekID%256), 1), false)
}

// collectWeek consumes the user's cached share for one week, marking the
// claim bit before any transfer happens.
func (a *Accountant) collectWeek(user evermark.Address, weekID uint64) (*big.Int, error) {
	share, err := a.GetShare(user, weekID)
	if err != nil {
		return nil, err
	}
	if !share.Computed || share.total().Sign() == 0 {
		return new(big.Int), nil
	}
	done, err := a.Claimed(user, weekID)
	if err != nil {
		return nil, err
	}
	if done {
		return new(big.Int), nil
	}
	if err := a.markClaimed(user, weekID); err != nil {
		return nil, err
	}
	return share.total(), nil
}

// collectPendingCreator zeroes and returns the user's creator balance.
func (a *Accountant) collectPendingCreator(user evermark.Address) (*big.Int, error) {
	pending, err := a.pendingCreator.Get(user)
	if err != nil {
		return nil, err
	}
	if pending.Sign() == 0 {
		return new(big.Int), nil
	}
	if err := a.pendingCreator.Delete(user); err != nil {
		return nil, err
	}
	return pending, nil
}

// Claim pays out everything the user is owed: cached staker shares of all
// distributed weeks plus any pending creator balance. Claim state is written
// before the token transfer. Reverts NoRewards when the sum is zero.
//
// The scan watermark advances over every week it visits, computed or not. A
// week whose shares are distributed only after a claim has passed it stays
// payable through ClaimWeek, so operators should run BatchCompute before
// users claim. The watermark never skips more than maxClaimScan weeks per
// call.
func (a *Accountant) Claim(user evermark.Address) (*big.Int, error) {
	total, err := a.collectPendingCreator(user)
	if err != nil {
		return nil, err
	}

	cur, err := a.CurrentWeekID()
	if err != nil {
		return nil, err
	}
	floor, err := a.claimFloor.Get(user)
	if err != nil {
		return nil, err
	}

	week := floor + 1
	for ; week < cur && week <= floor+maxClaimScan; week++ {
		owed, err := a.collectWeek(user, week)
		if err != nil {
			return nil, err
		}
		total.Add(total, owed)
	}
	if week-1 > floor {
		if err := a.claimFloor.Set(user, week-1, floor == 0); err != nil {
			return nil, err
		}
	}

	if total.Sign() == 0 {
		return nil, reverts.New(reverts.State, "rewards: no rewards to claim")
	}
	if err := a.token.Transfer(a.context.Address(), user, total); err != nil {
		return nil, err
	}
	metricClaims().Add(1)
	logger.Info("rewards claimed", "user", user, "amount", total)
	return total, nil
}

// ClaimWeek pays out one specific week's cached share plus any pending
// creator balance.
func (a *Accountant) ClaimWeek(user evermark.Address, weekID uint64) (*big.Int, error) {
	total, err := a.collectPendingCreator(user)
	if err != nil {
		return nil, err
	}
	owed, err := a.collectWeek(user, weekID)
	if err != nil {
		return nil, err
	}
	total.Add(total, owed)

	if total.Sign() == 0 {
		return nil, reverts.New(reverts.State, "rewards: no rewards to claim")
	}
	if err := a.token.Transfer(a.context.Address(), user, total); err != nil {
		return nil, err
	}
	metricClaims().Add(1)
	logger.Info("week rewards claimed", "user", user, "week", weekID, "amount", total)
	return total, nil
}
