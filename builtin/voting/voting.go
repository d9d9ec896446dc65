// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package voting implements the voting cycle engine. Votes are delegations of
// staked power to Evermark candidates within fixed-duration cycles; cycle
// boundaries roll lazily whenever a mutating call observes the end time has
// passed, so no scheduler is needed.
package voting

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/ipfsnut/evermark-contracts/builtin/reverts"
	"github.com/ipfsnut/evermark-contracts/builtin/solidity"
	"github.com/ipfsnut/evermark-contracts/evermark"
	"github.com/ipfsnut/evermark-contracts/log"
	"github.com/ipfsnut/evermark-contracts/metrics"
)

var (
	logger = log.WithContext("pkg", "voting")

	metricDelegations = metrics.LazyLoadCounter("delegations_total")

	slotCycles             = evermark.BytesToBytes32([]byte("cycles"))
	slotCandidateVotes     = evermark.BytesToBytes32([]byte("candidate-votes"))
	slotUserVotes          = evermark.BytesToBytes32([]byte("user-votes"))
	slotUserCandidateVotes = evermark.BytesToBytes32([]byte("user-candidate-votes"))
	slotActiveArena        = evermark.BytesToBytes32([]byte("active-arena"))
	slotActiveIndex        = evermark.BytesToBytes32([]byte("active-index"))
	slotUserLastCycle      = evermark.BytesToBytes32([]byte("user-last-cycle"))

	currentCyclePos = evermark.Blake2b([]byte("current-cycle"))
)

// StakeProvider is the slice of the stake ledger the engine needs. Reserve and
// Release apply deltas, so interleaved calls never overwrite each other.
type StakeProvider interface {
	Reserve(user evermark.Address, amount *big.Int) error
	Release(user evermark.Address, amount *big.Int) error
	AvailablePower(user evermark.Address) (*big.Int, error)
	TotalPower(user evermark.Address) (*big.Int, error)
	DelegatedPower(user evermark.Address) (*big.Int, error)
	TotalStaked() (*big.Int, error)
}

// CandidateRegistry resolves candidate ids to creators.
type CandidateRegistry interface {
	Exists(candidateID uint64) (bool, error)
	CreatorOf(candidateID uint64) (evermark.Address, error)
}

// Engine implements native methods of the `VotingCycleEngine` contract.
type Engine struct {
	registry CandidateRegistry
	stakes   StakeProvider

	cycles             *solidity.Mapping[mapKey, *Cycle]
	candidateVotes     *solidity.Mapping[mapKey, *big.Int]
	userVotes          *solidity.Mapping[mapKey, *big.Int]
	userCandidateVotes *solidity.Mapping[mapKey, *big.Int]
	activeArena        *solidity.Mapping[mapKey, uint64]
	activeIndex        *solidity.Mapping[mapKey, uint64] // candidate -> arena position + 1
	userLastCycle      *solidity.Mapping[evermark.Address, uint64]
	currentCycle       *solidity.Uint256

	cycleDuration uint64
	maxActive     uint64
	maxBatch      int
}

// New create a new instance.
func New(context *solidity.Context, registry CandidateRegistry, stakes StakeProvider, cycleDuration, maxActive uint64, maxBatch int) *Engine {
	return &Engine{
		registry:           registry,
		stakes:             stakes,
		cycles:             solidity.NewMapping[mapKey, *Cycle](context, slotCycles),
		candidateVotes:     solidity.NewMapping[mapKey, *big.Int](context, slotCandidateVotes),
		userVotes:          solidity.NewMapping[mapKey, *big.Int](context, slotUserVotes),
		userCandidateVotes: solidity.NewMapping[mapKey, *big.Int](context, slotUserCandidateVotes),
		activeArena:        solidity.NewMapping[mapKey, uint64](context, slotActiveArena),
		activeIndex:        solidity.NewMapping[mapKey, uint64](context, slotActiveIndex),
		userLastCycle:      solidity.NewMapping[evermark.Address, uint64](context, slotUserLastCycle),
		currentCycle:       solidity.NewUint256(context, currentCyclePos),
		cycleDuration:      cycleDuration,
		maxActive:          maxActive,
		maxBatch:           maxBatch,
	}
}

// CurrentCycleID returns the id of the open cycle, 0 before genesis.
func (e *Engine) CurrentCycleID() (uint64, error) {
	v, err := e.currentCycle.Get()
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

// GetCycle returns the stored record of cycleID.
func (e *Engine) GetCycle(cycleID uint64) (*Cycle, error) {
	c, err := e.cycles.Get(cycleKey(cycleID))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get cycle")
	}
	return c.normalize(), nil
}

func (e *Engine) setCycle(cycleID uint64, c *Cycle) error {
	return e.cycles.Set(cycleKey(cycleID), c, false)
}

func (e *Engine) openCycle(cycleID, now uint64) error {
	next := &Cycle{
		StartTime:  now,
		EndTime:    now + e.cycleDuration,
		TotalVotes: new(big.Int),
	}
	if err := e.setCycle(cycleID, next); err != nil {
		return err
	}
	e.currentCycle.Set(new(big.Int).SetUint64(cycleID))
	logger.Info("cycle opened", "cycle", cycleID, "start", next.StartTime, "end", next.EndTime)
	return nil
}

// CheckAndAdvance rolls to a new cycle if the open one has expired. Callable
// by anyone; every mutating entry point runs it first, so votes always land
// in the cycle that is actually open. Returns the open cycle id.
func (e *Engine) CheckAndAdvance(now uint64) (cycleID uint64, rolled bool, err error) {
	cur, err := e.CurrentCycleID()
	if err != nil {
		return 0, false, err
	}
	if cur == 0 {
		// genesis roll on first touch
		if err := e.openCycle(1, now); err != nil {
			return 0, false, err
		}
		return 1, true, nil
	}
	cycle, err := e.GetCycle(cur)
	if err != nil {
		return 0, false, err
	}
	if now < cycle.EndTime {
		return cur, false, nil
	}
	if err := e.finalizeCycle(cur, cycle); err != nil {
		return 0, false, err
	}
	if err := e.openCycle(cur+1, now); err != nil {
		return 0, false, err
	}
	return cur + 1, true, nil
}

// StartNewCycle force-rolls regardless of the clock. Calling it when the
// outgoing cycle is already finalized only opens the next cycle once.
func (e *Engine) StartNewCycle(now uint64) (uint64, error) {
	cur, err := e.CurrentCycleID()
	if err != nil {
		return 0, err
	}
	if cur == 0 {
		if err := e.openCycle(1, now); err != nil {
			return 0, err
		}
		return 1, nil
	}
	cycle, err := e.GetCycle(cur)
	if err != nil {
		return 0, err
	}
	if err := e.finalizeCycle(cur, cycle); err != nil {
		return 0, err
	}
	if err := e.openCycle(cur+1, now); err != nil {
		return 0, err
	}
	return cur + 1, nil
}

func (e *Engine) finalizeCycle(cycleID uint64, cycle *Cycle) error {
	if cycle.Finalized {
		return nil
	}
	cycle.Finalized = true
	if err := e.setCycle(cycleID, cycle); err != nil {
		return err
	}
	logger.Info("cycle finalized",
		"cycle", cycleID,
		"totalVotes", cycle.TotalVotes,
		"delegationEvents", cycle.DelegationEvents,
		"activeCandidates", cycle.ActiveCount)
	return nil
}

// Delegate assigns amount of the user's available power to a candidate in the
// open cycle and returns the cycle the vote landed in.
func (e *Engine) Delegate(user evermark.Address, candidateID uint64, amount *big.Int, now uint64) (uint64, error) {
	if amount == nil || amount.Sign() <= 0 {
		return 0, reverts.New(reverts.Validation, "voting: amount must be positive")
	}
	cycleID, _, err := e.CheckAndAdvance(now)
	if err != nil {
		return 0, err
	}
	if err := e.settleUser(cycleID, user); err != nil {
		return 0, err
	}
	if err := e.checkCandidate(user, candidateID); err != nil {
		return 0, err
	}

	cycle, err := e.GetCycle(cycleID)
	if err != nil {
		return 0, err
	}
	newActive, err := e.isNewActive(cycleID, candidateID)
	if err != nil {
		return 0, err
	}
	if newActive && cycle.ActiveCount >= e.maxActive {
		return 0, reverts.Newf(reverts.Capacity, "voting: active candidate cap %d reached", e.maxActive)
	}

	if err := e.stakes.Reserve(user, amount); err != nil {
		return 0, err
	}

	if err := e.applyDelta(cycleID, user, candidateID, amount); err != nil {
		return 0, err
	}
	if newActive {
		if err := e.appendActive(cycleID, cycle, candidateID); err != nil {
			return 0, err
		}
	}
	cycle.TotalVotes.Add(cycle.TotalVotes, amount)
	cycle.DelegationEvents++
	if err := e.setCycle(cycleID, cycle); err != nil {
		return 0, err
	}

	metricDelegations().Add(1)
	logger.Info("delegated", "user", user, "candidate", candidateID, "amount", amount, "cycle", cycleID)
	return cycleID, nil
}

// Undelegate withdraws amount of the user's votes from a candidate in the
// open cycle. A zero-tally candidate stays in the active set.
func (e *Engine) Undelegate(user evermark.Address, candidateID uint64, amount *big.Int, now uint64) (uint64, error) {
	if amount == nil || amount.Sign() <= 0 {
		return 0, reverts.New(reverts.Validation, "voting: amount must be positive")
	}
	cycleID, _, err := e.CheckAndAdvance(now)
	if err != nil {
		return 0, err
	}
	if err := e.settleUser(cycleID, user); err != nil {
		return 0, err
	}

	uc, err := e.userCandidateVotes.Get(userCandidateKey(cycleID, user, candidateID))
	if err != nil {
		return 0, err
	}
	if uc.Cmp(amount) < 0 {
		return 0, reverts.Newf(reverts.State, "voting: undelegate %v exceeds delegated votes %v", amount, uc)
	}

	if err := e.applyDelta(cycleID, user, candidateID, new(big.Int).Neg(amount)); err != nil {
		return 0, err
	}
	cycle, err := e.GetCycle(cycleID)
	if err != nil {
		return 0, err
	}
	cycle.TotalVotes.Sub(cycle.TotalVotes, amount)
	cycle.DelegationEvents++
	if err := e.setCycle(cycleID, cycle); err != nil {
		return 0, err
	}

	if err := e.stakes.Release(user, amount); err != nil {
		return 0, err
	}
	logger.Info("undelegated", "user", user, "candidate", candidateID, "amount", amount, "cycle", cycleID)
	return cycleID, nil
}

// DelegateBatch applies several delegations in one call. The whole batch is
// validated and the summed power reserved before any tally changes.
func (e *Engine) DelegateBatch(user evermark.Address, candidateIDs []uint64, amounts []*big.Int, now uint64) (uint64, error) {
	if len(candidateIDs) == 0 || len(candidateIDs) != len(amounts) {
		return 0, reverts.New(reverts.Validation, "voting: candidate and amount arrays must be equal length and non-empty")
	}
	if len(candidateIDs) > e.maxBatch {
		return 0, reverts.Newf(reverts.Capacity, "voting: batch size %d exceeds %d", len(candidateIDs), e.maxBatch)
	}

	sum := new(big.Int)
	for _, amount := range amounts {
		if amount == nil || amount.Sign() <= 0 {
			return 0, reverts.New(reverts.Validation, "voting: amount must be positive")
		}
		sum.Add(sum, amount)
	}

	cycleID, _, err := e.CheckAndAdvance(now)
	if err != nil {
		return 0, err
	}
	if err := e.settleUser(cycleID, user); err != nil {
		return 0, err
	}
	cycle, err := e.GetCycle(cycleID)
	if err != nil {
		return 0, err
	}

	// validate every candidate and count cap pressure before mutating
	newCount := uint64(0)
	seen := make(map[uint64]bool, len(candidateIDs))
	for _, id := range candidateIDs {
		if err := e.checkCandidate(user, id); err != nil {
			return 0, err
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		isNew, err := e.isNewActive(cycleID, id)
		if err != nil {
			return 0, err
		}
		if isNew {
			newCount++
		}
	}
	if cycle.ActiveCount+newCount > e.maxActive {
		return 0, reverts.Newf(reverts.Capacity, "voting: active candidate cap %d reached", e.maxActive)
	}

	if err := e.stakes.Reserve(user, sum); err != nil {
		return 0, err
	}

	for i, id := range candidateIDs {
		if err := e.applyDelta(cycleID, user, id, amounts[i]); err != nil {
			return 0, err
		}
		isNew, err := e.isNewActive(cycleID, id)
		if err != nil {
			return 0, err
		}
		if isNew {
			if err := e.appendActive(cycleID, cycle, id); err != nil {
				return 0, err
			}
		}
		cycle.TotalVotes.Add(cycle.TotalVotes, amounts[i])
		cycle.DelegationEvents++
	}
	if err := e.setCycle(cycleID, cycle); err != nil {
		return 0, err
	}

	metricDelegations().Add(int64(len(candidateIDs)))
	logger.Info("batch delegated", "user", user, "candidates", len(candidateIDs), "amount", sum, "cycle", cycleID)
	return cycleID, nil
}

// settleUser releases the user's stale reservation from the last cycle they
// voted in. Tallies are cycle-scoped but the stake ledger is not, so without
// this the power delegated in an expired cycle would stay locked forever.
// Runs lazily on the user's first action in each new cycle, O(1) per user.
func (e *Engine) settleUser(cycleID uint64, user evermark.Address) error {
	last, err := e.userLastCycle.Get(user)
	if err != nil {
		return err
	}
	if last == cycleID {
		return nil
	}
	if last != 0 {
		stale, err := e.userVotes.Get(userKey(last, user))
		if err != nil {
			return err
		}
		if stale.Sign() > 0 {
			if err := e.stakes.Release(user, stale); err != nil {
				return err
			}
			logger.Debug("released expired delegation", "user", user, "cycle", last, "amount", stale)
		}
	}
	return e.userLastCycle.Set(user, cycleID, last == 0)
}

func (e *Engine) checkCandidate(user evermark.Address, candidateID uint64) error {
	exists, err := e.registry.Exists(candidateID)
	if err != nil {
		return errors.Wrap(err, "candidate lookup failed")
	}
	if !exists {
		return reverts.Newf(reverts.Validation, "voting: candidate %d does not exist", candidateID)
	}
	creator, err := e.registry.CreatorOf(candidateID)
	if err != nil {
		return errors.Wrap(err, "creator lookup failed")
	}
	if creator == user {
		return reverts.New(reverts.Validation, "voting: self-voting is not allowed")
	}
	return nil
}

func (e *Engine) isNewActive(cycleID, candidateID uint64) (bool, error) {
	pos, err := e.activeIndex.Get(candidateKey(cycleID, candidateID))
	if err != nil {
		return false, err
	}
	return pos == 0, nil
}

func (e *Engine) appendActive(cycleID uint64, cycle *Cycle, candidateID uint64) error {
	if err := e.activeArena.Set(arenaKey(cycleID, cycle.ActiveCount), candidateID, true); err != nil {
		return err
	}
	// stored as position+1 so zero means absent
	if err := e.activeIndex.Set(candidateKey(cycleID, candidateID), cycle.ActiveCount+1, true); err != nil {
		return err
	}
	cycle.ActiveCount++
	return nil
}

func (e *Engine) applyDelta(cycleID uint64, user evermark.Address, candidateID uint64, delta *big.Int) error {
	cv, err := e.candidateVotes.Get(candidateKey(cycleID, candidateID))
	if err != nil {
		return err
	}
	if err := e.candidateVotes.Set(candidateKey(cycleID, candidateID), cv.Add(cv, delta), false); err != nil {
		return err
	}
	uv, err := e.userVotes.Get(userKey(cycleID, user))
	if err != nil {
		return err
	}
	if err := e.userVotes.Set(userKey(cycleID, user), uv.Add(uv, delta), false); err != nil {
		return err
	}
	ucv, err := e.userCandidateVotes.Get(userCandidateKey(cycleID, user, candidateID))
	if err != nil {
		return err
	}
	return e.userCandidateVotes.Set(userCandidateKey(cycleID, user, candidateID), ucv.Add(ucv, delta), false)
}

// CycleFinalized reports whether a cycle has been closed to votes.
func (e *Engine) CycleFinalized(cycleID uint64) (bool, error) {
	cycle, err := e.GetCycle(cycleID)
	if err != nil {
		return false, err
	}
	return cycle.Finalized, nil
}

// CandidateVotes returns the aggregate votes of a candidate in a cycle.
func (e *Engine) CandidateVotes(cycleID, candidateID uint64) (*big.Int, error) {
	return e.candidateVotes.Get(candidateKey(cycleID, candidateID))
}

// UserVotes returns the user's total votes cast in a cycle.
func (e *Engine) UserVotes(cycleID uint64, user evermark.Address) (*big.Int, error) {
	return e.userVotes.Get(userKey(cycleID, user))
}

// UserCandidateVotes returns the user's votes for one candidate in a cycle.
func (e *Engine) UserCandidateVotes(cycleID uint64, user evermark.Address, candidateID uint64) (*big.Int, error) {
	return e.userCandidateVotes.Get(userCandidateKey(cycleID, user, candidateID))
}

// ActiveCandidates returns the cycle's active-candidate list in insertion
// order. The list is bounded by the active-candidate cap.
func (e *Engine) ActiveCandidates(cycleID uint64) ([]uint64, error) {
	cycle, err := e.GetCycle(cycleID)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, cycle.ActiveCount)
	for i := uint64(0); i < cycle.ActiveCount; i++ {
		id, err := e.activeArena.Get(arenaKey(cycleID, i))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
