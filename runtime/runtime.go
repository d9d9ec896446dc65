// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package runtime is the transaction boundary of the protocol. Every public
// operation runs against a state checkpoint and either commits fully or
// reverts fully; best-effort collaborator calls run under a nested checkpoint
// so their failure never rolls back the primary mutation.
package runtime

import (
	"math/big"

	"github.com/ipfsnut/evermark-contracts/builtin"
	"github.com/ipfsnut/evermark-contracts/builtin/gasmeter"
	"github.com/ipfsnut/evermark-contracts/builtin/reverts"
	"github.com/ipfsnut/evermark-contracts/evermark"
	"github.com/ipfsnut/evermark-contracts/log"
	"github.com/ipfsnut/evermark-contracts/logdb"
	"github.com/ipfsnut/evermark-contracts/metrics"
	"github.com/ipfsnut/evermark-contracts/state"
)

var (
	logger = log.WithContext("pkg", "runtime")

	metricReverts    = metrics.LazyLoadCounterVec("reverts_total", []string{"op"})
	metricBestEffort = metrics.LazyLoadCounter("best_effort_failures_total")
	metricCommits    = metrics.LazyLoadCounterVec("commits_total", []string{"op"})
)

// Receipt summarizes one executed operation.
type Receipt struct {
	Op       string
	GasUsed  uint64
	Reverted bool
}

// Runtime executes protocol operations against a world state.
type Runtime struct {
	st     *state.State
	cfg    builtin.Config
	events *logdb.LogDB // nil disables the event log

	gasBudget   uint64
	liveRanking bool
}

// New creates a runtime over st. events may be nil.
func New(st *state.State, cfg builtin.Config, events *logdb.LogDB) *Runtime {
	return &Runtime{st: st, cfg: cfg, events: events}
}

// SetGasBudget caps storage-op gas per operation; zero disables the cap.
func (r *Runtime) SetGasBudget(budget uint64) {
	r.gasBudget = budget
}

// EnableLiveRanking turns on the best-effort incremental leaderboard update
// after every vote mutation.
func (r *Runtime) EnableLiveRanking() {
	r.liveRanking = true
}

// Contracts returns a read-only binding without gas metering, for queries.
func (r *Runtime) Contracts() *builtin.Contracts {
	return builtin.Bind(r.st, r.cfg, nil)
}

// Genesis initializes a fresh state: records the executor, stores the
// protocol parameters, and mints the initial EMARK supply to the executor.
func (r *Runtime) Genesis(executor evermark.Address) error {
	_, err := r.transact("genesis", func(c *builtin.Contracts) error {
		if err := c.Params.SetExecutor(executor); err != nil {
			return err
		}
		if err := c.Params.Set(evermark.KeyCycleDuration, new(big.Int).SetUint64(r.cfg.CycleDuration)); err != nil {
			return err
		}
		if err := c.Params.Set(evermark.KeyUnbondPeriod, new(big.Int).SetUint64(r.cfg.UnbondPeriod)); err != nil {
			return err
		}
		if err := c.Params.Set(evermark.KeyStakerPoolBps, new(big.Int).SetUint64(r.cfg.StakerPoolBps)); err != nil {
			return err
		}
		if err := c.Params.Set(evermark.KeyBasePoolBps, new(big.Int).SetUint64(r.cfg.BasePoolBps)); err != nil {
			return err
		}
		return c.Token.Mint(executor, evermark.InitialTokenSupply)
	})
	return err
}

// transact runs fn under a checkpoint, committing on success and reverting
// every mutation on failure.
func (r *Runtime) transact(op string, fn func(c *builtin.Contracts) error) (*Receipt, error) {
	checkpoint := r.st.NewCheckpoint()
	meter := gasmeter.New(r.gasBudget)
	contracts := builtin.Bind(r.st, r.cfg, meter.Charge)

	err := fn(contracts)
	if err == nil {
		err = meter.Err()
	}
	receipt := &Receipt{Op: op, GasUsed: meter.TotalGas()}
	if err != nil {
		r.st.RevertTo(checkpoint)
		receipt.Reverted = true
		metricReverts().AddWithLabel(1, map[string]string{"op": op})
		if reverts.IsRevertErr(err) {
			logger.Debug("operation reverted", "op", op, "reason", err)
		} else {
			logger.Error("operation failed", "op", op, "error", err)
		}
		r.appendEvent(&logdb.Event{Kind: logdb.KindOperationFailed, Detail: op + ": " + err.Error()})
		return receipt, err
	}

	if err := r.st.Stage().Commit(); err != nil {
		r.st.RevertTo(checkpoint)
		receipt.Reverted = true
		return receipt, err
	}
	// committed data is readable through the store, trim the journal
	r.st.RevertTo(checkpoint)
	metricCommits().AddWithLabel(1, map[string]string{"op": op})
	return receipt, nil
}

// appendEvent records ev best-effort; a log failure never fails the caller.
func (r *Runtime) appendEvent(ev *logdb.Event) {
	if r.events == nil {
		return
	}
	if err := r.events.Append(ev); err != nil {
		metricBestEffort().Add(1)
		logger.Warn("failed to append event", "kind", ev.Kind, "error", err)
	}
}

// requireExecutor rejects callers other than the genesis executor.
func requireExecutor(c *builtin.Contracts, caller evermark.Address) error {
	executor, err := c.Params.Executor()
	if err != nil {
		return err
	}
	if caller != executor {
		return reverts.New(reverts.State, "runtime: caller is not the executor")
	}
	return nil
}

// MintEvermark registers a new Evermark for creator.
func (r *Runtime) MintEvermark(creator evermark.Address, metadata evermark.Bytes32, now uint64) (uint64, *Receipt, error) {
	var id uint64
	receipt, err := r.transact("mint_evermark", func(c *builtin.Contracts) error {
		var err error
		id, err = c.Registry.Mint(creator, metadata, now)
		return err
	})
	if err != nil {
		return 0, receipt, err
	}
	r.appendEvent(&logdb.Event{Time: now, Kind: logdb.KindEvermarkMinted, User: creator, Candidate: id})
	return id, receipt, nil
}

// Wrap locks amount of the user's EMARK into voting power.
func (r *Runtime) Wrap(user evermark.Address, amount *big.Int, now uint64) (*Receipt, error) {
	receipt, err := r.transact("wrap", func(c *builtin.Contracts) error {
		return c.StakeLedger.Wrap(user, amount)
	})
	if err != nil {
		return receipt, err
	}
	r.appendEvent(&logdb.Event{Time: now, Kind: logdb.KindStakeWrapped, User: user, Amount: amount})
	return receipt, nil
}

// RequestUnwrap starts the timed unbonding of amount.
func (r *Runtime) RequestUnwrap(user evermark.Address, amount *big.Int, now uint64) (*Receipt, error) {
	receipt, err := r.transact("request_unwrap", func(c *builtin.Contracts) error {
		return c.StakeLedger.RequestUnwrap(user, amount, now)
	})
	if err != nil {
		return receipt, err
	}
	r.appendEvent(&logdb.Event{Time: now, Kind: logdb.KindUnwrapRequested, User: user, Amount: amount})
	return receipt, nil
}

// CompleteUnwrap releases matured unbonding stake back to the user.
func (r *Runtime) CompleteUnwrap(user evermark.Address, now uint64) (*Receipt, error) {
	var amount *big.Int
	receipt, err := r.transact("complete_unwrap", func(c *builtin.Contracts) error {
		var err error
		amount, err = c.StakeLedger.CompleteUnwrap(user, now)
		return err
	})
	if err != nil {
		return receipt, err
	}
	r.appendEvent(&logdb.Event{Time: now, Kind: logdb.KindUnwrapCompleted, User: user, Amount: amount})
	return receipt, nil
}

// Delegate assigns voting power to a candidate. With live ranking enabled the
// leaderboard refresh runs best-effort: its failure is logged and the vote
// still commits.
func (r *Runtime) Delegate(user evermark.Address, candidateID uint64, amount *big.Int, now uint64) (*Receipt, error) {
	var cycleID uint64
	receipt, err := r.transact("delegate", func(c *builtin.Contracts) error {
		var err error
		cycleID, err = c.Voting.Delegate(user, candidateID, amount, now)
		if err != nil {
			return err
		}
		r.refreshRanking(cycleID, []uint64{candidateID}, now)
		return nil
	})
	if err != nil {
		return receipt, err
	}
	r.appendEvent(&logdb.Event{Time: now, Kind: logdb.KindDelegate, User: user, Candidate: candidateID, Cycle: cycleID, Amount: amount})
	return receipt, nil
}

// Undelegate withdraws votes from a candidate.
func (r *Runtime) Undelegate(user evermark.Address, candidateID uint64, amount *big.Int, now uint64) (*Receipt, error) {
	var cycleID uint64
	receipt, err := r.transact("undelegate", func(c *builtin.Contracts) error {
		var err error
		cycleID, err = c.Voting.Undelegate(user, candidateID, amount, now)
		if err != nil {
			return err
		}
		r.refreshRanking(cycleID, []uint64{candidateID}, now)
		return nil
	})
	if err != nil {
		return receipt, err
	}
	r.appendEvent(&logdb.Event{Time: now, Kind: logdb.KindUndelegate, User: user, Candidate: candidateID, Cycle: cycleID, Amount: amount})
	return receipt, nil
}

// DelegateBatch applies several delegations atomically.
func (r *Runtime) DelegateBatch(user evermark.Address, candidateIDs []uint64, amounts []*big.Int, now uint64) (*Receipt, error) {
	var cycleID uint64
	receipt, err := r.transact("delegate_batch", func(c *builtin.Contracts) error {
		var err error
		cycleID, err = c.Voting.DelegateBatch(user, candidateIDs, amounts, now)
		if err != nil {
			return err
		}
		r.refreshRanking(cycleID, candidateIDs, now)
		return nil
	})
	if err != nil {
		return receipt, err
	}
	sum := new(big.Int)
	for _, amount := range amounts {
		sum.Add(sum, amount)
	}
	r.appendEvent(&logdb.Event{Time: now, Kind: logdb.KindDelegateBatch, User: user, Cycle: cycleID, Amount: sum})
	return receipt, nil
}

// refreshRanking is the best-effort live leaderboard hook. It runs under a
// nested checkpoint on a side meter: on failure only the ranking mutation is
// rolled back, and its gas never counts against the vote's budget.
func (r *Runtime) refreshRanking(cycleID uint64, candidateIDs []uint64, now uint64) {
	if !r.liveRanking {
		return
	}
	side := gasmeter.New(0)
	contracts := builtin.Bind(r.st, r.cfg, side.Charge)
	checkpoint := r.st.NewCheckpoint()
	if err := contracts.Leaderboard.BatchUpdate(cycleID, candidateIDs, now); err != nil {
		r.st.RevertTo(checkpoint)
		metricBestEffort().Add(1)
		logger.Warn("live ranking update failed", "cycle", cycleID, "error", err)
	}
}

// StartNewCycle force-rolls the voting cycle. Executor only.
func (r *Runtime) StartNewCycle(caller evermark.Address, now uint64) (uint64, *Receipt, error) {
	var cycleID uint64
	receipt, err := r.transact("start_new_cycle", func(c *builtin.Contracts) error {
		if err := requireExecutor(c, caller); err != nil {
			return err
		}
		var err error
		cycleID, err = c.Voting.StartNewCycle(now)
		return err
	})
	if err != nil {
		return 0, receipt, err
	}
	r.appendEvent(&logdb.Event{Time: now, Kind: logdb.KindCycleStarted, User: caller, Cycle: cycleID})
	return cycleID, receipt, nil
}

// CheckAndAdvance rolls the voting cycle if its time has elapsed. Public.
func (r *Runtime) CheckAndAdvance(now uint64) (uint64, *Receipt, error) {
	var (
		cycleID uint64
		rolled  bool
	)
	receipt, err := r.transact("check_and_advance", func(c *builtin.Contracts) error {
		var err error
		cycleID, rolled, err = c.Voting.CheckAndAdvance(now)
		return err
	})
	if err != nil {
		return 0, receipt, err
	}
	if rolled {
		r.appendEvent(&logdb.Event{Time: now, Kind: logdb.KindCycleStarted, Cycle: cycleID})
	}
	return cycleID, receipt, nil
}

// FinalizeLeaderboard builds the immutable board of a finalized cycle.
func (r *Runtime) FinalizeLeaderboard(cycleID, now uint64) (*Receipt, error) {
	receipt, err := r.transact("finalize_leaderboard", func(c *builtin.Contracts) error {
		return c.Leaderboard.Finalize(cycleID)
	})
	if err != nil {
		return receipt, err
	}
	r.appendEvent(&logdb.Event{Time: now, Kind: logdb.KindBoardFinalized, Cycle: cycleID})
	return receipt, nil
}

// Fund pulls EMARK from the executor into the open week's pools.
func (r *Runtime) Fund(caller evermark.Address, amount *big.Int, now uint64) (uint64, *Receipt, error) {
	var weekID uint64
	receipt, err := r.transact("fund", func(c *builtin.Contracts) error {
		if err := requireExecutor(c, caller); err != nil {
			return err
		}
		var err error
		weekID, err = c.Rewards.Fund(caller, amount, now)
		return err
	})
	if err != nil {
		return 0, receipt, err
	}
	r.appendEvent(&logdb.Event{Time: now, Kind: logdb.KindWeekFunded, User: caller, Week: weekID, Amount: amount})
	return weekID, receipt, nil
}

// FinalizeWeek closes a past reward week. Executor only.
func (r *Runtime) FinalizeWeek(caller evermark.Address, weekID, cycleID, now uint64) (*Receipt, error) {
	receipt, err := r.transact("finalize_week", func(c *builtin.Contracts) error {
		if err := requireExecutor(c, caller); err != nil {
			return err
		}
		return c.Rewards.FinalizeWeek(weekID, cycleID, now)
	})
	if err != nil {
		return receipt, err
	}
	r.appendEvent(&logdb.Event{Time: now, Kind: logdb.KindWeekFinalized, User: caller, Week: weekID, Cycle: cycleID})
	return receipt, nil
}

// BatchCompute snapshots user shares for a finalized week. Executor only.
func (r *Runtime) BatchCompute(caller evermark.Address, weekID uint64, users []evermark.Address, now uint64) (*Receipt, error) {
	receipt, err := r.transact("batch_compute", func(c *builtin.Contracts) error {
		if err := requireExecutor(c, caller); err != nil {
			return err
		}
		return c.Rewards.BatchCompute(weekID, users)
	})
	if err != nil {
		return receipt, err
	}
	r.appendEvent(&logdb.Event{Time: now, Kind: logdb.KindSharesComputed, User: caller, Week: weekID})
	return receipt, nil
}

// DistributeCreatorPool retries a pending creator split. Executor only.
func (r *Runtime) DistributeCreatorPool(caller evermark.Address, weekID, cycleID, now uint64) (*Receipt, error) {
	receipt, err := r.transact("distribute_creator_pool", func(c *builtin.Contracts) error {
		if err := requireExecutor(c, caller); err != nil {
			return err
		}
		return c.Rewards.DistributeCreatorPool(weekID, cycleID)
	})
	if err != nil {
		return receipt, err
	}
	r.appendEvent(&logdb.Event{Time: now, Kind: logdb.KindCreatorPaid, Week: weekID, Cycle: cycleID})
	return receipt, nil
}

// Claim pays out everything the user is owed.
func (r *Runtime) Claim(user evermark.Address, now uint64) (*big.Int, *Receipt, error) {
	var paid *big.Int
	receipt, err := r.transact("claim", func(c *builtin.Contracts) error {
		var err error
		paid, err = c.Rewards.Claim(user)
		return err
	})
	if err != nil {
		return nil, receipt, err
	}
	r.appendEvent(&logdb.Event{Time: now, Kind: logdb.KindClaim, User: user, Amount: paid})
	return paid, receipt, nil
}

// ClaimWeek pays out one week's share plus pending creator rewards.
func (r *Runtime) ClaimWeek(user evermark.Address, weekID, now uint64) (*big.Int, *Receipt, error) {
	var paid *big.Int
	receipt, err := r.transact("claim_week", func(c *builtin.Contracts) error {
		var err error
		paid, err = c.Rewards.ClaimWeek(user, weekID)
		return err
	})
	if err != nil {
		return nil, receipt, err
	}
	r.appendEvent(&logdb.Event{Time: now, Kind: logdb.KindClaim, User: user, Week: weekID, Amount: paid})
	return paid, receipt, nil
}
