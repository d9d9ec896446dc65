// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package builtin holds the native contracts of the Evermark protocol and
// their well-known addresses.
package builtin

import (
	"github.com/ipfsnut/evermark-contracts/builtin/leaderboard"
	"github.com/ipfsnut/evermark-contracts/builtin/params"
	"github.com/ipfsnut/evermark-contracts/builtin/registry"
	"github.com/ipfsnut/evermark-contracts/builtin/rewards"
	"github.com/ipfsnut/evermark-contracts/builtin/solidity"
	"github.com/ipfsnut/evermark-contracts/builtin/stakeledger"
	"github.com/ipfsnut/evermark-contracts/builtin/token"
	"github.com/ipfsnut/evermark-contracts/builtin/voting"
	"github.com/ipfsnut/evermark-contracts/evermark"
	"github.com/ipfsnut/evermark-contracts/state"
)

// Contract addresses binding.
var (
	Params      = mustContract("Params")
	Token       = mustContract("Token")
	Registry    = mustContract("Registry")
	StakeLedger = mustContract("StakeLedger")
	Voting      = mustContract("Voting")
	Leaderboard = mustContract("Leaderboard")
	Rewards     = mustContract("Rewards")
)

type contract struct {
	Name    string
	Address evermark.Address
}

func mustContract(name string) *contract {
	return &contract{
		Name:    name,
		Address: evermark.BytesToAddress(evermark.Blake2b([]byte(name)).Bytes()[12:]),
	}
}

func (c *contract) NewContext(st *state.State, charger solidity.UseGasFunc) *solidity.Context {
	return solidity.NewContext(c.Address, st, charger)
}

// Contracts bundles every native contract bound to one world state.
type Contracts struct {
	Params      *params.Params
	Token       *token.Token
	Registry    *registry.Registry
	StakeLedger *stakeledger.Ledger
	Voting      *voting.Engine
	Leaderboard *leaderboard.Ranker
	Rewards     *rewards.Accountant
}

// Config carries the tunables the contracts are constructed with.
type Config struct {
	CycleDuration     uint64
	WeekDuration      uint64
	UnbondPeriod      uint64
	MaxActivePerCycle uint64
	MaxLeaderboard    uint64
	MaxPageSize       uint64
	MaxBatchSize      int
	StakerPoolBps     uint64
	BasePoolBps       uint64
}

// DefaultConfig mirrors the protocol constants.
func DefaultConfig() Config {
	return Config{
		CycleDuration:     evermark.CycleDuration,
		WeekDuration:      evermark.WeekDuration,
		UnbondPeriod:      evermark.UnbondPeriod,
		MaxActivePerCycle: evermark.MaxActivePerCycle,
		MaxLeaderboard:    evermark.MaxLeaderboardSize,
		MaxPageSize:       evermark.MaxPageSize,
		MaxBatchSize:      evermark.MaxBatchSize,
		StakerPoolBps:     evermark.StakerPoolBps,
		BasePoolBps:       evermark.BasePoolBps,
	}
}

// Bind constructs the full contract set over st. charger may be nil.
func Bind(st *state.State, cfg Config, charger solidity.UseGasFunc) *Contracts {
	p := params.New(Params.NewContext(st, charger))
	tok := token.New(Token.NewContext(st, charger))
	reg := registry.New(Registry.NewContext(st, charger))
	ledger := stakeledger.New(StakeLedger.NewContext(st, charger), tok, cfg.UnbondPeriod)
	engine := voting.New(Voting.NewContext(st, charger), reg, ledger,
		cfg.CycleDuration, cfg.MaxActivePerCycle, cfg.MaxBatchSize)
	ranker := leaderboard.New(Leaderboard.NewContext(st, charger), engine, reg,
		cfg.MaxLeaderboard, cfg.MaxPageSize, cfg.MaxBatchSize)
	accountant := rewards.New(Rewards.NewContext(st, charger), ledger, tok, ranker,
		cfg.WeekDuration, cfg.StakerPoolBps, cfg.BasePoolBps, cfg.MaxBatchSize, cfg.MaxPageSize)

	return &Contracts{
		Params:      p,
		Token:       tok,
		Registry:    reg,
		StakeLedger: ledger,
		Voting:      engine,
		Leaderboard: ranker,
		Rewards:     accountant,
	}
}
