// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package logdb

import (
	"math/big"

	"github.com/ipfsnut/evermark-contracts/evermark"
)

// Kind names a protocol event type.
type Kind string

const (
	KindDelegate        Kind = "delegate"
	KindUndelegate      Kind = "undelegate"
	KindDelegateBatch   Kind = "delegate_batch"
	KindCycleStarted    Kind = "cycle_started"
	KindBoardFinalized  Kind = "board_finalized"
	KindWeekFunded      Kind = "week_funded"
	KindWeekFinalized   Kind = "week_finalized"
	KindSharesComputed  Kind = "shares_computed"
	KindClaim           Kind = "claim"
	KindCreatorPaid     Kind = "creator_paid"
	KindStakeWrapped    Kind = "stake_wrapped"
	KindUnwrapRequested Kind = "unwrap_requested"
	KindUnwrapCompleted Kind = "unwrap_completed"
	KindEvermarkMinted  Kind = "evermark_minted"
	KindOperationFailed Kind = "operation_failed"
)

// Event is one protocol event row.
type Event struct {
	Seq       uint64
	Time      uint64
	Kind      Kind
	User      evermark.Address
	Candidate uint64
	Cycle     uint64
	Week      uint64
	Amount    *big.Int
	Detail    string
}

// EventFilter selects events; zero fields match everything.
type EventFilter struct {
	Kind     Kind
	User     *evermark.Address
	FromTime uint64
	ToTime   uint64
	Offset   uint64
	Limit    uint64
}
