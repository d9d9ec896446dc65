// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package evermark

import "math/big"

// Constants of the protocol.
const (
	CycleDuration uint64 = 7 * 24 * 3600 // (unit: second) length of a voting cycle.
	WeekDuration  uint64 = 7 * 24 * 3600 // (unit: second) length of a reward week.
	UnbondPeriod  uint64 = 7 * 24 * 3600 // (unit: second) delay between unwrap request and release.

	MaxActivePerCycle  = 1000 // upper bound of candidates receiving votes within one cycle.
	MaxLeaderboardSize = 100  // entries kept per finalized leaderboard.
	MaxPageSize        = 50   // upper bound of one leaderboard page read.
	MaxBatchSize       = 20   // upper bound of delegateBatch / batchCompute input arrays.

	// reward pool split ratios, in basis points.
	StakerPoolBps = 6000 // of the total pool; remainder goes to creators.
	BasePoolBps   = 5000 // of the staker pool; remainder is the variable pool.
	BpsDenominator = 10000

	// storage op pricing for the gas meter.
	SloadGas       uint64 = 200
	SstoreSetGas   uint64 = 20000
	SstoreResetGas uint64 = 5000
	GetBalanceGas  uint64 = 400
)

// Keys of governance params.
var (
	KeyCycleDuration  = BytesToBytes32([]byte("cycle-duration"))
	KeyUnbondPeriod   = BytesToBytes32([]byte("unbond-period"))
	KeyStakerPoolBps  = BytesToBytes32([]byte("staker-pool-bps"))
	KeyBasePoolBps    = BytesToBytes32([]byte("base-pool-bps"))
	KeyExecutor       = BytesToBytes32([]byte("executor-address"))

	InitialTokenSupply = new(big.Int).Mul(big.NewInt(1e9), big.NewInt(1e18)) // 1B EMARK
)
