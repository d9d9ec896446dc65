// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package rewards

import (
	"encoding/binary"
	"math/big"

	"github.com/ipfsnut/evermark-contracts/evermark"
)

// Week is the per-week reward pool record.
type Week struct {
	StartTime    uint64
	EndTime      uint64
	TotalPool    *big.Int
	StakerPool   *big.Int
	CreatorPool  *big.Int
	BasePool     *big.Int
	VariablePool *big.Int
	Finalized    bool
	Distributed  bool // at least one BatchCompute snapshot taken
	CreatorPaid  bool // creator pool forwarded to the leaderboard creators
}

func (w *Week) normalize() *Week {
	for _, p := range []**big.Int{&w.TotalPool, &w.StakerPool, &w.CreatorPool, &w.BasePool, &w.VariablePool} {
		if *p == nil {
			*p = new(big.Int)
		}
	}
	return w
}

// Share is a user's cached reward share for one week, snapshotted at
// distribution time so claims never recompute against a drifted stake total.
type Share struct {
	Base     *big.Int
	Variable *big.Int
	Computed bool
}

func (s *Share) normalize() *Share {
	if s.Base == nil {
		s.Base = new(big.Int)
	}
	if s.Variable == nil {
		s.Variable = new(big.Int)
	}
	return s
}

func (s *Share) total() *big.Int {
	return new(big.Int).Add(s.Base, s.Variable)
}

type mapKey []byte

func (k mapKey) Bytes() []byte { return k }

func u64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func weekKey(weekID uint64) mapKey {
	return u64(weekID)
}

func shareKey(weekID uint64, user evermark.Address) mapKey {
	return append(u64(weekID), user.Bytes()...)
}

// one claim-bitmap word covers 256 weeks
func bitmapKey(user evermark.Address, word uint64) mapKey {
	return append(mapKey(user.Bytes()), u64(word)...)
}
