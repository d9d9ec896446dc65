// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package leaderboard

import (
	"encoding/binary"
	"math/big"

	"github.com/ipfsnut/evermark-contracts/evermark"
)

// Entry is one ranked row of a cycle's leaderboard.
type Entry struct {
	CandidateID uint64
	Votes       *big.Int
	Creator     evermark.Address
}

func (e *Entry) normalize() *Entry {
	if e.Votes == nil {
		e.Votes = new(big.Int)
	}
	return e
}

// ranksBefore is the board ordering: descending votes, ties broken by
// ascending candidate id so equal tallies rank deterministically.
func (e *Entry) ranksBefore(other *Entry) bool {
	switch e.Votes.Cmp(other.Votes) {
	case 1:
		return true
	case -1:
		return false
	default:
		return e.CandidateID < other.CandidateID
	}
}

// board is the per-cycle leaderboard metadata.
type board struct {
	Size      uint64
	Finalized bool
}

type mapKey []byte

func (k mapKey) Bytes() []byte { return k }

func u64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func boardKey(cycleID uint64) mapKey {
	return u64(cycleID)
}

func slotKey(cycleID, pos uint64) mapKey {
	return append(u64(cycleID), u64(pos)...)
}

func candidateKey(cycleID, candidateID uint64) mapKey {
	return append(u64(cycleID), u64(candidateID)...)
}
