// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package voting

import (
	"encoding/binary"
	"math/big"

	"github.com/ipfsnut/evermark-contracts/evermark"
)

// Cycle is the per-cycle record kept in contract storage.
type Cycle struct {
	StartTime        uint64
	EndTime          uint64
	TotalVotes       *big.Int
	DelegationEvents uint64
	ActiveCount      uint64
	Finalized        bool
}

func (c *Cycle) normalize() *Cycle {
	if c.TotalVotes == nil {
		c.TotalVotes = new(big.Int)
	}
	return c
}

// Open reports whether the cycle accepts votes at the given time.
func (c *Cycle) Open(now uint64) bool {
	return !c.Finalized && now < c.EndTime
}

// mapKey is a composite mapping key assembled from fixed-width parts.
type mapKey []byte

func (k mapKey) Bytes() []byte { return k }

func u64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func cycleKey(cycleID uint64) mapKey {
	return u64(cycleID)
}

// candidate tally within a cycle
func candidateKey(cycleID, candidateID uint64) mapKey {
	return append(u64(cycleID), u64(candidateID)...)
}

// per-user total within a cycle
func userKey(cycleID uint64, user evermark.Address) mapKey {
	return append(u64(cycleID), user.Bytes()...)
}

// (user, candidate) tally within a cycle
func userCandidateKey(cycleID uint64, user evermark.Address, candidateID uint64) mapKey {
	k := append(u64(cycleID), user.Bytes()...)
	return append(k, u64(candidateID)...)
}

// slot of the active-candidate arena
func arenaKey(cycleID, index uint64) mapKey {
	return append(u64(cycleID), u64(index)...)
}
