// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package stakeledger

import (
	"math/big"
)

// account is the per-user stake record kept in contract storage.
type account struct {
	Staked    *big.Int // wrapped EMARK, counts as voting power
	Delegated *big.Int // power currently reserved by the voting engine
	Unbonding *big.Int // requested for unwrap, excluded from available power
	UnbondAt  uint64   // timestamp at which the unbonding amount matures
}

func (a *account) normalize() *account {
	if a.Staked == nil {
		a.Staked = new(big.Int)
	}
	if a.Delegated == nil {
		a.Delegated = new(big.Int)
	}
	if a.Unbonding == nil {
		a.Unbonding = new(big.Int)
	}
	return a
}

// available is the power not reserved by delegation nor leaving via unbonding.
func (a *account) available() *big.Int {
	avail := new(big.Int).Sub(a.Staked, a.Delegated)
	return avail.Sub(avail, a.Unbonding)
}
