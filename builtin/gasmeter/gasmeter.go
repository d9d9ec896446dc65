// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package gasmeter tallies storage operation costs per contract call. The
// meter keeps a per-opcode breakdown so expensive call paths can be spotted,
// and optionally enforces a hard budget.
package gasmeter

import (
	"fmt"

	"github.com/ipfsnut/evermark-contracts/builtin/reverts"
	"github.com/ipfsnut/evermark-contracts/evermark"
)

type Meter struct {
	budget         uint64 // 0 means unlimited
	sloadOps       uint64
	sstoreSetOps   uint64
	sstoreResetOps uint64
	balanceOps     uint64
	customGas      uint64
	totalGas       uint64
	exceeded       bool
}

// New creates a meter with the given budget. A zero budget disables the limit.
func New(budget uint64) *Meter {
	return &Meter{budget: budget}
}

func (m *Meter) Charge(gas uint64) {
	m.totalGas += gas

	switch {
	// classify multiples of known op costs
	case gas%evermark.SstoreSetGas == 0 && gas > 0:
		m.sstoreSetOps += gas / evermark.SstoreSetGas

	case gas%evermark.SstoreResetGas == 0 && gas > 0:
		m.sstoreResetOps += gas / evermark.SstoreResetGas

	case gas%evermark.GetBalanceGas == 0 && gas > 0:
		m.balanceOps += gas / evermark.GetBalanceGas

	case gas%evermark.SloadGas == 0 && gas > 0:
		m.sloadOps += gas / evermark.SloadGas

	default:
		m.customGas += gas
	}

	if m.budget != 0 && m.totalGas > m.budget {
		m.exceeded = true
	}
}

// Err returns a capacity revert if the budget was exceeded.
func (m *Meter) Err() error {
	if m.exceeded {
		return reverts.Newf(reverts.Capacity, "gas budget exceeded: used %d of %d", m.totalGas, m.budget)
	}
	return nil
}

func (m *Meter) TotalGas() uint64 {
	return m.totalGas
}

func (m *Meter) Breakdown() string {
	return fmt.Sprintf(
		"SLOAD: %d ops (%d gas) | SSTORE_SET: %d ops (%d gas) | SSTORE_RESET: %d ops (%d gas) | BALANCE: %d ops (%d gas) | CUSTOM: %d gas | TOTAL: %d gas",
		m.sloadOps,
		m.sloadOps*evermark.SloadGas,
		m.sstoreSetOps,
		m.sstoreSetOps*evermark.SstoreSetGas,
		m.sstoreResetOps,
		m.sstoreResetOps*evermark.SstoreResetGas,
		m.balanceOps,
		m.balanceOps*evermark.GetBalanceGas,
		m.customGas,
		m.totalGas,
	)
}
