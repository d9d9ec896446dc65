// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package stakeledger implements the stake ledger contract. Users wrap EMARK
// into voting power; the voting engine reserves and releases that power in
// deltas, and unwrapping runs through a timed unbonding period.
package stakeledger

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/ipfsnut/evermark-contracts/builtin/reverts"
	"github.com/ipfsnut/evermark-contracts/builtin/solidity"
	"github.com/ipfsnut/evermark-contracts/evermark"
	"github.com/ipfsnut/evermark-contracts/log"
)

var (
	logger = log.WithContext("pkg", "stakeledger")

	slotAccounts   = evermark.BytesToBytes32([]byte("accounts"))
	totalStakedPos = evermark.Blake2b([]byte("total-staked"))
)

// TokenTransfer is the slice of the token contract the ledger needs.
type TokenTransfer interface {
	Transfer(from, to evermark.Address, amount *big.Int) error
}

// Ledger implements native methods of the `StakeLedger` contract.
type Ledger struct {
	context      *solidity.Context
	token        TokenTransfer
	accounts     *solidity.Mapping[evermark.Address, *account]
	totalStaked  *solidity.Uint256
	unbondPeriod uint64
}

// New create a new instance. unbondPeriod is in seconds.
func New(context *solidity.Context, token TokenTransfer, unbondPeriod uint64) *Ledger {
	return &Ledger{
		context:      context,
		token:        token,
		accounts:     solidity.NewMapping[evermark.Address, *account](context, slotAccounts),
		totalStaked:  solidity.NewUint256(context, totalStakedPos),
		unbondPeriod: unbondPeriod,
	}
}

func (l *Ledger) getAccount(user evermark.Address) (*account, error) {
	acc, err := l.accounts.Get(user)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get stake account")
	}
	return acc.normalize(), nil
}

func (l *Ledger) setAccount(user evermark.Address, acc *account) error {
	if acc.Staked.Sign() == 0 && acc.Delegated.Sign() == 0 && acc.Unbonding.Sign() == 0 {
		return l.accounts.Delete(user)
	}
	return l.accounts.Set(user, acc, false)
}

// Wrap locks amount of the user's EMARK into voting power.
func (l *Ledger) Wrap(user evermark.Address, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return reverts.New(reverts.Validation, "stakeledger: wrap amount must be positive")
	}
	if err := l.token.Transfer(user, l.context.Address(), amount); err != nil {
		return err
	}
	acc, err := l.getAccount(user)
	if err != nil {
		return err
	}
	acc.Staked.Add(acc.Staked, amount)
	if err := l.setAccount(user, acc); err != nil {
		return err
	}
	if err := l.totalStaked.Add(amount); err != nil {
		return err
	}
	logger.Info("wrapped stake", "user", user, "amount", amount)
	return nil
}

// RequestUnwrap starts unbonding amount of the user's undelegated stake.
// A new request restarts the unbonding clock for the whole pending amount.
func (l *Ledger) RequestUnwrap(user evermark.Address, amount *big.Int, now uint64) error {
	if amount.Sign() <= 0 {
		return reverts.New(reverts.Validation, "stakeledger: unwrap amount must be positive")
	}
	acc, err := l.getAccount(user)
	if err != nil {
		return err
	}
	if acc.available().Cmp(amount) < 0 {
		return reverts.Newf(reverts.State, "stakeledger: unwrap %v exceeds available power %v", amount, acc.available())
	}
	acc.Unbonding.Add(acc.Unbonding, amount)
	acc.UnbondAt = now + l.unbondPeriod
	if err := l.setAccount(user, acc); err != nil {
		return err
	}
	logger.Info("unwrap requested", "user", user, "amount", amount, "maturesAt", acc.UnbondAt)
	return nil
}

// CompleteUnwrap releases the matured unbonding amount back to the user.
func (l *Ledger) CompleteUnwrap(user evermark.Address, now uint64) (*big.Int, error) {
	acc, err := l.getAccount(user)
	if err != nil {
		return nil, err
	}
	if acc.Unbonding.Sign() == 0 {
		return nil, reverts.New(reverts.State, "stakeledger: nothing unbonding")
	}
	if now < acc.UnbondAt {
		return nil, reverts.Newf(reverts.State, "stakeledger: unbonding matures at %d", acc.UnbondAt)
	}

	amount := new(big.Int).Set(acc.Unbonding)
	acc.Staked.Sub(acc.Staked, amount)
	acc.Unbonding.SetInt64(0)
	acc.UnbondAt = 0
	if err := l.setAccount(user, acc); err != nil {
		return nil, err
	}
	if err := l.totalStaked.Sub(amount); err != nil {
		return nil, err
	}
	if err := l.token.Transfer(l.context.Address(), user, amount); err != nil {
		return nil, err
	}
	logger.Info("unwrap completed", "user", user, "amount", amount)
	return amount, nil
}

// Reserve marks amount of the user's power as delegated. The voting engine
// calls this per delegation delta, so concurrent deltas never overwrite.
func (l *Ledger) Reserve(user evermark.Address, amount *big.Int) error {
	acc, err := l.getAccount(user)
	if err != nil {
		return err
	}
	if acc.available().Cmp(amount) < 0 {
		return reverts.Newf(reverts.State, "stakeledger: reserve %v exceeds available power %v", amount, acc.available())
	}
	acc.Delegated.Add(acc.Delegated, amount)
	return l.setAccount(user, acc)
}

// Release returns amount of delegated power to the user's available balance.
func (l *Ledger) Release(user evermark.Address, amount *big.Int) error {
	acc, err := l.getAccount(user)
	if err != nil {
		return err
	}
	if acc.Delegated.Cmp(amount) < 0 {
		return reverts.Newf(reverts.State, "stakeledger: release %v exceeds delegated power %v", amount, acc.Delegated)
	}
	acc.Delegated.Sub(acc.Delegated, amount)
	return l.setAccount(user, acc)
}

// AvailablePower returns the user's undelegated, non-unbonding power.
func (l *Ledger) AvailablePower(user evermark.Address) (*big.Int, error) {
	acc, err := l.getAccount(user)
	if err != nil {
		return nil, err
	}
	return acc.available(), nil
}

// TotalPower returns the user's full staked balance.
func (l *Ledger) TotalPower(user evermark.Address) (*big.Int, error) {
	acc, err := l.getAccount(user)
	if err != nil {
		return nil, err
	}
	return acc.Staked, nil
}

// DelegatedPower returns the user's currently reserved power.
func (l *Ledger) DelegatedPower(user evermark.Address) (*big.Int, error) {
	acc, err := l.getAccount(user)
	if err != nil {
		return nil, err
	}
	return acc.Delegated, nil
}

// TotalStaked returns the sum of all staked balances.
func (l *Ledger) TotalStaked() (*big.Int, error) {
	return l.totalStaked.Get()
}
