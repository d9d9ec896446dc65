// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package token implements the EMARK token contract. Balances live in the
// world state's native balance table; the contract's own storage only tracks
// supply counters, so transfers are plain balance moves.
package token

import (
	"math/big"

	"github.com/ipfsnut/evermark-contracts/builtin/reverts"
	"github.com/ipfsnut/evermark-contracts/builtin/solidity"
	"github.com/ipfsnut/evermark-contracts/evermark"
)

var (
	totalMintedPos = evermark.Blake2b([]byte("total-minted"))
	totalBurnedPos = evermark.Blake2b([]byte("total-burned"))
)

// Token binder of the `EMARK` token contract.
type Token struct {
	context     *solidity.Context
	totalMinted *solidity.Uint256
	totalBurned *solidity.Uint256
}

func New(context *solidity.Context) *Token {
	return &Token{
		context:     context,
		totalMinted: solidity.NewUint256(context, totalMintedPos),
		totalBurned: solidity.NewUint256(context, totalBurnedPos),
	}
}

// BalanceOf returns the EMARK balance of addr.
func (t *Token) BalanceOf(addr evermark.Address) (*big.Int, error) {
	t.context.UseGas(evermark.GetBalanceGas)
	return t.context.State().GetBalance(addr)
}

// TotalSupply returns minted minus burned tokens.
func (t *Token) TotalSupply() (*big.Int, error) {
	minted, err := t.totalMinted.Get()
	if err != nil {
		return nil, err
	}
	burned, err := t.totalBurned.Get()
	if err != nil {
		return nil, err
	}
	return minted.Sub(minted, burned), nil
}

// Mint credits amount to addr and grows the supply.
func (t *Token) Mint(addr evermark.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return reverts.New(reverts.Validation, "token: negative mint amount")
	}
	bal, err := t.BalanceOf(addr)
	if err != nil {
		return err
	}
	if err := t.context.State().SetBalance(addr, new(big.Int).Add(bal, amount)); err != nil {
		return err
	}
	return t.totalMinted.Add(amount)
}

// Burn debits amount from addr and shrinks the supply.
func (t *Token) Burn(addr evermark.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return reverts.New(reverts.Validation, "token: negative burn amount")
	}
	bal, err := t.BalanceOf(addr)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return reverts.New(reverts.State, "token: insufficient balance to burn")
	}
	if err := t.context.State().SetBalance(addr, new(big.Int).Sub(bal, amount)); err != nil {
		return err
	}
	return t.totalBurned.Add(amount)
}

// Transfer moves amount from one account to another. A transfer exceeding
// the sender's balance reverts and changes nothing.
func (t *Token) Transfer(from, to evermark.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return reverts.New(reverts.Validation, "token: negative transfer amount")
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromBal, err := t.BalanceOf(from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return reverts.New(reverts.State, "token: insufficient balance")
	}
	// Debit before the credit read so from == to nets to zero.
	if err := t.context.State().SetBalance(from, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	toBal, err := t.BalanceOf(to)
	if err != nil {
		return err
	}
	return t.context.State().SetBalance(to, new(big.Int).Add(toBal, amount))
}
