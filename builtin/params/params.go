// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package params implements the governance parameter contract. Parameters are
// big integers keyed by well-known slots; only the executor may change them.
package params

import (
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/ipfsnut/evermark-contracts/builtin/reverts"
	"github.com/ipfsnut/evermark-contracts/builtin/solidity"
	"github.com/ipfsnut/evermark-contracts/evermark"
)

// Params binder of the `Params` contract.
type Params struct {
	context *Context
}

type Context = solidity.Context

func New(context *solidity.Context) *Params {
	return &Params{context: context}
}

// Get retrieves the parameter stored under key, zero when unset.
func (p *Params) Get(key evermark.Bytes32) (*big.Int, error) {
	var v big.Int
	p.context.UseGas(evermark.SloadGas)
	err := p.context.State().DecodeStorage(p.context.Address(), key, func(raw []byte) error {
		if len(raw) == 0 {
			return nil
		}
		return rlp.DecodeBytes(raw, &v)
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Set stores value under key without authorization checks. Callers are
// expected to go through SetByExecutor outside of genesis.
func (p *Params) Set(key evermark.Bytes32, value *big.Int) error {
	p.context.UseGas(evermark.SstoreSetGas)
	return p.context.State().EncodeStorage(p.context.Address(), key, func() ([]byte, error) {
		if value.Sign() == 0 {
			return nil, nil
		}
		return rlp.EncodeToBytes(value)
	})
}

// SetByExecutor stores value under key after verifying the caller is the
// executor address recorded in the contract.
func (p *Params) SetByExecutor(caller evermark.Address, key evermark.Bytes32, value *big.Int) error {
	executor, err := p.Executor()
	if err != nil {
		return err
	}
	if caller != executor {
		return reverts.New(reverts.State, "params: caller is not the executor")
	}
	return p.Set(key, value)
}

// Executor returns the address allowed to change parameters.
func (p *Params) Executor() (evermark.Address, error) {
	v, err := p.Get(evermark.KeyExecutor)
	if err != nil {
		return evermark.Address{}, err
	}
	return evermark.BytesToAddress(v.Bytes()), nil
}

// SetExecutor records the executor address. Meant for genesis wiring.
func (p *Params) SetExecutor(executor evermark.Address) error {
	return p.Set(evermark.KeyExecutor, new(big.Int).SetBytes(executor.Bytes()))
}
