// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package solidity

import (
	"github.com/ipfsnut/evermark-contracts/evermark"
)

// Address is a wrapper for storage and retrieval of an address. Similar to storing an address in a smart contract.
// It can also be accessed directly in the relevant built-in contract if declared in the same `pos`
type Address struct {
	context *Context
	pos     evermark.Bytes32
}

func NewAddress(context *Context, pos evermark.Bytes32) *Address {
	return &Address{context: context, pos: pos}
}

func (a *Address) Get() (evermark.Address, error) {
	a.context.UseGas(evermark.SloadGas)
	storage, err := a.context.state.GetStorage(a.context.address, a.pos)
	if err != nil {
		return evermark.Address{}, err
	}
	return evermark.BytesToAddress(storage.Bytes()), nil
}

func (a *Address) Set(addr *evermark.Address) {
	var storage evermark.Bytes32
	if addr != nil {
		storage = evermark.BytesToBytes32(addr.Bytes())
		a.context.UseGas(evermark.SstoreSetGas)
	} else {
		a.context.UseGas(evermark.SstoreResetGas)
	}
	a.context.state.SetStorage(a.context.address, a.pos, storage)
}
