// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package registry

import (
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/ipfsnut/evermark-contracts/evermark"
	"github.com/ipfsnut/evermark-contracts/state"
)

var (
	_ state.StorageEncoder = (*Entry)(nil)
	_ state.StorageDecoder = (*Entry)(nil)
	_ state.StorageEncoder = (*idPtr)(nil)
	_ state.StorageDecoder = (*idPtr)(nil)
)

// Entry contains all data of a registered Evermark.
type Entry struct {
	Creator  evermark.Address
	Metadata evermark.Bytes32
	MintedAt uint64
	Active   bool
	Prev     *uint64 `rlp:"nil"`
	Next     *uint64 `rlp:"nil"`
}

// Encode implements state.StorageEncoder.
func (e *Entry) Encode() ([]byte, error) {
	if e.IsEmpty() {
		return nil, nil
	}
	return rlp.EncodeToBytes(e)
}

// Decode implements state.StorageDecoder.
func (e *Entry) Decode(data []byte) error {
	if len(data) == 0 {
		*e = Entry{}
		return nil
	}
	return rlp.DecodeBytes(data, e)
}

// IsEmpty returns whether the entry can be treated as empty.
func (e *Entry) IsEmpty() bool {
	return e.Creator.IsZero() &&
		e.Metadata.IsZero() &&
		e.MintedAt == 0 &&
		!e.Active &&
		e.Prev == nil &&
		e.Next == nil
}

// IsLinked returns whether the entry is linked into the candidate list.
func (e *Entry) IsLinked() bool {
	return e.Prev != nil || e.Next != nil
}

type idPtr struct {
	ID *uint64 `rlp:"nil"`
}

// Encode implements state.StorageEncoder.
func (p *idPtr) Encode() ([]byte, error) {
	if p.ID == nil {
		return nil, nil
	}
	return rlp.EncodeToBytes(p)
}

// Decode implements state.StorageDecoder.
func (p *idPtr) Decode(data []byte) error {
	if len(data) == 0 {
		*p = idPtr{}
		return nil
	}
	return rlp.DecodeBytes(data, p)
}
