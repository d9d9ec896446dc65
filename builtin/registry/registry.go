// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package registry implements the Evermark candidate registry. Minted
// Evermarks are linked into a doubly linked list in contract storage, so the
// full candidate set can be walked without an index and individual entries
// can be revoked in O(1).
package registry

import (
	"math/big"

	"github.com/ipfsnut/evermark-contracts/builtin/reverts"
	"github.com/ipfsnut/evermark-contracts/builtin/solidity"
	"github.com/ipfsnut/evermark-contracts/evermark"
)

var (
	headKey   = evermark.Blake2b([]byte("head"))
	tailKey   = evermark.Blake2b([]byte("tail"))
	nextIDKey = evermark.Blake2b([]byte("next-id"))
	countKey  = evermark.Blake2b([]byte("count"))
)

// Registry implements native methods of the `EvermarkRegistry` contract.
type Registry struct {
	context *solidity.Context
}

// New create a new instance.
func New(context *solidity.Context) *Registry {
	return &Registry{context: context}
}

func entryKey(id uint64) evermark.Bytes32 {
	return evermark.Blake2b([]byte("entry"), evermark.Uint64ToBytes32(id).Bytes())
}

func (r *Registry) getEntry(id uint64) (*Entry, error) {
	var entry Entry
	r.context.UseGas(evermark.SloadGas)
	if err := r.context.State().DecodeStorage(r.context.Address(), entryKey(id), entry.Decode); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *Registry) setEntry(id uint64, entry *Entry) error {
	r.context.UseGas(evermark.SstoreSetGas)
	return r.context.State().EncodeStorage(r.context.Address(), entryKey(id), entry.Encode)
}

func (r *Registry) getIDPtr(key evermark.Bytes32) (*uint64, error) {
	var ptr idPtr
	r.context.UseGas(evermark.SloadGas)
	if err := r.context.State().DecodeStorage(r.context.Address(), key, ptr.Decode); err != nil {
		return nil, err
	}
	return ptr.ID, nil
}

func (r *Registry) setIDPtr(key evermark.Bytes32, id *uint64) error {
	r.context.UseGas(evermark.SstoreResetGas)
	ptr := idPtr{ID: id}
	return r.context.State().EncodeStorage(r.context.Address(), key, ptr.Encode)
}

func (r *Registry) getCounter(key evermark.Bytes32) (uint64, error) {
	v, err := solidity.NewUint256(r.context, key).Get()
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

func (r *Registry) setCounter(key evermark.Bytes32, v uint64) {
	solidity.NewUint256(r.context, key).Set(new(big.Int).SetUint64(v))
}

// Mint registers a new Evermark for creator and returns its id. Ids start at
// 1 and never repeat, even across revocations.
func (r *Registry) Mint(creator evermark.Address, metadata evermark.Bytes32, now uint64) (uint64, error) {
	if creator.IsZero() {
		return 0, reverts.New(reverts.Validation, "registry: zero creator address")
	}

	id, err := r.getCounter(nextIDKey)
	if err != nil {
		return 0, err
	}
	id++
	r.setCounter(nextIDKey, id)

	entry := &Entry{
		Creator:  creator,
		Metadata: metadata,
		MintedAt: now,
		Active:   true,
	}

	tailPtr, err := r.getIDPtr(tailKey)
	if err != nil {
		return 0, err
	}
	entry.Prev = tailPtr

	if err := r.setIDPtr(tailKey, &id); err != nil {
		return 0, err
	}
	if tailPtr == nil {
		if err := r.setIDPtr(headKey, &id); err != nil {
			return 0, err
		}
	} else {
		tailEntry, err := r.getEntry(*tailPtr)
		if err != nil {
			return 0, err
		}
		tailEntry.Next = &id
		if err := r.setEntry(*tailPtr, tailEntry); err != nil {
			return 0, err
		}
	}

	if err := r.setEntry(id, entry); err != nil {
		return 0, err
	}

	count, err := r.getCounter(countKey)
	if err != nil {
		return 0, err
	}
	r.setCounter(countKey, count+1)
	return id, nil
}

// Exists reports whether id refers to an active Evermark.
func (r *Registry) Exists(id uint64) (bool, error) {
	entry, err := r.getEntry(id)
	if err != nil {
		return false, err
	}
	return entry.Active, nil
}

// Get returns the full entry of id, empty when never minted.
func (r *Registry) Get(id uint64) (*Entry, error) {
	return r.getEntry(id)
}

// CreatorOf resolves the creator of an active Evermark.
func (r *Registry) CreatorOf(id uint64) (evermark.Address, error) {
	entry, err := r.getEntry(id)
	if err != nil {
		return evermark.Address{}, err
	}
	if !entry.Active {
		return evermark.Address{}, reverts.Newf(reverts.State, "registry: evermark %d does not exist", id)
	}
	return entry.Creator, nil
}

// Revoke deactivates an Evermark and unlinks it from the candidate list.
// The entry itself is kept so the id can still be resolved historically.
func (r *Registry) Revoke(id uint64) error {
	entry, err := r.getEntry(id)
	if err != nil {
		return err
	}
	if !entry.Active {
		return reverts.Newf(reverts.State, "registry: evermark %d does not exist", id)
	}

	if entry.Prev == nil {
		if err := r.setIDPtr(headKey, entry.Next); err != nil {
			return err
		}
	} else {
		prev, err := r.getEntry(*entry.Prev)
		if err != nil {
			return err
		}
		prev.Next = entry.Next
		if err := r.setEntry(*entry.Prev, prev); err != nil {
			return err
		}
	}
	if entry.Next == nil {
		if err := r.setIDPtr(tailKey, entry.Prev); err != nil {
			return err
		}
	} else {
		next, err := r.getEntry(*entry.Next)
		if err != nil {
			return err
		}
		next.Prev = entry.Prev
		if err := r.setEntry(*entry.Next, next); err != nil {
			return err
		}
	}

	entry.Active = false
	entry.Prev = nil
	entry.Next = nil
	if err := r.setEntry(id, entry); err != nil {
		return err
	}

	count, err := r.getCounter(countKey)
	if err != nil {
		return err
	}
	r.setCounter(countKey, count-1)
	return nil
}

// First returns the id of the first active Evermark, nil when none.
func (r *Registry) First() (*uint64, error) {
	return r.getIDPtr(headKey)
}

// Next returns the id following id in the candidate list, nil at the end.
func (r *Registry) Next(id uint64) (*uint64, error) {
	entry, err := r.getEntry(id)
	if err != nil {
		return nil, err
	}
	return entry.Next, nil
}

// Count returns the number of active Evermarks.
func (r *Registry) Count() (uint64, error) {
	return r.getCounter(countKey)
}
