// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/ipfsnut/evermark-contracts/evermark"
	"github.com/ipfsnut/evermark-contracts/kv"
	"github.com/ipfsnut/evermark-contracts/stackedmap"
)

var (
	balanceBucket = kv.Bucket("b")
	storageBucket = kv.Bucket("s")
)

// Error is the error caused by state access failure.
type Error struct {
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("state: %v", e.cause)
}

// State manages the world state: native token balances plus per-contract storage.
// All mutations are journaled in a stacked map, so any range of changes can be
// reverted to a previously taken checkpoint. Nothing hits the backing store
// until Stage().Commit().
type State struct {
	store kv.GetPutter
	sm    *stackedmap.StackedMap
}

type (
	balanceKey evermark.Address
	storageKey struct {
		addr evermark.Address
		key  evermark.Bytes32
	}
)

// New create state object over the given backing store.
func New(store kv.GetPutter) *State {
	state := State{store: store}
	state.sm = stackedmap.New(func(key any) (any, bool, error) {
		return state.storeGetter(key)
	})

	// the bottom level holds all uncommitted writes
	state.sm.Push()
	return &state
}

// storeGetter implements stackedmap.MapGetter.
func (s *State) storeGetter(key any) (value any, exist bool, err error) {
	switch k := key.(type) {
	case balanceKey: // get balance
		data, err := balanceBucket.NewGetter(s.store).Get(k[:])
		if err != nil {
			if s.store.IsNotFound(err) {
				return &big.Int{}, true, nil
			}
			return nil, false, err
		}
		var bal big.Int
		if err := rlp.DecodeBytes(data, &bal); err != nil {
			return nil, false, err
		}
		return &bal, true, nil
	case storageKey: // get raw storage
		data, err := storageBucket.NewGetter(s.store).Get(append(k.addr.Bytes(), k.key.Bytes()...))
		if err != nil {
			if s.store.IsNotFound(err) {
				return rlp.RawValue(nil), true, nil
			}
			return nil, false, err
		}
		return rlp.RawValue(data), true, nil
	}
	panic(fmt.Errorf("unexpected key type %+v", key))
}

// GetBalance returns native token balance for the given address.
func (s *State) GetBalance(addr evermark.Address) (*big.Int, error) {
	v, _, err := s.sm.Get(balanceKey(addr))
	if err != nil {
		return nil, &Error{err}
	}
	return v.(*big.Int), nil
}

// SetBalance set native token balance for the given address.
func (s *State) SetBalance(addr evermark.Address, balance *big.Int) error {
	s.sm.Put(balanceKey(addr), balance)
	return nil
}

// GetRawStorage gets storage value in rlp raw form.
func (s *State) GetRawStorage(addr evermark.Address, key evermark.Bytes32) (rlp.RawValue, error) {
	v, _, err := s.sm.Get(storageKey{addr, key})
	if err != nil {
		return nil, &Error{err}
	}
	return v.(rlp.RawValue), nil
}

// SetRawStorage set storage value in rlp raw form.
func (s *State) SetRawStorage(addr evermark.Address, key evermark.Bytes32, raw rlp.RawValue) {
	s.sm.Put(storageKey{addr, key}, raw)
}

// GetStorage returns storage value for the given key.
func (s *State) GetStorage(addr evermark.Address, key evermark.Bytes32) (evermark.Bytes32, error) {
	raw, err := s.GetRawStorage(addr, key)
	if err != nil {
		return evermark.Bytes32{}, err
	}
	if len(raw) == 0 {
		return evermark.Bytes32{}, nil
	}
	kind, content, _, err := rlp.Split(raw)
	if err != nil {
		return evermark.Bytes32{}, &Error{err}
	}
	if kind == rlp.List {
		// special case for rlp list, it should be customized storage value
		// return hash of raw data
		return evermark.Blake2b(raw), nil
	}
	return evermark.BytesToBytes32(content), nil
}

// SetStorage set storage value for the given key.
func (s *State) SetStorage(addr evermark.Address, key, value evermark.Bytes32) {
	if value.IsZero() {
		s.SetRawStorage(addr, key, nil)
		return
	}
	v, _ := rlp.EncodeToBytes(trimLeadingZeros(value[:]))
	s.SetRawStorage(addr, key, v)
}

// EncodeStorage set storage value encoded by given enc method.
// An empty encoded value deletes the entry.
func (s *State) EncodeStorage(addr evermark.Address, key evermark.Bytes32, enc func() ([]byte, error)) error {
	raw, err := enc()
	if err != nil {
		return &Error{err}
	}
	s.SetRawStorage(addr, key, raw)
	return nil
}

// DecodeStorage get and decode storage value.
func (s *State) DecodeStorage(addr evermark.Address, key evermark.Bytes32, dec func([]byte) error) error {
	raw, err := s.GetRawStorage(addr, key)
	if err != nil {
		return err
	}
	if err := dec(raw); err != nil {
		return &Error{err}
	}
	return nil
}

// NewCheckpoint makes a checkpoint of current state.
// It returns revision of the checkpoint.
func (s *State) NewCheckpoint() int {
	return s.sm.Push()
}

// RevertTo reverts state to given revision.
func (s *State) RevertTo(revision int) {
	s.sm.PopTo(revision)
}

// Stage makes a stage object to compute final state writes, which can be
// committed to the backing store.
func (s *State) Stage() *Stage {
	changes := make(map[any]any)
	s.sm.Journal(func(key, value any) bool {
		// only the latest value of each key matters
		changes[key] = value
		return true
	})
	return newStage(s.store, changes)
}

func trimLeadingZeros(b []byte) []byte {
	for len(b) > 0 && b[0] == 0 {
		b = b[1:]
	}
	return b
}
