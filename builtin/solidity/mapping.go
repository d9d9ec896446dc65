// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package solidity

import (
	"reflect"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/ipfsnut/evermark-contracts/evermark"
)

// Key is anything usable as a mapping key.
type Key interface {
	Bytes() []byte
}

// Mapping is a key/value storage abstraction for built-in contracts, similar to the
// mapping in Solidity. Values are RLP encoded; slot positions are derived from the
// base position and the key by hashing, so distinct mappings never collide.
type Mapping[K Key, V any] struct {
	context *Context
	basePos evermark.Bytes32
}

func NewMapping[K Key, V any](context *Context, pos evermark.Bytes32) *Mapping[K, V] {
	return &Mapping[K, V]{context: context, basePos: pos}
}

func (m *Mapping[K, V]) position(key K) evermark.Bytes32 {
	return evermark.Blake2b(key.Bytes(), m.basePos.Bytes())
}

func (m *Mapping[K, V]) Get(key K) (value V, err error) {
	err = m.context.state.DecodeStorage(m.context.address, m.position(key), func(raw []byte) error {
		if reflect.ValueOf(value).Kind() == reflect.Ptr {
			value = reflect.New(reflect.TypeOf(value).Elem()).Interface().(V)
		}
		if len(raw) == 0 {
			return nil
		}
		m.context.UseGas(toWordSize(len(raw)) * evermark.SloadGas)
		return rlp.DecodeBytes(raw, &value)
	})
	return
}

func (m *Mapping[K, V]) Set(key K, value V, newValue bool) error {
	return m.context.state.EncodeStorage(m.context.address, m.position(key), func() ([]byte, error) {
		val, err := rlp.EncodeToBytes(value)
		if err != nil {
			return nil, err
		}
		if newValue {
			m.context.UseGas(toWordSize(len(val)) * evermark.SstoreSetGas)
		} else {
			m.context.UseGas(toWordSize(len(val)) * evermark.SstoreResetGas)
		}
		return val, nil
	})
}

// Delete clears the entry of the given key.
func (m *Mapping[K, V]) Delete(key K) error {
	m.context.UseGas(evermark.SstoreResetGas)
	return m.context.state.EncodeStorage(m.context.address, m.position(key), func() ([]byte, error) {
		return nil, nil
	})
}

// toWordSize converts a byte length to 32-byte words, with a simplified rule:
// anything beyond one word counts as two, since native packages never store
// single values much larger than that.
func toWordSize(length int) uint64 {
	if length > 32 {
		return 2
	}
	return 1
}
