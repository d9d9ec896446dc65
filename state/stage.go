// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/ipfsnut/evermark-contracts/kv"
)

// Stage abstracts the pending writes of a state, ready to be committed
// to the backing store in one batch.
type Stage struct {
	err   error
	batch kv.Batch
}

func newStage(store kv.GetPutter, changes map[any]any) *Stage {
	batch := store.NewBatch()
	balancePutter := balanceBucket.NewPutter(batch)
	storagePutter := storageBucket.NewPutter(batch)

	for key, value := range changes {
		switch k := key.(type) {
		case balanceKey:
			bal := value.(*big.Int)
			if bal.Sign() == 0 {
				if err := balancePutter.Delete(k[:]); err != nil {
					return &Stage{err: err}
				}
				continue
			}
			data, err := rlp.EncodeToBytes(bal)
			if err != nil {
				return &Stage{err: err}
			}
			if err := balancePutter.Put(k[:], data); err != nil {
				return &Stage{err: err}
			}
		case storageKey:
			raw := value.(rlp.RawValue)
			sk := append(k.addr.Bytes(), k.key.Bytes()...)
			if len(raw) == 0 {
				if err := storagePutter.Delete(sk); err != nil {
					return &Stage{err: err}
				}
				continue
			}
			if err := storagePutter.Put(sk, raw); err != nil {
				return &Stage{err: err}
			}
		}
	}
	return &Stage{batch: batch}
}

// Commit commits all changes into the backing store.
func (s *Stage) Commit() error {
	if s.err != nil {
		return &Error{s.err}
	}
	if err := s.batch.Write(); err != nil {
		return &Error{err}
	}
	return nil
}
