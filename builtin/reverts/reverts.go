// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package reverts defines the error type returned when a contract operation
// rejects its input or cannot proceed, as opposed to an infrastructure fault.
// Reverts abort the calling transaction and roll back its state changes.
package reverts

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation reverted.
type Kind int

const (
	// Validation rejects malformed or out-of-range input.
	Validation Kind = iota
	// State rejects an operation not permitted in the current state.
	State
	// Capacity rejects an operation that would exceed a structural bound.
	Capacity
	// Collaborator reports a failed call into a dependent contract.
	Collaborator
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case State:
		return "state"
	case Capacity:
		return "capacity"
	case Collaborator:
		return "collaborator"
	default:
		return "unknown"
	}
}

type ErrRevert struct {
	kind    Kind
	message string
}

func New(kind Kind, message string) *ErrRevert {
	return &ErrRevert{
		kind:    kind,
		message: message,
	}
}

func Newf(kind Kind, format string, args ...any) *ErrRevert {
	return &ErrRevert{
		kind:    kind,
		message: fmt.Sprintf(format, args...),
	}
}

func (e *ErrRevert) Error() string {
	return e.message
}

func (e *ErrRevert) Kind() Kind {
	return e.kind
}

func IsRevertErr(err any) bool {
	if err == nil {
		return false
	}
	e, ok := err.(error)
	if !ok {
		return false
	}
	var ve *ErrRevert
	return errors.As(e, &ve)
}

// KindOf returns the revert kind of err, or false if err is not a revert.
func KindOf(err error) (Kind, bool) {
	var ve *ErrRevert
	if errors.As(err, &ve) {
		return ve.kind, true
	}
	return 0, false
}
