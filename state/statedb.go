// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package state backs the precompile's StateDB interface with a luxfi
// key-value database, for standalone hosting and for tests that want
// durable state without a full EVM.
package state

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"

	"github.com/luxfi/lxpool/contract"
)

// ErrInsufficientBalance reports a debit larger than the account's balance.
var ErrInsufficientBalance = errors.New("insufficient balance")

// Key prefixes, one namespace per record kind
var (
	storagePrefix = []byte("st")
	balancePrefix = []byte("bal")
	noncePrefix   = []byte("non")
	accountPrefix = []byte("acc")
)

// StateDB implements contract.StateDB over a database.Database. The
// contract interface has no error returns, so database failures are held
// in a sticky error the host checks through Err before committing.
type StateDB struct {
	db  database.Database
	err error
}

var _ contract.StateDB = (*StateDB)(nil)

// New creates a StateDB over [db].
func New(db database.Database) *StateDB {
	return &StateDB{db: db}
}

// Err returns the first database failure seen, if any.
func (s *StateDB) Err() error {
	return s.err
}

func (s *StateDB) fail(err error) {
	if s.err == nil {
		s.err = err
	}
}

func storageKey(addr common.Address, key common.Hash) []byte {
	out := make([]byte, 0, len(storagePrefix)+common.AddressLength+common.HashLength)
	out = append(out, storagePrefix...)
	out = append(out, addr.Bytes()...)
	out = append(out, key.Bytes()...)
	return out
}

func accountKey(prefix []byte, addr common.Address) []byte {
	out := make([]byte, 0, len(prefix)+common.AddressLength)
	out = append(out, prefix...)
	out = append(out, addr.Bytes()...)
	return out
}

// GetState returns the storage slot value, zero when unset.
func (s *StateDB) GetState(addr common.Address, key common.Hash) common.Hash {
	value, err := s.db.Get(storageKey(addr, key))
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			s.fail(err)
		}
		return common.Hash{}
	}
	return common.BytesToHash(value)
}

// SetState writes a storage slot and returns the previous value.
func (s *StateDB) SetState(addr common.Address, key common.Hash, value common.Hash) common.Hash {
	prev := s.GetState(addr, key)

	if value == (common.Hash{}) {
		if err := s.db.Delete(storageKey(addr, key)); err != nil {
			s.fail(err)
		}
		return prev
	}

	if err := s.db.Put(storageKey(addr, key), value.Bytes()); err != nil {
		s.fail(err)
	}
	return prev
}

// GetBalance returns the account's native balance.
func (s *StateDB) GetBalance(addr common.Address) *uint256.Int {
	value, err := s.db.Get(accountKey(balancePrefix, addr))
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			s.fail(err)
		}
		return uint256.NewInt(0)
	}
	return new(uint256.Int).SetBytes(value)
}

func (s *StateDB) setBalance(addr common.Address, balance *uint256.Int) {
	if err := s.db.Put(accountKey(balancePrefix, addr), balance.Bytes()); err != nil {
		s.fail(err)
	}
}

// AddBalance credits the account and returns its previous balance.
func (s *StateDB) AddBalance(addr common.Address, amount *uint256.Int, reason tracing.BalanceChangeReason) uint256.Int {
	prev := s.GetBalance(addr)
	s.setBalance(addr, new(uint256.Int).Add(prev, amount))
	return *prev
}

// SubBalance debits the account and returns its previous balance. A debit
// exceeding the balance leaves it unchanged and records the shortfall in
// the sticky error; silently clamping would erase it from the books.
func (s *StateDB) SubBalance(addr common.Address, amount *uint256.Int, reason tracing.BalanceChangeReason) uint256.Int {
	prev := s.GetBalance(addr)
	if prev.Lt(amount) {
		s.fail(fmt.Errorf("%w: %s has %s, debit %s", ErrInsufficientBalance, addr.Hex(), prev, amount))
		return *prev
	}
	s.setBalance(addr, new(uint256.Int).Sub(prev, amount))
	return *prev
}

// GetNonce returns the account nonce.
func (s *StateDB) GetNonce(addr common.Address) uint64 {
	value, err := s.db.Get(accountKey(noncePrefix, addr))
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			s.fail(err)
		}
		return 0
	}
	return new(uint256.Int).SetBytes(value).Uint64()
}

// SetNonce sets the account nonce.
func (s *StateDB) SetNonce(addr common.Address, nonce uint64, reason tracing.NonceChangeReason) {
	if err := s.db.Put(accountKey(noncePrefix, addr), uint256.NewInt(nonce).Bytes()); err != nil {
		s.fail(err)
	}
}

// Exist reports whether the account was created.
func (s *StateDB) Exist(addr common.Address) bool {
	has, err := s.db.Has(accountKey(accountPrefix, addr))
	if err != nil {
		s.fail(err)
		return false
	}
	return has
}

// CreateAccount marks the account as existing.
func (s *StateDB) CreateAccount(addr common.Address) {
	if err := s.db.Put(accountKey(accountPrefix, addr), []byte{1}); err != nil {
		s.fail(err)
	}
}

// AccessibleState wraps a StateDB for the precompile Run interface.
type AccessibleState struct {
	stateDB contract.StateDB
}

var _ contract.AccessibleState = (*AccessibleState)(nil)

// NewAccessibleState wraps [stateDB].
func NewAccessibleState(stateDB contract.StateDB) *AccessibleState {
	return &AccessibleState{stateDB: stateDB}
}

// GetStateDB returns the wrapped StateDB.
func (a *AccessibleState) GetStateDB() contract.StateDB {
	return a.stateDB
}

// BlockContext is a fixed configuration block context.
type BlockContext struct {
	BlockNumber    uint64
	BlockTimestamp uint64
}

var _ contract.ConfigurationBlockContext = (*BlockContext)(nil)

func (b *BlockContext) Number() uint64 {
	return b.BlockNumber
}

func (b *BlockContext) Timestamp() uint64 {
	return b.BlockTimestamp
}
