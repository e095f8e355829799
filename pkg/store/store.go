// Package store persists AT machine state across rounds using BadgerDB,
// keyed by the AT's address: a *badger.DB wrapped with a prefixed-key
// scheme and an atomic row counter, with a
// `var _ Store = (*BadgerStore)(nil)` interface assertion. Code bytes are
// written once at deploy time and never touched again (code bytes are
// never mutated by execution), while state bytes are rewritten every round
// via pkg/atvm/serialize.
package store

import (
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/ciyamat/atvm/pkg/atvm/address"
	"github.com/ciyamat/atvm/pkg/atvm/machine"
	"github.com/ciyamat/atvm/pkg/atvm/serialize"
)

const (
	codeKeyPrefix  = "code:"
	stateKeyPrefix = "state:"
)

// Store is the interface the RPC and CLI layers depend on, satisfied by
// BadgerStore.
type Store interface {
	Deploy(addr address.Address, creationBytes []byte) error
	Load(addr address.Address) (*machine.Machine, error)
	Save(addr address.Address, m *machine.Machine) error
	Has(addr address.Address) bool
	Count() uint64
	Close() error
}

// BadgerStore is a persistent Store backed by BadgerDB.
type BadgerStore struct {
	db    *badger.DB
	count atomic.Uint64
}

// NewBadgerStore opens (or creates) a BadgerDB-backed store at path.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger db: %w", err)
	}

	s := &BadgerStore{db: db}
	n, err := s.countMachines()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: count machines: %w", err)
	}
	s.count.Store(n)
	return s, nil
}

func codeKey(addr address.Address) []byte {
	key := make([]byte, len(codeKeyPrefix)+32)
	copy(key, codeKeyPrefix)
	copy(key[len(codeKeyPrefix):], addr[:])
	return key
}

func stateKey(addr address.Address) []byte {
	key := make([]byte, len(stateKeyPrefix)+32)
	copy(key, stateKeyPrefix)
	copy(key[len(stateKeyPrefix):], addr[:])
	return key
}

// Deploy parses creationBytes (the wire format for standing up a new AT),
// stores its code bytes once, and writes the fresh machine's initial state
// bytes.
func (s *BadgerStore) Deploy(addr address.Address, creationBytes []byte) error {
	m, err := serialize.FromCreationBytes(creationBytes)
	if err != nil {
		return fmt.Errorf("store: parse creation bytes: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(codeKey(addr))
		isNew := err == badger.ErrKeyNotFound
		if err := txn.Set(codeKey(addr), m.Code); err != nil {
			return err
		}
		if err := txn.Set(stateKey(addr), serialize.ToStateBytes(m)); err != nil {
			return err
		}
		if isNew {
			s.count.Add(1)
		}
		return nil
	})
}

// Load reconstructs the machine at addr from its stored code and state
// bytes.
func (s *BadgerStore) Load(addr address.Address) (*machine.Machine, error) {
	var code, state []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(codeKey(addr))
		if err != nil {
			return err
		}
		code, err = item.ValueCopy(nil)
		if err != nil {
			return err
		}
		item, err = txn.Get(stateKey(addr))
		if err != nil {
			return err
		}
		state, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, fmt.Errorf("store: no machine at %s", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("store: load %s: %w", addr, err)
	}
	return serialize.FromStateBytes(state, code)
}

// Save rewrites the state bytes for the machine at addr (code bytes are
// invariant and are not touched).
func (s *BadgerStore) Save(addr address.Address, m *machine.Machine) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(stateKey(addr), serialize.ToStateBytes(m))
	})
}

// Has reports whether a machine is deployed at addr.
func (s *BadgerStore) Has(addr address.Address) bool {
	var exists bool
	s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(stateKey(addr))
		exists = err == nil
		return nil
	})
	return exists
}

// Count returns the number of deployed machines.
func (s *BadgerStore) Count() uint64 {
	return s.count.Load()
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) countMachines() (uint64, error) {
	var n uint64
	prefix := []byte(codeKeyPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

var _ Store = (*BadgerStore)(nil)
