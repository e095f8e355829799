// Snapshot export/import: a flat, zstd-compressed dump of every deployed
// machine's address, code bytes, and state bytes, for cheap whole-store
// backup/restore without replaying every AT's history.
package store

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/ciyamat/atvm/pkg/atvm/address"
	badger "github.com/dgraph-io/badger/v4"
)

// record is one machine's on-disk entry in a snapshot stream:
// addr(32) || codeLen(u32) || code || stateLen(u32) || state.
func writeRecord(w io.Writer, addr address.Address, code, state []byte) error {
	if _, err := w.Write(addr[:]); err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(code)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(code); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(state)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(state)
	return err
}

func readRecord(r io.Reader) (address.Address, []byte, []byte, error) {
	var addr address.Address
	if _, err := io.ReadFull(r, addr[:]); err != nil {
		return address.Address{}, nil, nil, err
	}
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return address.Address{}, nil, nil, err
	}
	code := make([]byte, binary.BigEndian.Uint32(lenBuf[:]))
	if _, err := io.ReadFull(r, code); err != nil {
		return address.Address{}, nil, nil, err
	}
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return address.Address{}, nil, nil, err
	}
	state := make([]byte, binary.BigEndian.Uint32(lenBuf[:]))
	if _, err := io.ReadFull(r, state); err != nil {
		return address.Address{}, nil, nil, err
	}
	return addr, code, state, nil
}

// ExportSnapshot writes every deployed machine's (address, code, state)
// triple to w, zstd-compressed for compact storage.
func (s *BadgerStore) ExportSnapshot(w io.Writer) error {
	encoder, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("store: snapshot: create zstd encoder: %w", err)
	}
	defer encoder.Close()

	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(codeKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			addr, err := address.AddressFromBytes(key[len(codeKeyPrefix):])
			if err != nil {
				return fmt.Errorf("store: snapshot: malformed key: %w", err)
			}
			code, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			stateItem, err := txn.Get(stateKey(addr))
			if err != nil {
				return fmt.Errorf("store: snapshot: missing state for %s: %w", addr, err)
			}
			state, err := stateItem.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := writeRecord(encoder, addr, code, state); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return encoder.Close()
}

// ImportSnapshot reads a stream produced by ExportSnapshot and restores
// every machine it contains, overwriting any existing entries at the same
// addresses.
func (s *BadgerStore) ImportSnapshot(r io.Reader) (int, error) {
	decoder, err := zstd.NewReader(bufio.NewReader(r))
	if err != nil {
		return 0, fmt.Errorf("store: import snapshot: create zstd decoder: %w", err)
	}
	defer decoder.Close()

	n := 0
	for {
		addr, code, state, err := readRecord(decoder)
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("store: import snapshot: %w", err)
		}
		err = s.db.Update(func(txn *badger.Txn) error {
			_, getErr := txn.Get(codeKey(addr))
			isNew := getErr == badger.ErrKeyNotFound
			if err := txn.Set(codeKey(addr), code); err != nil {
				return err
			}
			if err := txn.Set(stateKey(addr), state); err != nil {
				return err
			}
			if isNew {
				s.count.Add(1)
			}
			return nil
		})
		if err != nil {
			return n, err
		}
		n++
	}
}
