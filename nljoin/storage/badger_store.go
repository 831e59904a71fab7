package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dgraph-io/badger/v4"
	"github.com/wbrown/janus-nljoin/nljoin/table"
	"golang.org/x/sync/errgroup"
)

// BadgerStore implements Store using BadgerDB
type BadgerStore struct {
	db *badger.DB
}

var _ Store = (*BadgerStore)(nil)

// NewBadgerStore opens or creates a BadgerDB-backed store at path
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	return openBadger(opts)
}

// NewInMemoryBadgerStore creates a store that lives only in memory
func NewInMemoryBadgerStore() (*BadgerStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return openBadger(opts)
}

func openBadger(opts badger.Options) (*BadgerStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// PutTable stores t under name, replacing any table of the same name
func (s *BadgerStore) PutTable(name string, t *table.Table) error {
	if name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("invalid table name %q", name)
	}
	if t == nil {
		return fmt.Errorf("table %s is nil", name)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := deleteTable(txn, name); err != nil {
			return err
		}
		if err := txn.Set(schemaKey(name), encodeSchema(t)); err != nil {
			return fmt.Errorf("failed to write schema of %s: %w", name, err)
		}
		for i, c := range t.Columns() {
			data, err := encodeColumn(c)
			if err != nil {
				return err
			}
			if err := txn.Set(columnKey(name, i), data); err != nil {
				return fmt.Errorf("failed to write column %s of %s: %w", c.Name(), name, err)
			}
		}
		return nil
	})
}

// GetTable loads the table stored under name
func (s *BadgerStore) GetTable(name string) (*table.Table, error) {
	var result *table.Table
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(schemaKey(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errors.Wrapf(ErrTableNotFound, "%s", name)
		}
		if err != nil {
			return err
		}
		var schema storedSchema
		if err := item.Value(func(val []byte) error {
			schema, err = decodeSchema(val)
			return err
		}); err != nil {
			return fmt.Errorf("failed to read schema of %s: %w", name, err)
		}

		if len(schema.fields) == 0 {
			result = table.MustNew()
			return nil
		}
		columns := make([]*table.Column, len(schema.fields))
		for i, f := range schema.fields {
			item, err := txn.Get(columnKey(name, i))
			if err != nil {
				return fmt.Errorf("failed to read column %s of %s: %w", f.Name, name, err)
			}
			if err := item.Value(func(val []byte) error {
				columns[i], err = decodeColumn(f, schema.rows, val)
				return err
			}); err != nil {
				return fmt.Errorf("failed to decode column %s of %s: %w", f.Name, name, err)
			}
		}
		result, err = table.New(columns...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetTables loads several tables concurrently, in the order given
func (s *BadgerStore) GetTables(ctx context.Context, names ...string) ([]*table.Table, error) {
	tables := make([]*table.Table, len(names))
	g, ctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			t, err := s.GetTable(name)
			if err != nil {
				return err
			}
			tables[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tables, nil
}

// ListTables returns the names of all stored tables in key order
func (s *BadgerStore) ListTables() ([]string, error) {
	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(tablePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if name, ok := tableNameFromSchemaKey(it.Item().Key()); ok {
				names = append(names, name)
			}
		}
		return nil
	})
	return names, err
}

// DeleteTable removes a table. Deleting a missing table is not an error.
func (s *BadgerStore) DeleteTable(name string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return deleteTable(txn, name)
	})
}

func deleteTable(txn *badger.Txn, name string) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = tableKeyPrefix(name)
	it := txn.NewIterator(opts)

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, key := range keys {
		if err := txn.Delete(key); err != nil {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}
	return nil
}

// Close closes the store
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
