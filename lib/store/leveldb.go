package store

import (
	"errors"
	"fmt"
	"github.com/cyclopcam/connect/lib/registry"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
	"sort"
	"sync"
)

var (
	devicePrefix = []byte("device/")
	lastUsedKey  = []byte("pref/lastUsed")
)

func deviceKey(id string) []byte {
	return append(append([]byte(nil), devicePrefix...), id...)
}

// LevelDB stores records in a LevelDB database.
type LevelDB struct {
	mu      sync.Mutex
	db      *leveldb.DB
	nextSeq uint64
}

// OpenLevelDB opens or creates the database in the directory path.
func OpenLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open %v: %w", path, err)
	}
	s, err := NewLevelDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewLevelDB uses an open database. The store owns it from then on.
func NewLevelDB(db *leveldb.DB) (*LevelDB, error) {
	s := &LevelDB{db: db}
	entries, err := s.entries()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Seq >= s.nextSeq {
			s.nextSeq = e.Seq + 1
		}
	}
	return s, nil
}

func (s *LevelDB) entries() (entries []entry, err error) {
	iter := s.db.NewIterator(util.BytesPrefix(devicePrefix), nil)
	defer iter.Release()
	for iter.Next() {
		e, err := decodeEntry(iter.Value())
		if err != nil {
			log.Warnf("Skipping corrupt record %q: %v", iter.Key(), err)
			continue
		}
		entries = append(entries, e)
	}
	err = iter.Error()
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Seq < entries[j].Seq
	})
	return
}

func (s *LevelDB) Load() (records []registry.Record, lastUsed string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.entries()
	if err != nil {
		return
	}
	for _, e := range entries {
		records = append(records, e.Record)
	}
	value, err := s.db.Get(lastUsedKey, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		err = nil
	}
	lastUsed = string(value)
	return
}

// Apply writes all ops in a single batch. A record that already exists
// keeps its position in the load order.
func (s *LevelDB) Apply(ops []registry.Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := new(leveldb.Batch)
	for _, op := range ops {
		key := deviceKey(op.Record.ID)
		switch op.Kind {
		case registry.OpInsert, registry.OpUpdate:
			seq, err := s.seqOf(key)
			if err != nil {
				return err
			}
			batch.Put(key, encodeEntry(entry{Record: op.Record, Seq: seq}))
		case registry.OpDelete:
			batch.Delete(key)
		default:
			return fmt.Errorf("unknown op %v", op.Kind)
		}
	}
	return s.db.Write(batch, nil)
}

func (s *LevelDB) seqOf(key []byte) (uint64, error) {
	value, err := s.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		seq := s.nextSeq
		s.nextSeq++
		return seq, nil
	}
	if err != nil {
		return 0, err
	}
	e, err := decodeEntry(value)
	if err != nil {
		return 0, err
	}
	return e.Seq, nil
}

func (s *LevelDB) SetLastUsed(id string) error {
	if id == "" {
		return s.db.Delete(lastUsedKey, nil)
	}
	return s.db.Put(lastUsedKey, []byte(id), nil)
}

func (s *LevelDB) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := new(leveldb.Batch)
	iter := s.db.NewIterator(nil, nil)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return err
	}
	s.nextSeq = 0
	return s.db.Write(batch, nil)
}

func (s *LevelDB) Close() error {
	return s.db.Close()
}
