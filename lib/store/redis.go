package store

import (
	"context"
	"errors"
	"fmt"
	"github.com/cyclopcam/connect/lib/registry"
	"github.com/redis/go-redis/v9"
	"sort"
	"time"
)

// DefaultRedisTimeout bounds every Redis round trip.
const DefaultRedisTimeout = 3 * time.Second

// Redis stores records in a hash under <prefix>devices and the last used id
// under <prefix>lastUsed. Insertion order is kept in <prefix>seq.
type Redis struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
}

// NewRedis uses client with keys that start with prefix, e.g. "cyclops:".
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{
		client:  client,
		prefix:  prefix,
		timeout: DefaultRedisTimeout,
	}
}

func (s *Redis) devicesKey() string  { return s.prefix + "devices" }
func (s *Redis) lastUsedKey() string { return s.prefix + "lastUsed" }
func (s *Redis) seqKey() string      { return s.prefix + "seq" }

func (s *Redis) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *Redis) Load() (records []registry.Record, lastUsed string, err error) {
	ctx, cancel := s.context()
	defer cancel()

	values, err := s.client.HGetAll(ctx, s.devicesKey()).Result()
	if err != nil {
		return
	}
	entries := make([]entry, 0, len(values))
	for id, value := range values {
		e, err := decodeEntry([]byte(value))
		if err != nil {
			log.Warnf("Skipping corrupt record %q: %v", id, err)
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Seq < entries[j].Seq
	})
	for _, e := range entries {
		records = append(records, e.Record)
	}

	lastUsed, err = s.client.Get(ctx, s.lastUsedKey()).Result()
	if errors.Is(err, redis.Nil) {
		err = nil
	}
	return
}

// Apply writes all ops in one MULTI/EXEC transaction.
func (s *Redis) Apply(ops []registry.Op) error {
	ctx, cancel := s.context()
	defer cancel()

	seqs := make(map[string]uint64)
	for _, op := range ops {
		if op.Kind == registry.OpDelete {
			continue
		}
		seq, err := s.seqOf(ctx, op.Record.ID)
		if err != nil {
			return err
		}
		seqs[op.Record.ID] = seq
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range ops {
			switch op.Kind {
			case registry.OpInsert, registry.OpUpdate:
				value := encodeEntry(entry{Record: op.Record, Seq: seqs[op.Record.ID]})
				pipe.HSet(ctx, s.devicesKey(), op.Record.ID, value)
			case registry.OpDelete:
				pipe.HDel(ctx, s.devicesKey(), op.Record.ID)
			default:
				return fmt.Errorf("unknown op %v", op.Kind)
			}
		}
		return nil
	})
	return err
}

func (s *Redis) seqOf(ctx context.Context, id string) (uint64, error) {
	value, err := s.client.HGet(ctx, s.devicesKey(), id).Result()
	if errors.Is(err, redis.Nil) {
		seq, err := s.client.Incr(ctx, s.seqKey()).Result()
		return uint64(seq), err
	}
	if err != nil {
		return 0, err
	}
	e, err := decodeEntry([]byte(value))
	if err != nil {
		return 0, err
	}
	return e.Seq, nil
}

func (s *Redis) SetLastUsed(id string) error {
	ctx, cancel := s.context()
	defer cancel()
	if id == "" {
		return s.client.Del(ctx, s.lastUsedKey()).Err()
	}
	return s.client.Set(ctx, s.lastUsedKey(), id, 0).Err()
}

func (s *Redis) Clear() error {
	ctx, cancel := s.context()
	defer cancel()
	return s.client.Del(ctx, s.devicesKey(), s.lastUsedKey(), s.seqKey()).Err()
}

func (s *Redis) Close() error {
	return s.client.Close()
}
