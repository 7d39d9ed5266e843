package redis

import (
	"context"

	"github.com/kailas-cloud/omnisource/internal/db"
)

// RPush appends a value to the end of a list.
func (s *Store) RPush(ctx context.Context, key string, value []byte) error {
	cmd := s.b().Rpush().Key(key).Element(string(value)).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpRPush, Err: err}
	}
	return nil
}

// LRange returns list elements between start and stop (inclusive, negative
// indexes count from the tail as in Redis).
func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	cmd := s.b().Lrange().Key(key).Start(start).Stop(stop).Build()
	rows, err := s.do(ctx, cmd).AsStrSlice()
	if err != nil {
		return nil, &db.Error{Op: db.OpLRange, Err: err}
	}
	out := make([][]byte, len(rows))
	for i, r := range rows {
		out[i] = []byte(r)
	}
	return out, nil
}

// LLen returns the length of a list. Missing keys report zero.
func (s *Store) LLen(ctx context.Context, key string) (int64, error) {
	cmd := s.b().Llen().Key(key).Build()
	n, err := s.do(ctx, cmd).AsInt64()
	if err != nil {
		return 0, &db.Error{Op: db.OpLLen, Err: err}
	}
	return n, nil
}

// LSet overwrites the element at the given index.
func (s *Store) LSet(ctx context.Context, key string, index int64, value []byte) error {
	cmd := s.b().Lset().Key(key).Index(index).Element(string(value)).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "no such key") || isRedisErr(err, "index out of range") {
			return db.ErrKeyNotFound
		}
		return &db.Error{Op: db.OpLSet, Err: err}
	}
	return nil
}
