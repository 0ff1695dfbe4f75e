// Package testutil holds in-memory stand-ins used by package tests.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ redis.Cmdable = (*FakeRedis)(nil)

// FakeRedis implements the subset of redis.Cmdable the services use.
// Calling any other method panics through the nil embedded interface.
type FakeRedis struct {
	redis.Cmdable

	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
	zsets  map[string]map[string]float64
	Err    error // returned by every command when set
	Pipes  int
}

func NewFakeRedis() *FakeRedis {
	return &FakeRedis{
		values: make(map[string]string),
		ttls:   make(map[string]time.Duration),
		zsets:  make(map[string]map[string]float64),
	}
}

// Value returns the raw string stored at key
func (f *FakeRedis) Value(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok
}

// ExpiryOf returns the expiry recorded for key
func (f *FakeRedis) ExpiryOf(key string) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ttls[key]
}

// Score returns a sorted-set member's score
func (f *FakeRedis) Score(key, member string) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.zsets[key][member]
	return s, ok
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func (f *FakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	if f.Err != nil {
		return redis.NewBoolResult(false, f.Err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = toString(value)
	f.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *FakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.Err != nil {
		return redis.NewStatusResult("", f.Err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = toString(value)
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *FakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.Err != nil {
		return redis.NewStringResult("", f.Err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *FakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	if f.Err != nil {
		return redis.NewIntResult(0, f.Err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			n++
		}
		if _, ok := f.zsets[k]; ok {
			n++
		}
		delete(f.values, k)
		delete(f.ttls, k)
		delete(f.zsets, k)
	}
	return redis.NewIntResult(n, nil)
}

func (f *FakeRedis) Incr(ctx context.Context, key string) *redis.IntCmd {
	if f.Err != nil {
		return redis.NewIntResult(0, f.Err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, _ := strconv.ParseInt(f.values[key], 10, 64)
	n++
	f.values[key] = strconv.FormatInt(n, 10)
	return redis.NewIntResult(n, nil)
}

func (f *FakeRedis) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	if f.Err != nil {
		return redis.NewBoolResult(false, f.Err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.values[key]
	if ok {
		f.ttls[key] = expiration
	}
	return redis.NewBoolResult(ok, nil)
}

func (f *FakeRedis) ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd {
	if f.Err != nil {
		return redis.NewIntResult(0, f.Err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.zsets[key]
	if !ok {
		set = make(map[string]float64)
		f.zsets[key] = set
	}
	var added int64
	for _, m := range members {
		name := toString(m.Member)
		if _, exists := set[name]; !exists {
			added++
		}
		set[name] = m.Score
	}
	return redis.NewIntResult(added, nil)
}

func (f *FakeRedis) ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	if f.Err != nil {
		return redis.NewIntResult(0, f.Err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var removed int64
	for _, m := range members {
		name := toString(m)
		if _, ok := f.zsets[key][name]; ok {
			delete(f.zsets[key], name)
			removed++
		}
	}
	return redis.NewIntResult(removed, nil)
}

// ZRangeByScore supports numeric inclusive bounds only
func (f *FakeRedis) ZRangeByScore(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.StringSliceCmd {
	if f.Err != nil {
		return redis.NewStringSliceResult(nil, f.Err)
	}
	lo, err := strconv.ParseFloat(opt.Min, 64)
	if err != nil {
		return redis.NewStringSliceResult(nil, err)
	}
	hi, err := strconv.ParseFloat(opt.Max, 64)
	if err != nil {
		return redis.NewStringSliceResult(nil, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	type entry struct {
		member string
		score  float64
	}
	var hits []entry
	for m, s := range f.zsets[key] {
		if s >= lo && s <= hi {
			hits = append(hits, entry{m, s})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score < hits[j].score
		}
		return hits[i].member < hits[j].member
	})
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.member
	}
	return redis.NewStringSliceResult(out, nil)
}

// TxPipelined applies queued commands directly; the fake has no partial failures
func (f *FakeRedis) TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	f.Pipes++
	f.mu.Unlock()
	if err := fn(&fakePipe{f: f}); err != nil {
		return nil, err
	}
	return nil, nil
}

type fakePipe struct {
	redis.Pipeliner
	f *FakeRedis
}

func (p *fakePipe) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	return p.f.Set(ctx, key, value, expiration)
}

func (p *fakePipe) ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd {
	return p.f.ZAdd(ctx, key, members...)
}

func (p *fakePipe) ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	return p.f.ZRem(ctx, key, members...)
}
