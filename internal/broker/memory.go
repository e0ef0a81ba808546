package broker

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"sync"
	"time"

	pipeerrors "github.com/riverlane-stream/live-pipeline/internal/errors"
)

// MemoryBroker is an in-process Broker implementation for unit tests. It
// honors the same ordering, blocking-read, and TTL semantics as the Redis
// backend, but keeps everything in memory under a single mutex.
type MemoryBroker struct {
	mu sync.Mutex

	logs     map[string][]LogEntry
	seq      int64
	hashes   map[string]map[string]string
	expiries map[string]time.Time
	subs     map[string][]chan string
}

// NewMemoryBroker returns an empty MemoryBroker ready for use.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		logs:     make(map[string][]LogEntry),
		hashes:   make(map[string]map[string]string),
		expiries: make(map[string]time.Time),
		subs:     make(map[string][]chan string),
	}
}

func (b *MemoryBroker) nextID() string {
	b.seq++
	return strconv.FormatInt(b.seq, 10)
}

func (b *MemoryBroker) Append(ctx context.Context, log string, fields map[string]string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID()
	cp := make(map[string]string, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	b.logs[log] = append(b.logs[log], LogEntry{ID: id, Fields: cp})
	return id, nil
}

// ReadFrom returns entries with ID greater than after ("$" means: only
// entries appended after this call), blocking up to block for at least
// one entry to appear.
func (b *MemoryBroker) ReadFrom(ctx context.Context, log, after string, block time.Duration) ([]LogEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var cursor int64
	if after == "$" {
		cursor = b.seq
	} else {
		v, err := strconv.ParseInt(after, 10, 64)
		if err != nil {
			return nil, pipeerrors.NewBrokerError("readFrom:"+log, fmt.Errorf("bad cursor %q: %w", after, err))
		}
		cursor = v
	}

	deadline := time.Now().Add(block)
	const pollInterval = 5 * time.Millisecond
	for {
		entries := b.entriesAfterLocked(log, cursor)
		if len(entries) > 0 {
			return entries, nil
		}
		if block <= 0 {
			return nil, nil
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		b.mu.Unlock()
		select {
		case <-ctx.Done():
			b.mu.Lock()
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
		b.mu.Lock()
	}
}

// entriesAfterLocked returns log entries with an ID greater than cursor.
// b.logs[log] is always in append (and therefore ID) order already.
func (b *MemoryBroker) entriesAfterLocked(log string, cursor int64) []LogEntry {
	var out []LogEntry
	for _, e := range b.logs[log] {
		id, _ := strconv.ParseInt(e.ID, 10, 64)
		if id > cursor {
			out = append(out, e)
		}
	}
	return out
}

func (b *MemoryBroker) hashLocked(key string) map[string]string {
	h, ok := b.hashes[key]
	if !ok {
		h = make(map[string]string)
		b.hashes[key] = h
	}
	return h
}

func (b *MemoryBroker) expiredLocked(key string) bool {
	exp, ok := b.expiries[key]
	if !ok {
		return false
	}
	if time.Now().After(exp) {
		delete(b.hashes, key)
		delete(b.expiries, key)
		return true
	}
	return false
}

func (b *MemoryBroker) HSet(ctx context.Context, key, field, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expiredLocked(key)
	b.hashLocked(key)[field] = value
	return nil
}

func (b *MemoryBroker) HGet(ctx context.Context, key, field string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.expiredLocked(key) {
		return "", false, nil
	}
	v, ok := b.hashLocked(key)[field]
	return v, ok, nil
}

func (b *MemoryBroker) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.expiredLocked(key) {
		return map[string]string{}, nil
	}
	src := b.hashLocked(key)
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out, nil
}

func (b *MemoryBroker) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expiredLocked(key)
	h := b.hashLocked(key)
	cur, _ := strconv.ParseInt(h[field], 10, 64)
	cur += delta
	h[field] = strconv.FormatInt(cur, 10)
	return cur, nil
}

func (b *MemoryBroker) HExpire(ctx context.Context, key string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setExpiryLocked(key, ttl)
	return nil
}

// setExpiryLocked records key's expiry, or clears it (no TTL) when ttl is
// zero or negative — matching the Redis backend, where a zero expiration
// passed to SETEX/SetNX/Expire means "no expiry" rather than "expire now".
func (b *MemoryBroker) setExpiryLocked(key string, ttl time.Duration) {
	if ttl <= 0 {
		delete(b.expiries, key)
		return
	}
	b.expiries[key] = time.Now().Add(ttl)
}

func (b *MemoryBroker) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.expiredLocked(key) {
		if _, ok := b.hashLocked(key)["__value__"]; ok {
			return false, nil
		}
	}
	b.hashLocked(key)["__value__"] = value
	b.setExpiryLocked(key, ttl)
	return true, nil
}

func (b *MemoryBroker) Refresh(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.expiredLocked(key) {
		return false, nil
	}
	if _, ok := b.hashes[key]; !ok {
		return false, nil
	}
	b.setExpiryLocked(key, ttl)
	return true, nil
}

func (b *MemoryBroker) Get(ctx context.Context, key string) (string, bool, error) {
	return b.HGet(ctx, key, "__value__")
}

func (b *MemoryBroker) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.hashes, key)
	delete(b.expiries, key)
	delete(b.logs, key)
	return nil
}

// Keys returns every non-expired hash/value key matching pattern.
func (b *MemoryBroker) Keys(ctx context.Context, pattern string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for key := range b.hashes {
		if b.expiredLocked(key) {
			continue
		}
		if matched, _ := path.Match(pattern, key); matched {
			out = append(out, key)
		}
	}
	return out, nil
}

func (b *MemoryBroker) Publish(ctx context.Context, channel, payload string) error {
	b.mu.Lock()
	var subs []chan string
	for pattern, chans := range b.subs {
		if matched, _ := path.Match(pattern, channel); matched {
			subs = append(subs, chans...)
		}
	}
	b.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe matches channel names against pattern using shell glob syntax
// (e.g. "progress:*"), mirroring the Redis backend's PSubscribe.
func (b *MemoryBroker) Subscribe(ctx context.Context, pattern string) (<-chan string, func() error, error) {
	b.mu.Lock()
	ch := make(chan string, 64)
	b.subs[pattern] = append(b.subs[pattern], ch)
	b.mu.Unlock()

	unsubscribe := func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[pattern]
		for i, c := range list {
			if c == ch {
				b.subs[pattern] = append(list[:i], list[i+1:]...)
				close(ch)
				break
			}
		}
		return nil
	}
	return ch, unsubscribe, nil
}

func (b *MemoryBroker) Close() error { return nil }

var _ Broker = (*MemoryBroker)(nil)
var _ Broker = (*RedisBroker)(nil)
