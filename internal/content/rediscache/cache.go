// Package rediscache is a read-through Redis cache in front of any
// content store. Cache failures degrade to direct store reads.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keithlinneman/sitecontent/internal/content"
	"github.com/keithlinneman/sitecontent/internal/log"
	"github.com/keithlinneman/sitecontent/internal/xerrors"
)

const (
	DefaultTTL    = 5 * time.Minute
	DefaultPrefix = "sitecontent"

	// notFoundMarker caches a miss so absent locales do not hit the store
	// on every fallback walk.
	notFoundMarker = "\x00nf"
)

// Cache request results reported to Metrics.
const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
)

type Metrics interface {
	IncCacheRequest(result string)
}

type Options struct {
	Client  redis.UniversalClient
	Next    content.Store
	TTL     time.Duration
	Prefix  string
	Logger  log.Logger
	Metrics Metrics
}

// Store decorates a content.Store with a Redis cache.
type Store struct {
	client  redis.UniversalClient
	next    content.Store
	ttl     time.Duration
	prefix  string
	logger  log.Logger
	metrics Metrics
}

// New wraps opts.Next with a read-through cache on opts.Client.
func New(opts Options) (*Store, error) {
	if opts.Client == nil || opts.Next == nil {
		return nil, xerrors.New("rediscache requires a client and a backing store")
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &Store{
		client:  opts.Client,
		next:    opts.Next,
		ttl:     opts.TTL,
		prefix:  opts.Prefix,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}, nil
}

func (s *Store) key(parts ...string) string {
	return s.prefix + ":" + strings.Join(parts, ":")
}

func (s *Store) Get(ctx context.Context, contentType, entryID, locale string) (content.Entry, error) {
	k := s.key("entry", contentType, entryID, locale)
	raw, ok := s.lookup(ctx, k)
	if ok {
		if raw == notFoundMarker {
			return content.Entry{}, &content.NotFoundError{ContentType: contentType, EntryID: entryID, Locale: locale}
		}
		var e content.Entry
		if err := json.Unmarshal([]byte(raw), &e); err == nil {
			return e, nil
		}
	}

	e, err := s.next.Get(ctx, contentType, entryID, locale)
	if errors.Is(err, content.ErrNotFound) {
		s.store(ctx, k, notFoundMarker, s.ttl/4)
		return e, err
	}
	if err != nil {
		return e, err
	}
	s.storeJSON(ctx, k, e)
	return e, nil
}

func (s *Store) List(ctx context.Context, contentType, locale string) ([]content.Entry, error) {
	k := s.key("list", contentType, locale)
	if raw, ok := s.lookup(ctx, k); ok {
		var out []content.Entry
		if err := json.Unmarshal([]byte(raw), &out); err == nil {
			return out, nil
		}
	}
	out, err := s.next.List(ctx, contentType, locale)
	if err != nil {
		return nil, err
	}
	s.storeJSON(ctx, k, out)
	return out, nil
}

func (s *Store) Locales(ctx context.Context, contentType, entryID string) ([]string, error) {
	k := s.key("locales", contentType, entryID)
	if raw, ok := s.lookup(ctx, k); ok {
		var out []string
		if err := json.Unmarshal([]byte(raw), &out); err == nil {
			return out, nil
		}
	}
	out, err := s.next.Locales(ctx, contentType, entryID)
	if err != nil {
		return nil, err
	}
	s.storeJSON(ctx, k, out)
	return out, nil
}

// Ping reports Redis reachability.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Purge drops every cached key under the prefix. Called after the
// backing content changes.
func (s *Store) Purge(ctx context.Context) (int, error) {
	var n int
	iter := s.client.Scan(ctx, 0, s.prefix+":*", 500).Iterator()
	batch := make([]string, 0, 500)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.client.Del(ctx, batch...).Err(); err != nil {
			return err
		}
		n += len(batch)
		batch = batch[:0]
		return nil
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				return n, xerrors.Wrap(err, "purge cache")
			}
		}
	}
	if err := iter.Err(); err != nil {
		return n, xerrors.Wrap(err, "scan cache")
	}
	if err := flush(); err != nil {
		return n, xerrors.Wrap(err, "purge cache")
	}
	return n, nil
}

func (s *Store) lookup(ctx context.Context, key string) (string, bool) {
	raw, err := s.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		s.observe(ResultHit)
		return raw, true
	case errors.Is(err, redis.Nil):
		s.observe(ResultMiss)
	default:
		s.observe(ResultError)
		log.FromContext(ctx).Warn(ctx, "content cache read failed", "key", key, "err", err.Error())
	}
	return "", false
}

func (s *Store) storeJSON(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.store(ctx, key, string(raw), s.ttl)
}

func (s *Store) store(ctx context.Context, key, value string, ttl time.Duration) {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		log.FromContext(ctx).Warn(ctx, "content cache write failed", "key", key, "err", err.Error())
	}
}

func (s *Store) observe(result string) {
	if s.metrics != nil {
		s.metrics.IncCacheRequest(result)
	}
}
