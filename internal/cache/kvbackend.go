package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/redis/go-redis/v9"
)

// kvWireVersion lets future deployments change the envelope without
// breaking mixed-version rollouts; unknown versions are treated as a miss.
const kvWireVersion = 1

type kvEnvelope struct {
	Version int    `json:"v"`
	Kind    Kind   `json:"k"`
	Value   []byte `json:"d,omitempty"`
}

// KVBackend is the external, Redis-compatible Config Cache backend.
// Keys are namespaced by a deployment-wide prefix so several gateways can
// share one KV cluster.
type KVBackend struct {
	client redis.Cmdable
	prefix string
}

// NewKVBackend dials the given Redis-compatible URL and pings it once so
// callers can fall back to MapBackend at construction time rather than on
// the first request.
func NewKVBackend(ctx context.Context, url, prefix string) (*KVBackend, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse external kv url")
	}
	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, errors.Wrap(err, "ping external kv")
	}
	return &KVBackend{client: client, prefix: prefix}, nil
}

// NewKVBackendFromClient wraps an already-constructed redis.Cmdable
// (used by tests against miniredis, which don't go through a URL).
func NewKVBackendFromClient(client redis.Cmdable, prefix string) *KVBackend {
	return &KVBackend{client: client, prefix: prefix}
}

func (b *KVBackend) namespaced(key string) string {
	return b.prefix + ":" + key
}

func (b *KVBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := b.GetEntry(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if entry.Kind != KindPositive {
		return nil, false, nil
	}
	return entry.Value, true, nil
}

func (b *KVBackend) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		v, ok, err := b.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[k] = v
		}
	}
	return out, nil
}

func (b *KVBackend) GetEntry(ctx context.Context, key string) (Entry, error) {
	raw, err := b.client.Get(ctx, b.namespaced(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{Kind: KindAbsent}, nil
	}
	if err != nil {
		return Entry{}, errors.Wrap(err, "kv get")
	}
	var env kvEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Version != kvWireVersion {
		// A corrupt or foreign-version payload is treated as absent so a
		// reader re-populates it rather than failing the request.
		return Entry{Kind: KindAbsent}, nil
	}
	return Entry{Kind: env.Kind, Value: env.Value}, nil
}

func (b *KVBackend) SetPositive(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	env := kvEnvelope{Version: kvWireVersion, Kind: KindPositive, Value: value}
	raw, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "marshal kv envelope")
	}
	if err := b.client.Set(ctx, b.namespaced(key), raw, ttl).Err(); err != nil {
		return errors.Wrap(err, "kv set positive")
	}
	return nil
}

func (b *KVBackend) SetNegative(ctx context.Context, key string, ttl time.Duration) error {
	existing, err := b.GetEntry(ctx, key)
	if err != nil {
		return err
	}
	if existing.Kind == KindPositive {
		return nil
	}
	env := kvEnvelope{Version: kvWireVersion, Kind: KindNegative}
	raw, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "marshal kv envelope")
	}
	if err := b.client.Set(ctx, b.namespaced(key), raw, ttl).Err(); err != nil {
		return errors.Wrap(err, "kv set negative")
	}
	return nil
}

func (b *KVBackend) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, b.namespaced(key)).Err(); err != nil {
		return errors.Wrap(err, "kv delete")
	}
	return nil
}

// Clear removes every key under this backend's namespace. It is intended
// for tests and for a full reload() in small deployments; it is not
// cluster-scan-safe for very large key spaces.
func (b *KVBackend) Clear(ctx context.Context) error {
	iter := b.client.Scan(ctx, 0, b.prefix+":*", 0).Iterator()
	for iter.Next(ctx) {
		if err := b.client.Del(ctx, iter.Val()).Err(); err != nil {
			return errors.Wrap(err, "kv clear")
		}
	}
	return iter.Err()
}
