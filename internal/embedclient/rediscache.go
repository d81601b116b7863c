package embedclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachingEmbedder wraps an Embedder with a shared Redis-backed cache of
// text->vector results, keyed on the SHA-256 of the text plus the
// embedder's dimension so a dimension change never serves a stale-sized
// vector. Unlike the tool-result cache in internal/toolsurface, every
// value here is the same concrete type ([]float32), so a JSON
// round-trip through Redis never loses type information the way a
// generic cache keyed on arbitrary response structs would.
type CachingEmbedder struct {
	inner  Embedder
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewCachingEmbedder wraps inner with a Redis cache at addr. ttl <= 0
// defaults to one hour; embeddings are expensive to recompute but a
// text's embedding never changes, so a long TTL is safe.
func NewCachingEmbedder(inner Embedder, addr string, ttl time.Duration) *CachingEmbedder {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachingEmbedder{
		inner:  inner,
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
		prefix: "chronicle:embed:",
	}
}

func (c *CachingEmbedder) Dimension() int            { return c.inner.Dimension() }
func (c *CachingEmbedder) Ping(ctx context.Context) error { return c.inner.Ping(ctx) }

func (c *CachingEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d\x00%s", c.inner.Dimension(), text)))
	return c.prefix + hex.EncodeToString(sum[:])
}

// Embed checks the Redis cache before delegating to inner, and stores
// any freshly computed vector back into it.
func (c *CachingEmbedder) Embed(text string) ([]float32, error) {
	ctx := context.Background()
	key := c.key(text)
	if data, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var v []float32
		if jerr := json.Unmarshal(data, &v); jerr == nil {
			return v, nil
		}
	}
	v, err := c.inner.Embed(text)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, v)
	return v, nil
}

// EmbedBatch checks the cache per text, and only calls inner for the
// texts that missed, preserving input order in the result.
func (c *CachingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, t := range texts {
		key := c.key(t)
		data, err := c.client.Get(ctx, key).Bytes()
		if err != nil {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, t)
			continue
		}
		var v []float32
		if jerr := json.Unmarshal(data, &v); jerr != nil {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, t)
			continue
		}
		out[i] = v
	}
	if len(missTexts) == 0 {
		return out, nil
	}
	computed, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return out, err
	}
	for j, idx := range missIdx {
		if j >= len(computed) {
			break
		}
		out[idx] = computed[j]
		c.store(ctx, c.key(missTexts[j]), computed[j])
	}
	return out, nil
}

func (c *CachingEmbedder) store(ctx context.Context, key string, v []float32) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.client.Set(ctx, key, data, c.ttl)
}

// Close releases the underlying Redis connection.
func (c *CachingEmbedder) Close() error { return c.client.Close() }
