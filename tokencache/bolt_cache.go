// Package tokencache keeps access tokens on disk between runs so that an API
// key is only exchanged when the previous token has expired.
package tokencache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

// Bucket names for bbolt
var (
	tokensBucketName = []byte("tokens")
	expiryBucketName = []byte("expiry")
)

// ErrCacheNotFound is returned by Lookup when there is no usable token
var ErrCacheNotFound = errors.New("no cached token")

// DefaultMinValidity is how long a token must still be valid for to be
// returned from the cache
const DefaultMinValidity = time.Minute

// Key derives the cache key for an API key used against an endpoint. The API
// key itself is never stored
func Key(endpoint, apiKey string) string {
	sum := sha256.Sum256([]byte(endpoint + "\x00" + apiKey))
	return hex.EncodeToString(sum[:])
}

type cachedToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	Expiry      time.Time `json:"expiry"`
}

// makeExpiryKey creates a key for the expiry index. Keys sort by expiry
// Format: {expiryNano}|{key}
func makeExpiryKey(expiry time.Time, key string) []byte {
	buf := make([]byte, 8+1+len(key))

	var expiryNano uint64
	if n := expiry.UnixNano(); n > 0 {
		expiryNano = uint64(n)
	}

	binary.BigEndian.PutUint64(buf[0:8], expiryNano)
	buf[8] = '|'
	copy(buf[9:], key)

	return buf
}

func parseExpiryKey(k []byte) (time.Time, string, error) {
	if len(k) < 10 || k[8] != '|' {
		return time.Time{}, "", errors.New("invalid expiry key")
	}

	expiryNano := binary.BigEndian.Uint64(k[0:8])
	if expiryNano > 1<<63-1 {
		expiryNano = 0
	}

	return time.Unix(0, int64(expiryNano)), string(k[9:]), nil
}

// BoltCache stores tokens in a bbolt database. It is safe for concurrent use,
// bbolt serialises writers
type BoltCache struct {
	db   *bbolt.DB
	path string

	// Tokens that expire sooner than this are not returned
	MinValidity time.Duration

	now func() time.Time
}

// BoltCacheOption is a functional option for configuring BoltCache
type BoltCacheOption func(*BoltCache)

// WithMinValidity sets how long a token must remain valid to be used
func WithMinValidity(d time.Duration) BoltCacheOption {
	return func(c *BoltCache) {
		c.MinValidity = d
	}
}

// WithClock replaces the clock used to decide whether tokens have expired
func WithClock(now func() time.Time) BoltCacheOption {
	return func(c *BoltCache) {
		c.now = now
	}
}

// NewBoltCache opens the cache at path, creating it if needed
func NewBoltCache(path string, opts ...BoltCacheOption) (*BoltCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	c := &BoltCache{
		db:          db,
		path:        path,
		MinValidity: DefaultMinValidity,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(tokensBucketName); err != nil {
			return fmt.Errorf("failed to create tokens bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists(expiryBucketName); err != nil {
			return fmt.Errorf("failed to create expiry bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return c, nil
}

// Path returns the location of the database file
func (c *BoltCache) Path() string {
	return c.path
}

// Close closes the database
func (c *BoltCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Lookup returns the token stored under key. ErrCacheNotFound is returned if
// there is none, or it expires within MinValidity
func (c *BoltCache) Lookup(ctx context.Context, key string) (*oauth2.Token, error) {
	span := trace.SpanFromContext(ctx)

	var entry *cachedToken
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(tokensBucketName).Get([]byte(key))
		if data == nil {
			return nil
		}

		entry = &cachedToken{}
		return json.Unmarshal(data, entry)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read cached token: %w", err)
	}

	if entry == nil {
		span.SetAttributes(
			attribute.String("flight.cache.result", "cache miss"),
			attribute.Bool("flight.cache.hit", false),
		)
		return nil, ErrCacheNotFound
	}

	if !entry.Expiry.After(c.now().Add(c.MinValidity)) {
		span.SetAttributes(
			attribute.String("flight.cache.result", "cache hit: expired"),
			attribute.Bool("flight.cache.hit", false),
		)
		return nil, ErrCacheNotFound
	}

	span.SetAttributes(
		attribute.String("flight.cache.result", "cache hit"),
		attribute.Bool("flight.cache.hit", true),
	)

	return &oauth2.Token{
		AccessToken: entry.AccessToken,
		TokenType:   entry.TokenType,
		Expiry:      entry.Expiry,
	}, nil
}

// Store saves the token under key, replacing any previous one. Tokens without
// an expiry are not stored since there is no telling when they stop working
func (c *BoltCache) Store(ctx context.Context, key string, token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" {
		return errors.New("cannot cache an empty token")
	}

	if token.Expiry.IsZero() {
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("flight.cache.result", "not stored: no expiry"))
		return nil
	}

	data, err := json.Marshal(cachedToken{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		Expiry:      token.Expiry,
	})
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	return c.db.Update(func(tx *bbolt.Tx) error {
		if err := c.deleteTx(tx, key); err != nil {
			return err
		}

		if err := tx.Bucket(tokensBucketName).Put([]byte(key), data); err != nil {
			return fmt.Errorf("failed to store token: %w", err)
		}

		return tx.Bucket(expiryBucketName).Put(makeExpiryKey(token.Expiry, key), nil)
	})
}

// Delete removes the token stored under key, if any
func (c *BoltCache) Delete(key string) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		return c.deleteTx(tx, key)
	})
}

func (c *BoltCache) deleteTx(tx *bbolt.Tx, key string) error {
	tokens := tx.Bucket(tokensBucketName)

	data := tokens.Get([]byte(key))
	if data == nil {
		return nil
	}

	var old cachedToken
	if err := json.Unmarshal(data, &old); err == nil {
		if err := tx.Bucket(expiryBucketName).Delete(makeExpiryKey(old.Expiry, key)); err != nil {
			return err
		}
	}

	return tokens.Delete([]byte(key))
}

// Purge removes every token that has expired and returns how many were
// removed
func (c *BoltCache) Purge(ctx context.Context) (int, error) {
	now := c.now()
	purged := 0

	err := c.db.Update(func(tx *bbolt.Tx) error {
		expiry := tx.Bucket(expiryBucketName)
		tokens := tx.Bucket(tokensBucketName)

		var expired [][]byte
		cursor := expiry.Cursor()
		for k, _ := cursor.First(); k != nil; k, _ = cursor.Next() {
			exp, key, err := parseExpiryKey(k)
			if err != nil {
				// unreadable index entries are dropped
				expired = append(expired, k)
				continue
			}

			if exp.After(now) {
				// everything after this expires later
				break
			}

			expired = append(expired, k)
			if err := tokens.Delete([]byte(key)); err != nil {
				return err
			}
			purged++
		}

		for _, k := range expired {
			if err := expiry.Delete(k); err != nil {
				return err
			}
		}

		return nil
	})

	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("flight.cache.purged", purged))

	return purged, err
}
