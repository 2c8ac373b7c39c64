package tokencache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func newTestCache(t *testing.T, opts ...BoltCacheOption) *BoltCache {
	t.Helper()

	c, err := NewBoltCache(filepath.Join(t.TempDir(), "cache", "tokens.db"), opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func TestKey(t *testing.T) {
	a := Key("https://iam.example.com", "key")

	if a == Key("https://iam.example.com", "other") {
		t.Error("different API keys should give different cache keys")
	}
	if a == Key("https://other.example.com", "key") {
		t.Error("different endpoints should give different cache keys")
	}
	if a != Key("https://iam.example.com", "key") {
		t.Error("keys should be stable")
	}
	if len(a) != 64 {
		t.Errorf("expected a hex encoded sha256, got %v", a)
	}
}

func TestStoreAndLookup(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	err := c.Store(ctx, "k", &oauth2.Token{AccessToken: "abc", TokenType: "Bearer", Expiry: expiry})
	if err != nil {
		t.Fatal(err)
	}

	token, err := c.Lookup(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}

	if token.AccessToken != "abc" || token.TokenType != "Bearer" || !token.Expiry.Equal(expiry) {
		t.Errorf("unexpected token %+v", token)
	}

	if _, err := c.Lookup(ctx, "missing"); !errors.Is(err, ErrCacheNotFound) {
		t.Errorf("expected ErrCacheNotFound, got %v", err)
	}
}

func TestLookupExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	c := newTestCache(t, WithClock(func() time.Time { return now }), WithMinValidity(time.Minute))

	tokens := map[string]time.Duration{
		"expired": -time.Minute,
		"nearly":  30 * time.Second,
		"valid":   2 * time.Minute,
	}

	for key, d := range tokens {
		if err := c.Store(ctx, key, &oauth2.Token{AccessToken: key, Expiry: now.Add(d)}); err != nil {
			t.Fatal(err)
		}
	}

	for _, key := range []string{"expired", "nearly"} {
		if _, err := c.Lookup(ctx, key); !errors.Is(err, ErrCacheNotFound) {
			t.Errorf("expected %v to be treated as expired, got %v", key, err)
		}
	}

	if _, err := c.Lookup(ctx, "valid"); err != nil {
		t.Errorf("expected valid token, got %v", err)
	}
}

func TestStoreReplaces(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	c := newTestCache(t, WithClock(func() time.Time { return now }))

	if err := c.Store(ctx, "k", &oauth2.Token{AccessToken: "old", Expiry: now.Add(-time.Hour)}); err != nil {
		t.Fatal(err)
	}
	if err := c.Store(ctx, "k", &oauth2.Token{AccessToken: "new", Expiry: now.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}

	// the old expiry index entry must be gone, otherwise this would remove
	// the new token
	purged, err := c.Purge(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if purged != 0 {
		t.Errorf("expected nothing to be purged, got %v", purged)
	}

	token, err := c.Lookup(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if token.AccessToken != "new" {
		t.Errorf("expected the new token, got %v", token.AccessToken)
	}
}

func TestStoreWithoutExpiry(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	if err := c.Store(ctx, "k", &oauth2.Token{AccessToken: "abc"}); err != nil {
		t.Fatal(err)
	}

	if _, err := c.Lookup(ctx, "k"); !errors.Is(err, ErrCacheNotFound) {
		t.Errorf("expected tokens without expiry to be skipped, got %v", err)
	}

	if err := c.Store(ctx, "k", nil); err == nil {
		t.Error("expected an error storing a nil token")
	}
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	c := newTestCache(t, WithClock(func() time.Time { return now }))

	for i, d := range []time.Duration{-2 * time.Hour, -time.Minute, 10 * time.Minute, time.Hour} {
		key := string(rune('a' + i))
		if err := c.Store(ctx, key, &oauth2.Token{AccessToken: key, Expiry: now.Add(d)}); err != nil {
			t.Fatal(err)
		}
	}

	purged, err := c.Purge(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if purged != 2 {
		t.Errorf("expected 2 tokens to be purged, got %v", purged)
	}

	if err := c.Delete("d"); err != nil {
		t.Fatal(err)
	}

	if _, err := c.Lookup(ctx, "c"); err != nil {
		t.Errorf("expected c to survive, got %v", err)
	}
	if _, err := c.Lookup(ctx, "d"); !errors.Is(err, ErrCacheNotFound) {
		t.Errorf("expected d to be deleted, got %v", err)
	}
}

func TestReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens.db")

	c, err := NewBoltCache(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Store(ctx, "k", &oauth2.Token{AccessToken: "abc", Expiry: time.Now().Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	c, err = NewBoltCache(path)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if c.Path() != path {
		t.Errorf("expected path %v, got %v", path, c.Path())
	}

	if _, err := c.Lookup(ctx, "k"); err != nil {
		t.Errorf("expected the token to survive a reopen, got %v", err)
	}
}
