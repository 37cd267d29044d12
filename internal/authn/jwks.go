package authn

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/keycortex/wallet/internal/model"
)

// jwk is a single JSON Web Key as found in a JWKS document.
type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

// snapshot is an immutable JWKS cache generation. Reads are lock-free
// against an atomically published snapshot; refresh swaps a new one in.
type snapshot struct {
	keys        map[string]*rsa.PublicKey
	source      string
	loaded      bool
	lastRefresh time.Time
	lastError   string
}

// JWKSCache fetches and caches verification keys from a configured source,
// tried in priority order: HTTPS URL, local file, inline JSON.
type JWKSCache struct {
	url        string
	file       string
	inline     string
	httpClient *http.Client
	current    atomic.Pointer[snapshot]
}

// NewJWKSCache constructs a cache over the given sources. Refresh must be
// called at least once before State/Lookup report a loaded snapshot.
func NewJWKSCache(url, file, inline string) *JWKSCache {
	c := &JWKSCache{
		url:        url,
		file:       file,
		inline:     inline,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	c.current.Store(&snapshot{keys: map[string]*rsa.PublicKey{}})
	return c
}

// Refresh fetches the JWKS from the first configured source, with bounded
// exponential backoff on the HTTPS path. On persistent failure the cache
// retains the last successful snapshot and records the error.
func (c *JWKSCache) Refresh(ctx context.Context) error {
	doc, source, err := c.fetch(ctx)
	if err != nil {
		prev := c.current.Load()
		next := *prev
		next.lastError = err.Error()
		c.current.Store(&next)
		return err
	}

	keys, err := parseJWKSet(doc)
	if err != nil {
		prev := c.current.Load()
		next := *prev
		next.lastError = err.Error()
		c.current.Store(&next)
		return err
	}

	c.current.Store(&snapshot{
		keys:        keys,
		source:      source,
		loaded:      true,
		lastRefresh: time.Now().UTC(),
	})
	return nil
}

func (c *JWKSCache) fetch(ctx context.Context) ([]byte, string, error) {
	if c.url != "" {
		var body []byte
		op := func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
			if err != nil {
				return backoff.Permanent(err)
			}
			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 500 {
				return fmt.Errorf("jwks fetch transient status %d", resp.StatusCode)
			}
			if resp.StatusCode >= 300 {
				return backoff.Permanent(fmt.Errorf("jwks fetch failed with status %d", resp.StatusCode))
			}
			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			body = data
			return nil
		}
		policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4)
		if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
			return nil, "", fmt.Errorf("fetch jwks from %s: %w", c.url, err)
		}
		return body, c.url, nil
	}

	if c.file != "" {
		data, err := os.ReadFile(c.file)
		if err != nil {
			return nil, "", fmt.Errorf("read jwks file %s: %w", c.file, err)
		}
		return data, c.file, nil
	}

	if c.inline != "" {
		return []byte(c.inline), "inline", nil
	}

	return nil, "", fmt.Errorf("no jwks source configured")
}

func parseJWKSet(data []byte) (map[string]*rsa.PublicKey, error) {
	var set jwkSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}
	out := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := rsaPublicKeyFromJWK(k)
		if err != nil {
			return nil, fmt.Errorf("decode key %s: %w", k.Kid, err)
		}
		out[k.Kid] = pub
	}
	return out, nil
}

func rsaPublicKeyFromJWK(k jwk) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}

// Lookup resolves kid against the current snapshot.
func (c *JWKSCache) Lookup(kid string) (*rsa.PublicKey, bool) {
	snap := c.current.Load()
	key, ok := snap.keys[kid]
	return key, ok
}

// Loaded reports whether any successful refresh has ever completed.
func (c *JWKSCache) Loaded() bool {
	return c.current.Load().loaded
}

// State renders the current snapshot for diagnostics.
func (c *JWKSCache) State() model.JWKSState {
	snap := c.current.Load()
	return model.JWKSState{
		Loaded:      snap.loaded,
		Source:      snap.source,
		KeyCount:    len(snap.keys),
		LastRefresh: snap.lastRefresh,
		LastError:   snap.lastError,
	}
}
