// internal/vault/vault.go
//
// Vault client wrapper for secret references in resolved configuration.
//
// Context
// -------
//   - Provides a concurrency-safe wrapper around the HashiCorp Vault Go SDK.
//   - Adds optional background token renewal, KV-v2 helpers, and per-key
//     caching.
//   - Implements resolve.SecretResolver: a raw configuration value of the
//     form `vault:<mount>/<path>#<key>` is replaced with the secret before
//     coercion.  Anything else is left to the caller.
//
// Public workflow
// ---------------
//  1. cli, err := vault.New(ctx, vault.Options{TTL: time.Minute})  // boot.
//  2. settings.Options{Secrets: cli, …}                            // wire.
//
// Environment expectations
// ------------------------
// • VAULT_ADDR   – scheme and host of the Vault server.
// • VAULT_TOKEN  – initial token.
// Options.Address and Options.Token override both.
package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"
)

// RefPrefix marks a secret reference.
const RefPrefix = "vault:"

// ErrBadRef is returned for references without a path or key.
var ErrBadRef = errors.New("vault: reference must look like vault:<mount>/<path>#<key>")

//
// SECTION 1.  Public façade
//

// Options configure New.  Zero values fall back to the environment.
type Options struct {
	Address string
	Token   string
	// TTL caches each resolved key; zero disables caching.
	TTL time.Duration
	// Renew starts the background token-renewal loop.
	Renew  bool
	Logger *zap.SugaredLogger
}

// Client is safe for concurrent use.  Create once at startup.  Zero value is
// invalid.
type Client struct {
	api *vault.Client
	log *zap.SugaredLogger
	ttl time.Duration

	cacheMu sync.RWMutex
	cache   map[string]cached // canonical path#key → value + expiry.
}

type cached struct {
	val string
	exp time.Time
}

// New constructs a Vault client and, when asked, starts token renewal tied
// to ctx.
func New(ctx context.Context, opts Options) (*Client, error) {
	log := opts.Logger
	if log == nil {
		log = zap.S()
	}

	cfg := vault.DefaultConfig()
	if err := cfg.ReadEnvironment(); err != nil {
		return nil, fmt.Errorf("vault env cfg: %w", err)
	}
	if opts.Address != "" {
		cfg.Address = opts.Address
	}

	apiCli, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault api: %w", err)
	}
	if opts.Token != "" {
		apiCli.SetToken(opts.Token)
	}

	c := &Client{
		api:   apiCli,
		log:   log,
		ttl:   opts.TTL,
		cache: make(map[string]cached),
	}
	if opts.Renew {
		go c.renewLoop(ctx)
	}
	log.Debugw("vault client ready", "addr", cfg.Address, "ttl", opts.TTL, "renew", opts.Renew)
	return c, nil
}

// Resolve implements resolve.SecretResolver.
func (c *Client) Resolve(ctx context.Context, ref string) (string, bool, error) {
	if !strings.HasPrefix(ref, RefPrefix) {
		return "", false, nil
	}
	secretPath, key, err := ParseRef(ref)
	if err != nil {
		return "", true, err
	}
	val, err := c.GetKV(ctx, secretPath, key, c.ttl)
	return val, true, err
}

// ParseRef splits "vault:kv/app/db#password" into ("kv/app/db", "password").
func ParseRef(ref string) (secretPath, key string, err error) {
	body := strings.TrimPrefix(ref, RefPrefix)
	i := strings.LastIndexByte(body, '#')
	if i <= 0 || i == len(body)-1 || !strings.Contains(body[:i], "/") {
		return "", "", fmt.Errorf("%w: %q", ErrBadRef, ref)
	}
	return body[:i], body[i+1:], nil
}

// GetKV fetches a single key from a KV-v2 secret.  If ttl > 0 the result is
// cached for that duration.  Subsequent callers within the TTL receive the
// cached copy.  Non-string values are rendered with fmt.
func (c *Client) GetKV(ctx context.Context, secretPath, key string, ttl time.Duration) (string, error) {
	if secretPath == "" || key == "" {
		return "", errors.New("secret path and key must be non-empty")
	}

	canonical := secretPath + "#" + key

	if ttl > 0 {
		c.cacheMu.RLock()
		if cv, ok := c.cache[canonical]; ok && time.Now().Before(cv.exp) {
			c.cacheMu.RUnlock()
			return cv.val, nil
		}
		c.cacheMu.RUnlock()
	}

	mount, rel := splitMount(secretPath)
	sec, err := c.api.KVv2(mount).Get(ctx, rel)
	if err != nil {
		return "", fmt.Errorf("vault get %s: %w", secretPath, err)
	}

	raw, ok := sec.Data[key]
	if !ok || raw == nil {
		return "", fmt.Errorf("key %q not found in secret %q", key, secretPath)
	}

	sval, ok := raw.(string)
	if !ok {
		sval = fmt.Sprint(raw)
	}

	if ttl > 0 {
		c.cacheMu.Lock()
		c.cache[canonical] = cached{val: sval, exp: time.Now().Add(ttl)}
		c.cacheMu.Unlock()
	}

	c.log.Debugw("vault secret fetched", "path", secretPath, "key", key)
	return sval, nil
}

// Purge drops every cached secret.  The watcher calls it before a reload
// so rotated secrets are picked up.
func (c *Client) Purge() {
	c.cacheMu.Lock()
	c.cache = make(map[string]cached)
	c.cacheMu.Unlock()
}

//
// SECTION 2.  Background token renewal
//

func (c *Client) renewLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Probe the current token.
		sec, err := c.api.Auth().Token().RenewSelfWithContext(ctx, 0)
		if err != nil {
			c.log.Warnw("vault token renew failed", "err", err)
			backoff(ctx, 30*time.Second)
			continue
		}

		if sec == nil || sec.Auth == nil || !sec.Auth.Renewable {
			c.log.Infow("vault token is not renewable, sleeping", "for", time.Hour)
			backoff(ctx, time.Hour)
			continue
		}

		watcher, err := c.api.NewLifetimeWatcher(&vault.LifetimeWatcherInput{
			Secret: sec,
		})
		if err != nil {
			c.log.Warnw("vault renewer init failed", "err", err)
			backoff(ctx, 30*time.Second)
			continue
		}

		go watcher.Start()
		c.watch(ctx, watcher)
	}
}

func (c *Client) watch(ctx context.Context, w *vault.LifetimeWatcher) {
	defer w.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-w.DoneCh():
			if err != nil {
				c.log.Warnw("vault token renewal stopped", "err", err)
			}
			backoff(ctx, 15*time.Second)
			return
		case ev := <-w.RenewCh():
			if ev != nil && ev.Secret != nil && ev.Secret.Auth != nil {
				c.log.Debugw("vault token renewed", "ttl_s", ev.Secret.Auth.LeaseDuration)
			}
		}
	}
}

//
// SECTION 3.  Helpers
//

func splitMount(p string) (mount, rel string) {
	if p == "" {
		return "", ""
	}
	parts := strings.SplitN(p, "/", 2)
	mount = parts[0]
	if len(parts) == 2 {
		rel = parts[1]
	}
	return
}

func backoff(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
