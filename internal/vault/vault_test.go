package vault

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

const secretBody = `{"data":{"data":{"password":"s3cret","port":5432},` +
	`"metadata":{"created_time":"2024-01-01T00:00:00Z","version":3,"deletion_time":"","destroyed":false}}}`

func fakeVault(t *testing.T) (*Client, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") != "test-token" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.URL.Path != "/v1/kv/data/app/db" {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"errors":[]}`)
			return
		}
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, secretBody)
	}))
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), Options{
		Address: srv.URL,
		Token:   "test-token",
		TTL:     time.Minute,
		Logger:  zap.NewNop().Sugar(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return c, &hits
}

func TestParseRef(t *testing.T) {
	cases := []struct {
		ref, path, key string
		ok             bool
	}{
		{"vault:kv/app/db#password", "kv/app/db", "password", true},
		{"vault:kv/app#a#b", "kv/app#a", "b", true},
		{"vault:kv/app", "", "", false},
		{"vault:kv#key", "", "", false},
		{"vault:kv/app#", "", "", false},
	}
	for _, tc := range cases {
		p, k, err := ParseRef(tc.ref)
		if tc.ok != (err == nil) || p != tc.path || k != tc.key {
			t.Errorf("ParseRef(%q) = %q, %q, %v", tc.ref, p, k, err)
		}
		if err != nil && !errors.Is(err, ErrBadRef) {
			t.Errorf("ParseRef(%q) err = %v, want ErrBadRef", tc.ref, err)
		}
	}
}

func TestResolve(t *testing.T) {
	c, hits := fakeVault(t)
	ctx := context.Background()

	v, handled, err := c.Resolve(ctx, "vault:kv/app/db#password")
	if err != nil || !handled || v != "s3cret" {
		t.Fatalf("Resolve = %q, %v, %v", v, handled, err)
	}
	if v, _, _ := c.Resolve(ctx, "vault:kv/app/db#port"); v != "5432" {
		t.Fatalf("port = %q", v)
	}
	if n := atomic.LoadInt32(hits); n != 2 {
		t.Fatalf("hits = %d, want 2 (one per key)", n)
	}

	if _, _, err := c.Resolve(ctx, "vault:kv/app/db#password"); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(hits); n != 2 {
		t.Fatalf("cached read hit the server: %d", n)
	}
	c.Purge()
	if _, _, err := c.Resolve(ctx, "vault:kv/app/db#password"); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(hits); n != 3 {
		t.Fatalf("Purge did not drop the cache: %d", n)
	}
}

func TestResolve_NotAReference(t *testing.T) {
	c, hits := fakeVault(t)
	v, handled, err := c.Resolve(context.Background(), "plain value")
	if handled || err != nil || v != "" {
		t.Fatalf("Resolve = %q, %v, %v", v, handled, err)
	}
	if atomic.LoadInt32(hits) != 0 {
		t.Fatal("plain value reached the server")
	}
}

func TestResolve_Failures(t *testing.T) {
	c, _ := fakeVault(t)
	for _, ref := range []string{"vault:kv/other#x", "vault:kv/app/db#missing", "vault:nokey"} {
		_, handled, err := c.Resolve(context.Background(), ref)
		if !handled || err == nil {
			t.Errorf("Resolve(%q) = %v, %v; want handled error", ref, handled, err)
		}
	}
}
