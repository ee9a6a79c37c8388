package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/yanizio/confres/internal/diff"
	"github.com/yanizio/confres/internal/schema"
)

type fixed struct {
	cfg   map[string]any
	files []string
}

func (f fixed) Config() map[string]any { return f.cfg }
func (f fixed) Files() []string        { return f.files }

var testSchema = schema.Node{
	"port": schema.Number(schema.Common{}),
	"db": schema.Node{
		"password": schema.String(schema.Common{Sensitive: true}),
	},
}

func get(t *testing.T, h http.Handler, path string) (int, string, http.Header) {
	t.Helper()
	srv := httptest.NewServer(h)
	defer srv.Close()
	res, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	return res.StatusCode, string(body), res.Header
}

func TestRouter(t *testing.T) {
	src := fixed{
		cfg:   map[string]any{"port": 8080.0, "db": map[string]any{"password": "pw"}},
		files: []string{"/etc/app.yaml"},
	}
	h := Router(src, testSchema, false)

	code, body, hdr := get(t, h, "/config")
	if code != http.StatusOK || hdr.Get("Cache-Control") != "no-store" {
		t.Fatalf("/config = %d %v", code, hdr)
	}
	if gjson.Get(body, "port").Int() != 8080 || gjson.Get(body, "db.password").String() != diff.MaskToken {
		t.Fatalf("/config body = %s", body)
	}

	if code, body, _ := get(t, h, "/config/port"); code != http.StatusOK || strings.TrimSpace(body) != "8080" {
		t.Fatalf("/config/port = %d %q", code, body)
	}
	if code, _, _ := get(t, h, "/config/nope"); code != http.StatusNotFound {
		t.Fatalf("/config/nope = %d", code)
	}
	if _, body, _ := get(t, h, "/files"); !gjson.Valid(body) || gjson.Get(body, "0").String() != "/etc/app.yaml" {
		t.Fatalf("/files = %s", body)
	}
	if code, body, _ := get(t, h, "/healthz"); code != http.StatusOK || body != "ok\n" {
		t.Fatalf("/healthz = %d %q", code, body)
	}
	if code, body, _ := get(t, h, "/metrics"); code != http.StatusOK || !strings.Contains(body, "go_goroutines") {
		t.Fatalf("/metrics = %d", code)
	}
}

func TestRouter_Reveal(t *testing.T) {
	src := fixed{cfg: map[string]any{"db": map[string]any{"password": "pw"}}}
	_, body, _ := get(t, Router(src, testSchema, true), "/config")
	if gjson.Get(body, "db.password").String() != "pw" {
		t.Fatalf("body = %s", body)
	}
	if _, body, _ := get(t, Router(src, testSchema, true), "/files"); strings.TrimSpace(body) != "[]" {
		t.Fatalf("/files = %q", body)
	}
}

func TestNew(t *testing.T) {
	s := New(":0", http.NotFoundHandler())
	if s.ReadHeaderTimeout == 0 || s.WriteTimeout == 0 || s.IdleTimeout == 0 {
		t.Fatalf("timeouts not set: %+v", s)
	}
}
