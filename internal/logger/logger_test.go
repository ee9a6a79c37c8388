package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNew_ConsoleAndFile(t *testing.T) {
	prev := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(prev) })

	var console bytes.Buffer
	file := filepath.Join(t.TempDir(), "logs", "confres.log")
	log, err := New(Options{Level: "info", File: file, Console: &console})
	if err != nil {
		t.Fatal(err)
	}
	log.Debugw("hidden")
	log.Infow("resolved", "fields", 3)
	_ = log.Sync()

	if strings.Contains(console.String(), "hidden") {
		t.Fatal("debug line written at info level")
	}
	if !strings.Contains(console.String(), "resolved") {
		t.Fatalf("console = %q", console.String())
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &rec); err != nil {
		t.Fatalf("file line is not JSON: %v (%q)", err, data)
	}
	if rec["msg"] != "resolved" || rec["fields"] != 3.0 {
		t.Fatalf("record = %v", rec)
	}
}

func TestNew_BadLevel(t *testing.T) {
	if _, err := New(Options{Level: "loud", Console: &bytes.Buffer{}}); err == nil {
		t.Fatal("accepted an unknown level")
	}
}
