package resolve

import (
	"context"
	"strings"

	"github.com/yanizio/confres/internal/loader"
)

// EnvVar is one environment value.  File is empty for the live process
// environment and names the `.env` file otherwise.
type EnvVar struct {
	Value  string
	File   string
	Line   int
	Column int
}

// SecretResolver dereferences secret references found in raw string
// values.  handled is false when ref is not a reference it understands.
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (value string, handled bool, err error)
}

// Sources is everything one walk may read.  A nil Args or Env map means
// that source is disabled.
type Sources struct {
	Args     map[string]any
	Env      map[string]EnvVar
	Files    []*loader.File
	Defaults map[string]any
	Secrets  SecretResolver
}

/*──────────────────────────── path lookup ─────────────────────────────────*/

type lookupState int

const (
	missing lookupState = iota
	found
	blocked
)

// lookup descends data along a dotted path.  Descending through a scalar or
// an array is blocked; absent keys and explicit nulls are missing.
func lookup(data map[string]any, path string) (any, lookupState) {
	if data == nil {
		return nil, missing
	}
	var cur any = data
	segs := strings.Split(path, ".")
	for i, seg := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, blocked
		}
		v, ok := m[seg]
		if !ok || v == nil {
			return nil, missing
		}
		if i == len(segs)-1 {
			return v, found
		}
		cur = v
	}
	return nil, missing
}
