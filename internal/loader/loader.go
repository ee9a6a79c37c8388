// internal/loader/loader.go
//
// Structured configuration file loader.
//
// Context
// -------
// `Load(path)` reads a YAML, JSON, or TOML file through the koanf file
// provider, parses it with the matching koanf parser, and returns the
// generic tree plus a lazy source-location lookup.  Results are cached
// process-wide by absolute path in an LRU; concurrent first loads of the
// same path collapse into one read through singleflight.
//
// The watcher calls `Clear()` before every reload.  A load that was already
// in flight when the cache was cleared still returns its result to its own
// callers, but the result is not stored, so the next caller re-reads.
//
// Notes
// -----
//   - Parsed trees are shared between callers and must be treated as
//     read-only.
//   - A file holding only `null` or nothing at all yields an empty tree.
package loader

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/confres/internal/cache"
)

// ErrUnsupportedFormat is returned for a file extension with no parser.
var ErrUnsupportedFormat = errors.New("loader: unsupported file format")

// DefaultCapacity bounds the process-wide cache.
const DefaultCapacity = 256

// Location is a 1-based position in a source file.
type Location struct {
	Line   int
	Column int
}

// LocateFunc maps a dotted path (sequence items as "[i]") to the position
// where the file defines it.
type LocateFunc func(path string) (Location, bool)

// File is one parsed configuration file.
type File struct {
	Path   string
	Data   map[string]any
	Locate LocateFunc
}

/*──────────────────────────── formats ─────────────────────────────────────*/

type parser interface {
	Unmarshal([]byte) (map[string]interface{}, error)
}

var parsers = map[string]func() parser{
	".yaml": func() parser { return yaml.Parser() },
	".yml":  func() parser { return yaml.Parser() },
	".json": func() parser { return json.Parser() },
	".toml": func() parser { return toml.Parser() },
}

// Supported reports whether path has an extension Load can parse.
func Supported(path string) bool {
	_, ok := parsers[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Parse decodes data according to the extension of path.
func Parse(path string, data []byte) (*File, error) {
	ext := strings.ToLower(filepath.Ext(path))
	mk, ok := parsers[ext]
	if !ok {
		return nil, fmt.Errorf("%w %q (%s)", ErrUnsupportedFormat, ext, path)
	}
	tree, err := mk().Unmarshal(data)
	if err != nil {
		return nil, newParseError(path, ext, data, err)
	}
	f := &File{Path: path, Data: normalizeMap(tree)}
	switch ext {
	case ".yaml", ".yml":
		f.Locate = yamlLocator(data)
	case ".json":
		f.Locate = jsonLocator(data)
	}
	return f, nil
}

/*──────────────────────────── cache ───────────────────────────────────────*/

// Loader caches parsed files by absolute path.
type Loader struct {
	mu    sync.Mutex
	lru   *cache.LRU[string, *File]
	gen   uint64
	group singleflight.Group
}

// New returns a Loader whose cache holds up to capacity files.
func New(capacity int) *Loader {
	return &Loader{lru: cache.New[string, *File](capacity)}
}

// Default is the process-wide loader.
var Default = New(DefaultCapacity)

// Load returns the parsed file at path, reading it on a cache miss.
func (l *Loader) Load(path string) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}

	l.mu.Lock()
	if f, ok := l.lru.Get(abs); ok {
		l.mu.Unlock()
		return f, nil
	}
	gen := l.gen
	l.mu.Unlock()

	v, err, _ := l.group.Do(abs+"#"+strconv.FormatUint(gen, 10), func() (any, error) {
		data, err := file.Provider(abs).ReadBytes()
		if err != nil {
			return nil, fmt.Errorf("loader: read %s: %w", path, err)
		}
		f, err := Parse(path, data)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		if l.gen == gen {
			l.lru.Add(abs, f)
		}
		l.mu.Unlock()
		return f, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*File), nil
}

// Clear drops every cached file.
func (l *Loader) Clear() {
	l.mu.Lock()
	l.gen++
	l.lru.Purge()
	l.mu.Unlock()
}

// Len reports how many files are cached.
func (l *Loader) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lru.Len()
}

// Load reads path through the Default loader.
func Load(path string) (*File, error) { return Default.Load(path) }

// Clear empties the Default loader.
func Clear() { Default.Clear() }

/*──────────────────────────── helpers ─────────────────────────────────────*/

// normalizeMap converts nested map[any]any to map[string]any and never
// returns nil.
func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}

func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return normalizeMap(t)
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[fmt.Sprint(k)] = normalize(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = normalize(child)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = normalizeMap(child)
		}
		return out
	}
	return v
}
