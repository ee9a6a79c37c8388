package loader

import (
	"strconv"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	yamlv3 "gopkg.in/yaml.v3"
)

// yamlLocator indexes the document's node tree on first use.
func yamlLocator(data []byte) LocateFunc {
	var (
		once  sync.Once
		index map[string]Location
	)
	return func(path string) (Location, bool) {
		once.Do(func() { index = yamlIndex(data) })
		loc, ok := index[path]
		return loc, ok
	}
}

func yamlIndex(data []byte) map[string]Location {
	index := make(map[string]Location)
	var doc yamlv3.Node
	if err := yamlv3.Unmarshal(data, &doc); err != nil || len(doc.Content) == 0 {
		return index
	}
	indexNode(doc.Content[0], "", index)
	return index
}

func indexNode(n *yamlv3.Node, path string, index map[string]Location) {
	switch n.Kind {
	case yamlv3.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i], n.Content[i+1]
			p := key.Value
			if path != "" {
				p = path + "." + key.Value
			}
			index[p] = Location{Line: key.Line, Column: key.Column}
			indexNode(val, p, index)
		}
	case yamlv3.SequenceNode:
		for i, item := range n.Content {
			p := path + "[" + strconv.Itoa(i) + "]"
			index[p] = Location{Line: item.Line, Column: item.Column}
			indexNode(item, p, index)
		}
	case yamlv3.AliasNode:
		if n.Alias != nil {
			indexNode(n.Alias, path, index)
		}
	}
}

// jsonLocator asks gjson for the byte offset of the value at path.
func jsonLocator(data []byte) LocateFunc {
	return func(path string) (Location, bool) {
		res := gjson.GetBytes(data, gjsonPath(path))
		if !res.Exists() || res.Index <= 0 {
			return Location{}, false
		}
		line, col := position(data, int64(res.Index))
		return Location{Line: line, Column: col}, true
	}
}

// gjsonPath rewrites "a.b[0].c" as "a.b.0.c", escaping gjson's special
// characters inside keys.
func gjsonPath(path string) string {
	var b strings.Builder
	for i := 0; i < len(path); i++ {
		switch c := path[i]; c {
		case '[':
			b.WriteByte('.')
		case ']':
		case '*', '?', '|', '#', '@', '\\', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
