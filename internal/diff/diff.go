// Package diff compares two plain configuration snapshots.
//
// Objects are compared key by key at every depth.  Arrays and scalars are
// compared as whole values; a reordered array is a change.  NaN equals NaN,
// and +0 equals -0.  When a schema is given, the old and new values of
// sensitive paths are replaced with MaskToken in the emitted records; the
// comparison itself always sees the real values.
package diff

import (
	"sort"

	"github.com/yanizio/confres/internal/coerce"
	"github.com/yanizio/confres/internal/schema"
)

// MaskToken replaces sensitive values in output.
const MaskToken = "********"

// ChangeType classifies a change.
type ChangeType string

const (
	Added   ChangeType = "added"
	Removed ChangeType = "removed"
	Changed ChangeType = "changed"
)

// Change is one difference between two snapshots.  OldValue is nil for
// Added and NewValue is nil for Removed.
type Change struct {
	Path     string
	OldValue any
	NewValue any
	Type     ChangeType
}

// Diff returns the changes that turn prev into next, ordered by path.  s
// may be nil.
func Diff(prev, next map[string]any, s schema.Node) []Change {
	d := differ{sensitive: schema.SensitivePaths(s)}
	d.objects(prev, next, "")
	return d.out
}

type differ struct {
	sensitive schema.SensitiveSet
	out       []Change
}

func (d *differ) objects(prev, next map[string]any, path string) {
	keys := make([]string, 0, len(prev)+len(next))
	for k := range prev {
		keys = append(keys, k)
	}
	for k := range next {
		if _, ok := prev[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		p := schema.Join(path, k)
		ov, inPrev := prev[k]
		nv, inNext := next[k]
		switch {
		case !inPrev:
			d.emit(Change{Path: p, NewValue: nv, Type: Added})
		case !inNext:
			d.emit(Change{Path: p, OldValue: ov, Type: Removed})
		default:
			om, oIsMap := ov.(map[string]any)
			nm, nIsMap := nv.(map[string]any)
			if oIsMap && nIsMap {
				d.objects(om, nm, p)
				continue
			}
			if !coerce.Equal(ov, nv) {
				d.emit(Change{Path: p, OldValue: ov, NewValue: nv, Type: Changed})
			}
		}
	}
}

// emit masks sensitive values.  A whole value is masked when its path is
// sensitive; otherwise sensitive fields nested inside it are.
func (d *differ) emit(c Change) {
	if d.sensitive.Covers(c.Path) {
		if c.Type != Added {
			c.OldValue = MaskToken
		}
		if c.Type != Removed {
			c.NewValue = MaskToken
		}
	} else if len(d.sensitive) > 0 {
		c.OldValue = d.sensitive.Mask(c.Path, c.OldValue, MaskToken)
		c.NewValue = d.sensitive.Mask(c.Path, c.NewValue, MaskToken)
	}
	d.out = append(d.out, c)
}
