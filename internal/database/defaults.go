// internal/database/defaults.go
//
// SQL-backed caller defaults.
//
// Context
// -------
// Some deployments keep per-environment defaults in a table instead of a
// file:
//
//	CREATE TABLE app_defaults (
//	  `scope` VARCHAR(64)  NOT NULL,
//	  `key`   VARCHAR(255) NOT NULL,   -- dotted path, e.g. db.pool.max
//	  `value` TEXT         NOT NULL,
//	  PRIMARY KEY (`scope`, `key`)
//	);
//
// DefaultsTree reads one scope and expands the dotted keys into the nested
// map settings.Options.Defaults expects.  Values are strings and go
// through the normal coercion rules; a value that is a JSON array or
// object literal is decoded with gjson so array options can have defaults.
//
// Notes
// -----
//   - Table names cannot be bound as parameters, so they are checked
//     against a strict identifier pattern before being quoted.
//   - A key that is both a leaf and a prefix of another key ("db" and
//     "db.host") is rejected.
package database

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// ErrBadIdentifier is returned for table names that are not plain
// identifiers.
var ErrBadIdentifier = errors.New("database: invalid table identifier")

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}(\.[A-Za-z_][A-Za-z0-9_]{0,63})?$`)

type defaultRow struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

// DefaultsTree loads the rows of table for scope.  An empty scope reads the
// whole table.
func DefaultsTree(ctx context.Context, db sqlx.QueryerContext, table, scope string) (map[string]any, error) {
	quoted, err := quoteIdent(table)
	if err != nil {
		return nil, err
	}

	q := "SELECT `key`, `value` FROM " + quoted
	var args []any
	if scope != "" {
		q += " WHERE `scope` = ?"
		args = append(args, scope)
	}
	q += " ORDER BY `key`"

	var rows []defaultRow
	if err := sqlx.SelectContext(ctx, db, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("defaults %s: %w", table, err)
	}

	tree := make(map[string]any)
	for _, r := range rows {
		if err := insert(tree, r.Key, decode(r.Value)); err != nil {
			return nil, fmt.Errorf("defaults %s: %w", table, err)
		}
	}
	zap.S().Debugw("defaults loaded from database", "table", table, "scope", scope, "rows", len(rows))
	return tree, nil
}

func quoteIdent(name string) (string, error) {
	if !identRe.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrBadIdentifier, name)
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = "`" + p + "`"
	}
	return strings.Join(parts, "."), nil
}

func decode(v string) any {
	t := strings.TrimSpace(v)
	if (strings.HasPrefix(t, "[") || strings.HasPrefix(t, "{")) && gjson.Valid(t) {
		return gjson.Parse(t).Value()
	}
	return v
}

func insert(tree map[string]any, key string, val any) error {
	segs := strings.Split(key, ".")
	cur := tree
	for i, seg := range segs {
		if seg == "" {
			return fmt.Errorf("empty segment in key %q", key)
		}
		if i == len(segs)-1 {
			if _, exists := cur[seg]; exists {
				return fmt.Errorf("key %q conflicts with a nested key", key)
			}
			cur[seg] = val
			return nil
		}
		next, exists := cur[seg]
		if !exists {
			m := make(map[string]any)
			cur[seg] = m
			cur = m
			continue
		}
		m, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("key %q is nested under a value", key)
		}
		cur = m
	}
	return nil
}
