// internal/schemafile/schemafile.go
//
// Schema documents for the confres CLI.
//
// Context
// -------
// Applications declare their schema in Go.  The CLI has no Go code to
// call, so it reads the same shape from YAML:
//
//	fields:
//	  port:
//	    kind: number
//	    required: true
//	    env: PORT
//	    cli: true
//	    oneOf: [80, 443, 8080]
//	    validate: "min=1,max=65535"
//	  db:                       # no kind: nested node
//	    fields:
//	      password: {kind: string, env: DB_PASSWORD, sensitive: true}
//	  servers:
//	    kind: array
//	    item:
//	      fields:
//	        host: {kind: string, required: true}
//
// Decoding runs yaml.v3 → mapstructure (unknown keys rejected) →
// go-playground/validator on every field document → schema constructors.
// Errors name the dotted path of the offending field.
package schemafile

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"

	"github.com/yanizio/confres/internal/schema"
)

// ErrInvalid wraps every structural problem in a schema document.
var ErrInvalid = errors.New("schemafile: invalid schema document")

// Document is the top level of a schema file.
type Document struct {
	Description string            `mapstructure:"description"`
	Fields      map[string]*Field `mapstructure:"fields" validate:"required,min=1"`
}

// Field describes one entry.  A Field without Kind is a nested node and
// must carry Fields.
type Field struct {
	Kind      string            `mapstructure:"kind" validate:"omitempty,oneof=string number boolean array object"`
	Required  bool              `mapstructure:"required"`
	Env       string            `mapstructure:"env"`
	CLI       bool              `mapstructure:"cli"`
	Default   any               `mapstructure:"default"`
	OneOf     []any             `mapstructure:"oneOf"`
	Sensitive bool              `mapstructure:"sensitive"`
	Help      string            `mapstructure:"help"`
	Validate  string            `mapstructure:"validate"`
	Item      *Field            `mapstructure:"item" validate:"required_if=Kind array"`
	Fields    map[string]*Field `mapstructure:"fields" validate:"required_if=Kind object,required_without=Kind"`
}

var v = validator.New()

// Load reads and decodes the schema document at path.
func Load(path string) (schema.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schemafile: %w", err)
	}
	n, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}

// Decode parses a YAML schema document.
func Decode(data []byte) (schema.Node, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	var doc Document
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		Result:      &doc,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := v.Struct(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return build(doc.Fields, "")
}

func build(fields map[string]*Field, prefix string) (schema.Node, error) {
	n := make(schema.Node, len(fields))
	for name, f := range fields {
		path := schema.Join(prefix, name)
		e, err := entry(f, path)
		if err != nil {
			return nil, err
		}
		n[name] = e
	}
	return n, nil
}

func entry(f *Field, path string) (schema.Entry, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: %s: empty field", ErrInvalid, path)
	}
	if err := v.Struct(f); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
	}
	if f.Kind == "" {
		return build(f.Fields, path)
	}
	if strings.ContainsAny(f.Env, " =\t\n") {
		return nil, fmt.Errorf("%w: %s: env name %q", ErrInvalid, path, f.Env)
	}

	c, err := common(f, path)
	if err != nil {
		return nil, err
	}

	var opt schema.Entry
	switch kind := schema.Kind(f.Kind); kind {
	case schema.KindArray:
		var item schema.Entry
		if item, err = entry(f.Item, path+"[]"); err != nil {
			return nil, err
		}
		opt, err = schema.NewArray(item, c)
	case schema.KindObject:
		var item schema.Node
		if item, err = build(f.Fields, path); err != nil {
			return nil, err
		}
		opt, err = schema.NewObject(item, c)
	default:
		opt, err = schema.NewPrimitive(kind, c)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return opt, nil
}

func common(f *Field, path string) (c schema.Common, err error) {
	c = schema.Common{
		Required:  f.Required,
		Env:       f.Env,
		CLI:       f.CLI,
		Default:   f.Default,
		OneOf:     f.OneOf,
		Sensitive: f.Sensitive,
		Help:      f.Help,
	}
	if f.Validate == "" {
		return c, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrInvalid, path, r)
		}
	}()
	c.Validate = schema.Tag(f.Validate)
	return c, nil
}
