package gqlcache

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/c360/gqlclients/errors"
)

// document is the part of a parsed operation the cache walks
type document struct {
	root      string
	selection ast.SelectionSet
	fragments ast.FragmentDefinitionList
	vars      map[string]any
}

func parse(query, operationName string, vars map[string]any) (*document, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: query})
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%v: %w", err, errors.ErrParsingFailed),
			"Cache", "parse", "operation")
	}
	if len(doc.Operations) == 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("no operation in document: %w", errors.ErrParsingFailed),
			"Cache", "parse", "operation")
	}

	op := doc.Operations[0]
	if operationName != "" {
		if named := doc.Operations.ForName(operationName); named != nil {
			op = named
		}
	}

	root := RootQuery
	switch op.Operation {
	case ast.Mutation:
		root = RootMutation
	case ast.Subscription:
		root = RootSubscription
	}
	return &document{root: root, selection: op.SelectionSet, fragments: doc.Fragments, vars: vars}, nil
}

// rootField is one top-level field with its storage key under the root id
type rootField struct {
	field    *ast.Field
	storeKey string
}

// rootFields flattens fragments at the top level
func (d *document) rootFields() ([]rootField, error) {
	var out []rootField
	var walk func(set ast.SelectionSet) error
	walk = func(set ast.SelectionSet) error {
		for _, sel := range set {
			switch s := sel.(type) {
			case *ast.Field:
				if s.Name == typenameField {
					continue
				}
				key, err := storeKey(s, d.vars)
				if err != nil {
					return err
				}
				out = append(out, rootField{field: s, storeKey: key})
			case *ast.InlineFragment:
				if err := walk(s.SelectionSet); err != nil {
					return err
				}
			case *ast.FragmentSpread:
				if def := d.fragments.ForName(s.Name); def != nil {
					if err := walk(def.SelectionSet); err != nil {
						return err
					}
				}
			}
		}
		return nil
	}
	if err := walk(d.selection); err != nil {
		return nil, err
	}
	return out, nil
}

// storeKey is the field name, followed by its arguments as sorted JSON when
// it has any: user({"id":"1"})
func storeKey(f *ast.Field, vars map[string]any) (string, error) {
	if len(f.Arguments) == 0 {
		return f.Name, nil
	}
	args := make(map[string]any, len(f.Arguments))
	names := make([]string, 0, len(f.Arguments))
	for _, arg := range f.Arguments {
		value, err := arg.Value.Value(vars)
		if err != nil {
			return "", errors.WrapInvalid(err, "Cache", "storeKey", f.Name+"."+arg.Name)
		}
		args[arg.Name] = value
		names = append(names, arg.Name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(f.Name)
	b.WriteString("({")
	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		k, _ := json.Marshal(name)
		v, err := json.Marshal(args[name])
		if err != nil {
			return "", errors.WrapInvalid(err, "Cache", "storeKey", f.Name+"."+name)
		}
		b.Write(k)
		b.WriteByte(':')
		b.Write(v)
	}
	b.WriteString("})")
	return b.String(), nil
}
