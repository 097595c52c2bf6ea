package viewdb

import (
	"github.com/autom8ter/viewdb/errors"
	"github.com/autom8ter/viewdb/javascript"
)

// ScriptConfig declares a grouping or sorting function written in javascript.
//
// A grouping function receives (collection, key[, object][, metadata]) depending on its inputs and returns the
// group name, or null/undefined/"" to exclude the row. A sorting function receives the group followed by the
// declared inputs of both rows and returns a negative number, zero or a positive number. Objects and metadata are
// passed as plain javascript objects (null when absent).
type ScriptConfig struct {
	Inputs InputSet `json:"inputs" validate:"required"`
	Source string   `json:"source" validate:"required"`
}

// scriptFunc is a grouping or sorting function backed by a javascript function
type scriptFunc struct {
	fn *javascript.Function
}

func scriptArgs(inputs InputSet, row *Row) []any {
	args := []any{row.Collection, row.Key}
	if inputs.needsObject() {
		args = append(args, documentValue(row.Object))
	}
	if inputs.needsMetadata() {
		args = append(args, documentValue(row.Metadata))
	}
	return args
}

func documentValue(doc *Document) any {
	if doc == nil {
		return nil
	}
	return doc.Value()
}

func (s *scriptFunc) group(inputs InputSet, row *Row) (string, error) {
	group, ok, err := s.fn.CallString(scriptArgs(inputs, row)...)
	if err != nil || !ok {
		return "", err
	}
	return group, nil
}

func (s *scriptFunc) sort(inputs InputSet, group string, r1, r2 *Row) (int, error) {
	args := append([]any{group}, scriptArgs(inputs, r1)...)
	args = append(args, scriptArgs(inputs, r2)...)
	c, err := s.fn.CallFloat(args...)
	if err != nil {
		return 0, err
	}
	switch {
	case c < 0:
		return -1, nil
	case c > 0:
		return 1, nil
	default:
		return 0, nil
	}
}

// script compiles the source, reusing a cached program when the same source was compiled before
func (d *Database) script(cfg ScriptConfig) (*scriptFunc, error) {
	if !cfg.Inputs.valid() {
		return nil, errors.New(errors.Configuration, "invalid script inputs: %v", cfg.Inputs)
	}
	program, ok := d.programs.Get(cfg.Source)
	if !ok {
		var err error
		program, err = javascript.Script(cfg.Source).Compile()
		if err != nil {
			return nil, err
		}
		d.programs.Add(cfg.Source, program)
	}
	fn, err := program.Instantiate(nil)
	if err != nil {
		return nil, err
	}
	return &scriptFunc{fn: fn}, nil
}

// NewJavascriptView builds a view from javascript grouping and sorting functions
func (d *Database) NewJavascriptView(grouping, sorting ScriptConfig, opts ...ViewOpt) (*View, error) {
	g, err := d.script(grouping)
	if err != nil {
		return nil, errors.Wrap(err, 0, "grouping")
	}
	s, err := d.script(sorting)
	if err != nil {
		return nil, errors.Wrap(err, 0, "sorting")
	}
	return NewView(
		&Grouping{Inputs: grouping.Inputs, script: g},
		&Sorting{Inputs: sorting.Inputs, script: s},
		opts...,
	), nil
}
