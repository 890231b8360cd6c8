package engine

import (
	"reflect"

	"dario.cat/mergo"
	"github.com/google/uuid"
	"github.com/tiendc/go-deepcopy"

	"github.com/hustlerlabs/hustler/types"
)

// Cloner lets a change payload control its own copy semantics. Payloads
// holding resources that cannot be meaningfully deep-copied (handles,
// connections) implement Clone to transfer or share them explicitly instead
// of relying on the generic deep copy.
type Cloner interface {
	Clone() any
}

// Station is the immutable state envelope passed between tasks. It carries
// the run-wide capital by reference, a branch-local change payload, and a
// lineage tag tracing the fork path that produced it. A Station is never
// mutated after construction; Fork returns a new one.
type Station struct {
	capital any
	change  any
	lineage string
}

// NewStation creates the root envelope for a run.
func NewStation(capital, change any) *Station {
	return &Station{capital: capital, change: change, lineage: "root"}
}

// Capital returns the run-wide shared state. Every station derived from one
// root returns the same reference; delivery steps mutate it in place.
func (s *Station) Capital() any { return s.capital }

// Change returns the branch-local payload owned by this station.
func (s *Station) Change() any { return s.change }

// Lineage returns the fork path of this station, e.g. "root/3f9a21c4".
func (s *Station) Lineage() string { return s.lineage }

// Fork produces an independent envelope for a new branch: change is deeply
// copied (via Cloner when implemented), the optional patch is field-merged
// onto the copy, capital is carried by reference, and the lineage tag is
// extended with a fresh suffix. The receiver is left untouched.
func (s *Station) Fork(patch map[string]any) (*Station, error) {
	change, err := cloneChange(s.change)
	if err != nil {
		return nil, err
	}
	change, err = applyPatch(change, patch)
	if err != nil {
		return nil, err
	}
	return &Station{
		capital: s.capital,
		change:  change,
		lineage: s.lineage + "/" + uuid.NewString()[:8],
	}, nil
}

func cloneChange(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if c, ok := v.(Cloner); ok {
		return c.Clone(), nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return v, nil
		}
		dst := reflect.New(rv.Type().Elem())
		if err := deepcopy.Copy(dst.Interface(), rv.Elem().Interface()); err != nil {
			return nil, types.NewConfigurationError(
				"change payload %T is not deep-copyable; implement engine.Cloner", v).WithCause(err)
		}
		return dst.Interface(), nil
	}

	dst := reflect.New(rv.Type())
	if err := deepcopy.Copy(dst.Interface(), v); err != nil {
		return nil, types.NewConfigurationError(
			"change payload %T is not deep-copyable; implement engine.Cloner", v).WithCause(err)
	}
	return dst.Elem().Interface(), nil
}

// applyPatch merges a move payload onto the forked change when its
// representation supports field-merge: maps merge key-wise, struct pointers
// merge by field name. Other representations carry the copy unchanged.
func applyPatch(change any, patch map[string]any) (any, error) {
	if len(patch) == 0 {
		return change, nil
	}

	switch c := change.(type) {
	case map[string]any:
		if err := mergo.Merge(&c, patch, mergo.WithOverride); err != nil {
			return nil, types.NewConfigurationError("merging move payload").WithCause(err)
		}
		return c, nil
	}

	rv := reflect.ValueOf(change)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Elem().Kind() == reflect.Struct {
		if err := mergo.Map(change, patch, mergo.WithOverride); err != nil {
			return nil, types.NewConfigurationError("merging move payload").WithCause(err)
		}
		return change, nil
	}

	return change, nil
}
