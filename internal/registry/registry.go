// Package registry defines the record-type registry collaborator
// interface (spec §6: record type -> {schema, semantic fields, keyword
// fields}) and a concrete TOML-backed implementation so the pipeline is
// runnable without a bespoke registry service.
package registry

import (
	"fmt"

	"vectorpart/internal/digest"
	"vectorpart/internal/errs"
)

// FieldSchema is one field's validation rule.
type FieldSchema struct {
	Type     string
	Alias    string
	Required bool
	Default  any
}

// Schema validates and enumerates a record type's fields.
type Schema interface {
	Fields() map[string]FieldSchema
	Validate(record map[string]any) (map[string]any, error)
}

// RecordType is one entry in the registry.
type RecordType struct {
	Name           string
	Schema         Schema
	SemanticFields []string
	KeywordFields  []string
}

// FieldSpecs converts the schema's field map into digest.FieldSpec values
// suitable for schema-signature computation.
func (rt *RecordType) FieldSpecs() []digest.FieldSpec {
	fields := rt.Schema.Fields()
	out := make([]digest.FieldSpec, 0, len(fields))
	for name, f := range fields {
		out = append(out, digest.FieldSpec{
			Name:     name,
			Type:     f.Type,
			Alias:    f.Alias,
			Required: f.Required,
			Default:  f.Default,
		})
	}
	return out
}

// Registry is the mapping consumed by the pipeline.
type Registry interface {
	RecordType(name string) (*RecordType, error)
	RecordTypes() []string
}

// staticSchema is a map-backed Schema: required fields must be present and
// non-nil, everything else passes through (or defaults are applied).
type staticSchema struct {
	fields map[string]FieldSchema
}

func (s *staticSchema) Fields() map[string]FieldSchema { return s.fields }

func (s *staticSchema) Validate(record map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(record))
	for k, v := range record {
		out[k] = v
	}
	for name, f := range s.fields {
		v, present := out[name]
		if (!present || v == nil) && f.Required {
			return nil, errs.New(errs.Validation, fmt.Errorf("registry: field %q is required", name))
		}
		if (!present || v == nil) && f.Default != nil {
			out[name] = f.Default
		}
	}
	return out, nil
}

// staticRegistry is a Registry backed by an in-memory map, populated from
// a TOML document.
type staticRegistry struct {
	types map[string]*RecordType
	names []string
}

func (r *staticRegistry) RecordType(name string) (*RecordType, error) {
	rt, ok := r.types[name]
	if !ok {
		return nil, errs.New(errs.Config, fmt.Errorf("registry: unknown record type %q", name))
	}
	return rt, nil
}

func (r *staticRegistry) RecordTypes() []string { return r.names }
