package registry

import (
	"fmt"
	"os"
	"sort"

	"github.com/BurntSushi/toml"

	"vectorpart/internal/errs"
)

// tomlDocument is the top-level [[record_types]] TOML document.
type tomlDocument struct {
	RecordTypes []tomlRecordType `toml:"record_types"`
}

type tomlRecordType struct {
	Name           string           `toml:"name"`
	SemanticFields []string         `toml:"semantic_fields"`
	KeywordFields  []string         `toml:"keyword_fields"`
	Fields         []tomlFieldEntry `toml:"fields"`
}

type tomlFieldEntry struct {
	Name     string `toml:"name"`
	Type     string `toml:"type"`
	Alias    string `toml:"alias"`
	Required bool   `toml:"required"`
	Default  any    `toml:"default"`
}

// FromTOML loads a record-type registry from a TOML document like:
//
//	[[record_types]]
//	name = "Table"
//	semantic_fields = ["description"]
//	keyword_fields = ["name"]
//	  [[record_types.fields]]
//	  name = "name"
//	  type = "string"
//	  required = true
func FromTOML(path string) (Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.New(errs.Config, fmt.Errorf("registry: read %q: %w", path, err))
	}

	var doc tomlDocument
	if _, err := toml.Decode(string(raw), &doc); err != nil {
		return nil, errs.New(errs.Config, fmt.Errorf("registry: decode %q: %w", path, err))
	}

	reg := &staticRegistry{types: map[string]*RecordType{}}
	for _, rt := range doc.RecordTypes {
		if rt.Name == "" {
			return nil, errs.New(errs.Config, fmt.Errorf("registry: record type entry missing name"))
		}
		if _, dup := reg.types[rt.Name]; dup {
			return nil, errs.New(errs.Config, fmt.Errorf("registry: duplicate record type %q", rt.Name))
		}

		fields := make(map[string]FieldSchema, len(rt.Fields))
		for _, f := range rt.Fields {
			if f.Name == "" {
				return nil, errs.New(errs.Config, fmt.Errorf("registry: record type %q has a field with no name", rt.Name))
			}
			fields[f.Name] = FieldSchema{Type: f.Type, Alias: f.Alias, Required: f.Required, Default: f.Default}
		}

		reg.types[rt.Name] = &RecordType{
			Name:           rt.Name,
			Schema:         &staticSchema{fields: fields},
			SemanticFields: rt.SemanticFields,
			KeywordFields:  rt.KeywordFields,
		}
		reg.names = append(reg.names, rt.Name)
	}
	sort.Strings(reg.names)

	return reg, nil
}
