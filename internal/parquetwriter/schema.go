// Copyright 2025 The dmpworks Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package parquetwriter

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/parquet-go/parquet-go"
)

// Kind enumerates the column types the writer supports. The set is exactly
// what the source schemas need; anything else is a schema authoring error.
type Kind int

const (
	KindString Kind = iota
	KindBool
	KindInt64
	KindFloat64
	KindDate
	KindTimestamp
	KindList
	KindStruct
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindDate:
		return "date"
	case KindTimestamp:
		return "timestamp"
	case KindList:
		return "list"
	case KindStruct:
		return "struct"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Type describes a column type. Elem is set for lists, Fields for structs.
type Type struct {
	Kind   Kind
	Elem   *Type
	Fields []FieldDef
}

// FieldDef is one named, typed column or struct member.
type FieldDef struct {
	Name     string
	Type     Type
	Nullable bool
}

// Type constructors, shaped so schema declarations read field by field like
// the source format documentation they are transcribed from.

func String() Type    { return Type{Kind: KindString} }
func Bool() Type      { return Type{Kind: KindBool} }
func Int64() Type     { return Type{Kind: KindInt64} }
func Float64() Type   { return Type{Kind: KindFloat64} }
func Date() Type      { return Type{Kind: KindDate} }
func Timestamp() Type { return Type{Kind: KindTimestamp} }

func ListOf(elem Type) Type {
	return Type{Kind: KindList, Elem: &elem}
}

func StructOf(fields ...FieldDef) Type {
	return Type{Kind: KindStruct, Fields: fields}
}

// Field declares a column or struct member.
func Field(name string, t Type, nullable bool) FieldDef {
	return FieldDef{Name: name, Type: t, Nullable: nullable}
}

// Schema is the fixed column set every row of a run must satisfy.
type Schema struct {
	Name   string
	Fields []FieldDef

	index map[string]int
	pq    *parquet.Schema
}

// NewSchema validates the field definitions and compiles the parquet node
// tree once up front, so schema errors surface at startup rather than on the
// first flush.
func NewSchema(name string, fields ...FieldDef) (*Schema, error) {
	if name == "" {
		return nil, &ConfigError{Field: "Name", Message: "cannot be empty"}
	}
	if len(fields) == 0 {
		return nil, &ConfigError{Field: "Fields", Message: "cannot be empty"}
	}
	index := make(map[string]int, len(fields))
	for i, f := range fields {
		if f.Name == "" {
			return nil, &ConfigError{Field: "Fields", Message: fmt.Sprintf("field %d has no name", i)}
		}
		if _, dup := index[f.Name]; dup {
			return nil, &ConfigError{Field: "Fields", Message: fmt.Sprintf("duplicate field %q", f.Name)}
		}
		if err := validateType(f.Name, f.Type); err != nil {
			return nil, err
		}
		index[f.Name] = i
	}

	s := &Schema{Name: name, Fields: fields, index: index}
	nodes := make(parquet.Group, len(fields))
	for _, f := range fields {
		nodes[f.Name] = nodeOf(f.Type, f.Nullable)
	}
	s.pq = parquet.NewSchema(name, nodes)
	return s, nil
}

// MustSchema is NewSchema for package-level schema declarations.
func MustSchema(name string, fields ...FieldDef) *Schema {
	s, err := NewSchema(name, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

func validateType(path string, t Type) error {
	switch t.Kind {
	case KindList:
		if t.Elem == nil {
			return &ConfigError{Field: "Fields", Message: fmt.Sprintf("list field %q has no element type", path)}
		}
		return validateType(path+"[]", *t.Elem)
	case KindStruct:
		if len(t.Fields) == 0 {
			return &ConfigError{Field: "Fields", Message: fmt.Sprintf("struct field %q has no members", path)}
		}
		seen := make(map[string]struct{}, len(t.Fields))
		for _, f := range t.Fields {
			if f.Name == "" {
				return &ConfigError{Field: "Fields", Message: fmt.Sprintf("struct field %q has an unnamed member", path)}
			}
			if _, dup := seen[f.Name]; dup {
				return &ConfigError{Field: "Fields", Message: fmt.Sprintf("struct field %q has duplicate member %q", path, f.Name)}
			}
			seen[f.Name] = struct{}{}
			if err := validateType(path+"."+f.Name, f.Type); err != nil {
				return err
			}
		}
	}
	return nil
}

// nodeOf maps a column type onto a parquet node. String leaves are
// dictionary encoded; identifiers and names repeat heavily across
// bibliographic records.
func nodeOf(t Type, nullable bool) parquet.Node {
	var n parquet.Node
	switch t.Kind {
	case KindString:
		n = parquet.Encoded(parquet.String(), &parquet.RLEDictionary)
	case KindBool:
		n = parquet.Leaf(parquet.BooleanType)
	case KindInt64:
		n = parquet.Int(64)
	case KindFloat64:
		n = parquet.Leaf(parquet.DoubleType)
	case KindDate:
		n = parquet.Date()
	case KindTimestamp:
		n = parquet.Timestamp(parquet.Microsecond)
	case KindList:
		n = parquet.List(nodeOf(*t.Elem, false))
	case KindStruct:
		group := make(parquet.Group, len(t.Fields))
		for _, f := range t.Fields {
			group[f.Name] = nodeOf(f.Type, f.Nullable)
		}
		n = group
	}
	if nullable {
		n = parquet.Optional(n)
	}
	return n
}

// Parquet returns the compiled parquet schema.
func (s *Schema) Parquet() *parquet.Schema {
	return s.pq
}

// Fingerprint hashes the canonical schema description. Logged at run start
// so output written under different builds can be compared cheaply.
func (s *Schema) Fingerprint() uint64 {
	var b strings.Builder
	b.WriteString(s.Name)
	b.WriteByte('{')
	writeCanonicalFields(&b, s.Fields)
	b.WriteByte('}')
	return xxhash.Sum64String(b.String())
}

func writeCanonicalFields(b *strings.Builder, fields []FieldDef) {
	sorted := make([]FieldDef, len(fields))
	copy(sorted, fields)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	for i, f := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f.Name)
		b.WriteByte(':')
		writeCanonicalType(b, f.Type)
		if f.Nullable {
			b.WriteByte('?')
		}
	}
}

func writeCanonicalType(b *strings.Builder, t Type) {
	switch t.Kind {
	case KindList:
		b.WriteString("list<")
		writeCanonicalType(b, *t.Elem)
		b.WriteByte('>')
	case KindStruct:
		b.WriteByte('{')
		writeCanonicalFields(b, t.Fields)
		b.WriteByte('}')
	default:
		b.WriteString(t.Kind.String())
	}
}

// epochDays converts a time to whole days since the Unix epoch. The
// difference is computed on Unix seconds rather than as a time.Duration,
// which saturates around ±292 years and would clamp far dates like the
// literal "9999" years that occur in real metadata.
func epochDays(d time.Time) int32 {
	secs := d.Unix()
	days := secs / 86400
	if secs%86400 < 0 {
		days--
	}
	return int32(days)
}

// NormalizeRow validates row against the schema and converts it to the
// storage representation: unknown columns and required nulls are rejected,
// time values become epoch micros (timestamp) or epoch days (date), lists
// and structs are normalized recursively. The input row is not modified.
func (s *Schema) NormalizeRow(row Row) (map[string]any, error) {
	for name := range row {
		if _, ok := s.index[name]; !ok {
			return nil, fmt.Errorf("%w: unexpected column %q", ErrSchemaViolation, name)
		}
	}
	out := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		v, err := normalizeValue(f.Name, f.Type, f.Nullable, row[f.Name])
		if err != nil {
			return nil, err
		}
		out[f.Name] = v
	}
	return out, nil
}

func normalizeValue(path string, t Type, nullable bool, v any) (any, error) {
	if v == nil {
		if !nullable {
			return nil, fmt.Errorf("%w: column %q is required", ErrSchemaViolation, path)
		}
		return nil, nil
	}

	switch t.Kind {
	case KindString:
		s, ok := v.(string)
		if !ok {
			return nil, typeError(path, t, v)
		}
		return s, nil

	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, typeError(path, t, v)
		}
		return b, nil

	case KindInt64:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		}
		return nil, typeError(path, t, v)

	case KindFloat64:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int64:
			return float64(n), nil
		case int:
			return float64(n), nil
		}
		return nil, typeError(path, t, v)

	case KindDate:
		d, ok := v.(time.Time)
		if !ok {
			return nil, typeError(path, t, v)
		}
		return epochDays(d), nil

	case KindTimestamp:
		ts, ok := v.(time.Time)
		if !ok {
			return nil, typeError(path, t, v)
		}
		return ts.UTC().UnixMicro(), nil

	case KindList:
		items, ok := v.([]any)
		if !ok {
			return nil, typeError(path, t, v)
		}
		out := make([]any, len(items))
		for i, item := range items {
			// A nil list element is always rejected; absence is
			// expressed by omitting the element.
			nv, err := normalizeValue(fmt.Sprintf("%s[%d]", path, i), *t.Elem, false, item)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil

	case KindStruct:
		m, ok := asMap(v)
		if !ok {
			return nil, typeError(path, t, v)
		}
		members := make(map[string]struct{}, len(t.Fields))
		out := make(map[string]any, len(t.Fields))
		for _, f := range t.Fields {
			members[f.Name] = struct{}{}
			nv, err := normalizeValue(path+"."+f.Name, f.Type, f.Nullable, m[f.Name])
			if err != nil {
				return nil, err
			}
			out[f.Name] = nv
		}
		for name := range m {
			if _, ok := members[name]; !ok {
				return nil, fmt.Errorf("%w: unexpected member %q in %q", ErrSchemaViolation, name, path)
			}
		}
		return out, nil
	}
	return nil, typeError(path, t, v)
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Row:
		return m, true
	}
	return nil, false
}

func typeError(path string, t Type, v any) error {
	return fmt.Errorf("%w: column %q expects %s, got %T", ErrSchemaViolation, path, t.Kind, v)
}
