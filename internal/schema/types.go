// Package schema infers table schemas from raw tabular rows.
//
// It owns the column model shared by every backend: the type tag decided
// from the first data row, the normalized identifier derived from the
// header, and the authoritative column order replayed on every read.
// This package has no storage dependencies.
package schema

import (
	"fmt"
	"strings"
)

// TypeTag is the storage class of a column.
type TypeTag int

const (
	ShortText TypeTag = iota
	Integer
	Decimal
	LongText
	Binary
)

func (t TypeTag) String() string {
	switch t {
	case Integer:
		return "integer"
	case Decimal:
		return "decimal"
	case LongText:
		return "long_text"
	case Binary:
		return "binary"
	default:
		return "short_text"
	}
}

// MarshalText renders the tag by name in JSON and YAML output.
func (t TypeTag) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ParseTypeTag is the inverse of TypeTag.String.
func ParseTypeTag(s string) (TypeTag, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "short_text", "":
		return ShortText, nil
	case "integer":
		return Integer, nil
	case "decimal":
		return Decimal, nil
	case "long_text":
		return LongText, nil
	case "binary":
		return Binary, nil
	}
	return ShortText, fmt.Errorf("unknown type tag: %q", s)
}

// SurrogateKey is the auto-generated identity column of relational targets.
const SurrogateKey = "system_id"

// DocumentIDKey is the stable key under which a document's native id is surfaced.
const DocumentIDKey = "id"

// ColumnDescriptor describes one source column. It is created once per
// import and never mutated afterward.
type ColumnDescriptor struct {
	OrdinalIndex int     `json:"index"`
	RawHeader    string  `json:"raw_header"`
	Name         string  `json:"name"`
	Type         TypeTag `json:"type"`
	IsImage      bool    `json:"is_image"`
}

// TableSchema is the full description of one import target.
type TableSchema struct {
	Target       string             `json:"target"`
	Columns      []ColumnDescriptor `json:"columns"`
	SurrogateKey string             `json:"surrogate_key,omitempty"`
}

// Names returns the normalized column names in descriptor order,
// excluding the surrogate key.
func (s TableSchema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Order returns the authoritative column order. The surrogate key, when
// set, comes first.
func (s TableSchema) Order() []string {
	if s.SurrogateKey == "" {
		return s.Names()
	}
	return append([]string{s.SurrogateKey}, s.Names()...)
}

// ImageColumns returns the names of the image-bearing columns.
func (s TableSchema) ImageColumns() []string {
	var out []string
	for _, c := range s.Columns {
		if c.IsImage {
			out = append(out, c.Name)
		}
	}
	return out
}

// Column looks up a descriptor by normalized name.
func (s TableSchema) Column(name string) (ColumnDescriptor, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDescriptor{}, false
}

// WithSurrogateKey returns a copy of s that carries the relational
// surrogate key.
func (s TableSchema) WithSurrogateKey() TableSchema {
	s.SurrogateKey = SurrogateKey
	return s
}

// JoinOrder serializes a column order for the metadata side table.
// Names are restricted to [a-z0-9_] so commas never need escaping.
func JoinOrder(names []string) string {
	return strings.Join(names, ",")
}

// SplitOrder is the inverse of JoinOrder.
func SplitOrder(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinTypes serializes the type of every column as name:type pairs.
func JoinTypes(cols []ColumnDescriptor) string {
	pairs := make([]string, len(cols))
	for i, c := range cols {
		pairs[i] = c.Name + ":" + c.Type.String()
	}
	return strings.Join(pairs, ",")
}

// SplitTypes is the inverse of JoinTypes. Malformed pairs are skipped.
func SplitTypes(s string) map[string]TypeTag {
	out := make(map[string]TypeTag)
	for _, pair := range SplitOrder(s) {
		name, tag, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		t, err := ParseTypeTag(tag)
		if err != nil {
			continue
		}
		out[name] = t
	}
	return out
}
