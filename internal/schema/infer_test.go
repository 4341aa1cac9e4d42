package schema

import (
	"strings"
	"testing"
)

func TestInfer(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  TypeTag
	}{
		{"integer", "123", Integer},
		{"negative integer", "-42", Integer},
		{"decimal", "123.45", Decimal},
		{"leading dot decimal", ".5", Decimal},
		{"int64 overflow falls to decimal", "99999999999999999999", Decimal},
		{"empty", "", ShortText},
		{"whitespace only", "   ", ShortText},
		{"plain text", "Alice", ShortText},
		{"exactly 255 runes", strings.Repeat("a", 255), ShortText},
		{"256 runes", strings.Repeat("a", 256), LongText},
		{"256 CJK runes", strings.Repeat("字", 256), LongText},
		{"image marker", "[IMAGE]", Binary},
		{"image placeholder", "[IMAGE_PLACEHOLDER]", Binary},
		{"exponent is text", "1e5", ShortText},
		{"comma decimal is text", "1,5", ShortText},
		{"NaN is text", "NaN", ShortText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Infer(tt.value); got != tt.want {
				t.Errorf("Infer(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestInferRow_ShortRow(t *testing.T) {
	tags := InferRow([]string{"1", "2.5"}, 4)
	want := []TypeTag{Integer, Decimal, ShortText, ShortText}

	if len(tags) != len(want) {
		t.Fatalf("len = %d, want %d", len(tags), len(want))
	}
	for i := range want {
		if tags[i] != want[i] {
			t.Errorf("tags[%d] = %v, want %v", i, tags[i], want[i])
		}
	}
}

func TestBuild_FirstRowOnly(t *testing.T) {
	// A blank first value degrades the column to text even if later rows are numeric.
	s := Build("people", []string{"Name", "Age"}, []string{"Alice", ""})

	if s.Columns[1].Type != ShortText {
		t.Errorf("Age type = %v, want %v", s.Columns[1].Type, ShortText)
	}
	if s.Target != "people" {
		t.Errorf("Target = %q, want %q", s.Target, "people")
	}
}

func TestBuild_Scenario(t *testing.T) {
	s := Build("t", []string{"Name", "年龄", "Photo"}, []string{"Alice", "30", "[IMAGE]"})

	wantNames := []string{"name", "nianling", "photo"}
	wantTypes := []TypeTag{ShortText, Integer, Binary}

	for i, c := range s.Columns {
		if c.Name != wantNames[i] {
			t.Errorf("column %d name = %q, want %q", i, c.Name, wantNames[i])
		}
		if c.Type != wantTypes[i] {
			t.Errorf("column %d type = %v, want %v", i, c.Type, wantTypes[i])
		}
		if c.OrdinalIndex != i {
			t.Errorf("column %d index = %d", i, c.OrdinalIndex)
		}
	}
}

func TestTableSchema_Order(t *testing.T) {
	s := Build("t", []string{"a", "b"}, nil)

	if got := JoinOrder(s.Order()); got != "a,b" {
		t.Errorf("document order = %q, want %q", got, "a,b")
	}
	if got := JoinOrder(s.WithSurrogateKey().Order()); got != "system_id,a,b" {
		t.Errorf("relational order = %q, want %q", got, "system_id,a,b")
	}
}

func TestSplitOrder(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{"system_id,a,b", []string{"system_id", "a", "b"}},
		{" a , b ,", []string{"a", "b"}},
	}

	for _, tt := range tests {
		got := SplitOrder(tt.in)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("SplitOrder(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseTypeTag(t *testing.T) {
	for _, tag := range []TypeTag{ShortText, Integer, Decimal, LongText, Binary} {
		got, err := ParseTypeTag(tag.String())
		if err != nil {
			t.Fatalf("ParseTypeTag(%q) error = %v", tag.String(), err)
		}
		if got != tag {
			t.Errorf("ParseTypeTag(%q) = %v, want %v", tag.String(), got, tag)
		}
	}

	if _, err := ParseTypeTag("blob"); err == nil {
		t.Error("ParseTypeTag(blob) expected error")
	}
}

func TestJoinSplitTypes(t *testing.T) {
	cols := []ColumnDescriptor{
		{Name: "name", Type: ShortText},
		{Name: "age", Type: Integer},
		{Name: "score", Type: Decimal},
		{Name: "photo", Type: Binary},
	}
	joined := JoinTypes(cols)
	if joined != "name:short_text,age:integer,score:decimal,photo:binary" {
		t.Errorf("JoinTypes = %q", joined)
	}

	got := SplitTypes(joined + ",broken,bad:blob")
	if len(got) != len(cols) {
		t.Fatalf("SplitTypes = %v, want %d entries", got, len(cols))
	}
	for _, c := range cols {
		if got[c.Name] != c.Type {
			t.Errorf("SplitTypes[%q] = %v, want %v", c.Name, got[c.Name], c.Type)
		}
	}

	if len(SplitTypes("")) != 0 {
		t.Error("SplitTypes(\"\") should be empty")
	}
}
