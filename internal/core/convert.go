package core

// convert.go turns staged text cells into the values written to a store.
//
// The column type was fixed from the first data row, so later rows may not
// fit it. Integer and Decimal cells are cleaned of the usual spreadsheet
// artifacts (Excel ="..." wrappers, thousand separators, currency symbols,
// accounting parentheses) and become NULL when they still do not parse.
// Image columns resolve through the session's image map.

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/JonMunkholm/sheetimport/internal/imaging"
	"github.com/JonMunkholm/sheetimport/internal/schema"
)

var decimalRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// currencyReplacer strips symbols and separators that never carry value.
var currencyReplacer = strings.NewReplacer(
	"$", "", "€", "", "£", "", "¥", "", "￥", "",
	",", "", " ", "", "\u00a0", "",
)

// cleanExcelValue unwraps Excel's ="value" text-forcing prefix.
func cleanExcelValue(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) && len(s) >= 3 {
		return s[2 : len(s)-1]
	}
	return s
}

// cleanNumber normalizes a numeric cell; (123.45) becomes -123.45.
func cleanNumber(s string) string {
	s = cleanExcelValue(s)
	negative := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	if negative {
		s = s[1 : len(s)-1]
	}
	s = currencyReplacer.Replace(s)
	if negative && s != "" {
		s = "-" + s
	}
	return s
}

// toInteger returns an int64, or nil for blank or unparseable cells.
func toInteger(s string) any {
	s = cleanNumber(s)
	if s == "" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return n
}

// toDecimal returns the canonical decimal text, or nil. Stores receive the
// string so no precision is lost to float64.
func toDecimal(s string) any {
	s = cleanNumber(s)
	if !decimalRegex.MatchString(s) {
		return nil
	}
	return s
}

// cellValue converts one staged cell for column c of data row row.
func cellValue(c schema.ColumnDescriptor, images imaging.ImageMap, row int, text string) any {
	// Keyword matches can mark a typed column as image-bearing; such a
	// column is only written as image data when it holds some.
	if c.IsImage {
		if c.Type == schema.Binary || len(images.Get(row, c.OrdinalIndex)) > 0 {
			return imaging.CellValue(images, row, c.OrdinalIndex, text)
		}
		if schema.IsImageSentinel(text) {
			return nil
		}
	}

	switch c.Type {
	case schema.Integer:
		return toInteger(text)
	case schema.Decimal:
		return toDecimal(text)
	case schema.Binary:
		if schema.IsImageSentinel(text) || strings.TrimSpace(text) == "" {
			return nil
		}
		return []byte(text)
	default:
		return text
	}
}

// convertRows converts the staged rows [start, end) into store values
// aligned with s.Columns.
func convertRows(sess *Session, s schema.TableSchema, start, end int) [][]any {
	out := make([][]any, 0, end-start)
	for r := start; r < end; r++ {
		row := sess.Rows[r]
		values := make([]any, len(s.Columns))
		for i, c := range s.Columns {
			var text string
			if c.OrdinalIndex < len(row) {
				text = row[c.OrdinalIndex]
			}
			values[i] = cellValue(c, sess.Images, r, text)
		}
		out = append(out, values)
	}
	return out
}
