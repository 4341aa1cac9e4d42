package schema

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Cell sentinels written by readers for image-bearing cells.
const (
	ImageMarker      = "[IMAGE]"
	ImagePlaceholder = "[IMAGE_PLACEHOLDER]"
)

// LongTextThreshold is the rune length above which text is stored as LongText.
const LongTextThreshold = 255

var decimalRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// IsImageSentinel reports whether a cell value marks an image cell.
func IsImageSentinel(v string) bool {
	return v == ImageMarker || v == ImagePlaceholder
}

// Infer guesses the storage class of a single sample value. A missing cell
// is passed as "" and infers like a blank one.
func Infer(v string) TypeTag {
	if IsImageSentinel(v) {
		return Binary
	}

	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return ShortText
	}
	if _, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return Integer
	}
	if decimalRegex.MatchString(trimmed) {
		return Decimal
	}
	if utf8.RuneCountInString(v) > LongTextThreshold {
		return LongText
	}
	return ShortText
}

// InferRow infers one tag per column from the first data row. Columns
// beyond the end of a short row infer as ShortText.
//
// Only the first row is consulted: a column whose first value is blank is
// ShortText for the lifetime of the table even if later rows are numeric.
func InferRow(first []string, width int) []TypeTag {
	tags := make([]TypeTag, width)
	for i := range tags {
		if i < len(first) {
			tags[i] = Infer(first[i])
		}
	}
	return tags
}

// Build derives the schema of target from a header row and the first data
// row. Image classification is applied separately by the caller.
func Build(target string, headers []string, first []string) TableSchema {
	names := NormalizeHeaders(headers)
	tags := InferRow(first, len(headers))

	cols := make([]ColumnDescriptor, len(headers))
	for i, h := range headers {
		cols[i] = ColumnDescriptor{
			OrdinalIndex: i,
			RawHeader:    h,
			Name:         names[i],
			Type:         tags[i],
		}
	}
	return TableSchema{Target: target, Columns: cols}
}
