// Package imaging decides which columns carry images and converts image
// payloads to and from data URIs.
package imaging

import (
	"strings"

	"github.com/JonMunkholm/sheetimport/internal/schema"
)

// Cell addresses a data cell: Row is the zero-based data row (the header
// row is not counted), Col the zero-based column index.
type Cell struct {
	Row int
	Col int
}

// ImageMap holds the image bytes an extraction pass found anchored to cells.
type ImageMap map[Cell][]byte

// Get returns the payload anchored at (row, col), or nil.
func (m ImageMap) Get(row, col int) []byte {
	if m == nil {
		return nil
	}
	return m[Cell{Row: row, Col: col}]
}

// HasColumn reports whether any cell of column col has an image.
func (m ImageMap) HasColumn(col int) bool {
	for c, b := range m {
		if c.Col == col && len(b) > 0 {
			return true
		}
	}
	return false
}

// DefaultKeywords are header fragments that mark a column as image-bearing.
var DefaultKeywords = []string{
	"图片", "照片", "相片", "图像", "头像",
	"pic", "image", "img", "photo", "picture", "logo", "icon", "avatar",
}

// IsImageHeader reports whether header contains one of keywords,
// case-insensitively.
func IsImageHeader(header string, keywords []string) bool {
	h := strings.ToLower(header)
	for _, k := range keywords {
		if k != "" && strings.Contains(h, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// Classify reports whether col is image-bearing. Any one of these is enough:
// the column was inferred as Binary, its raw header matches a keyword, or
// images has a payload anchored in the column.
func Classify(col schema.ColumnDescriptor, images ImageMap, keywords []string) bool {
	if col.Type == schema.Binary {
		return true
	}
	if IsImageHeader(col.RawHeader, keywords) {
		return true
	}
	return images.HasColumn(col.OrdinalIndex)
}

// Apply classifies every column of s in place. A classified column that
// has image bytes anchored in it is stored as Binary.
func Apply(s *schema.TableSchema, images ImageMap, keywords []string) {
	for i := range s.Columns {
		c := &s.Columns[i]
		c.IsImage = Classify(*c, images, keywords)
		if c.IsImage && images.HasColumn(c.OrdinalIndex) {
			c.Type = schema.Binary
		}
	}
}

// CellValue resolves the value written for an image column cell: the
// anchored bytes when present, nil for a sentinel without payload, and the
// text unchanged otherwise.
func CellValue(images ImageMap, row, col int, text string) any {
	if b := images.Get(row, col); len(b) > 0 {
		return b
	}
	if schema.IsImageSentinel(text) || strings.TrimSpace(text) == "" {
		return nil
	}
	return text
}
