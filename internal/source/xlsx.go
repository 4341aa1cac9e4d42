package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/sheetimport/internal/imaging"
	"github.com/JonMunkholm/sheetimport/internal/schema"
)

// XLSXReader reads the first worksheet of an Office Open XML workbook.
// Pictures anchored to data cells are returned in Source.Images and their
// cells, when otherwise empty, carry the [IMAGE] marker.
type XLSXReader struct{}

// Read implements Reader.
func (XLSXReader) Read(ctx context.Context, path string) (*Source, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 || isBlankRow(rows[0]) {
		return nil, ErrEmptyFile
	}

	pictures, err := sheetPictures(f, sheet)
	if err != nil {
		return nil, err
	}

	// Sheet rows holding only pictures may lie past the last row with values.
	last := len(rows)
	for c := range pictures {
		if c.Row+1 > last {
			last = c.Row + 1
		}
	}

	src := &Source{Headers: rows[0], Images: make(imaging.ImageMap)}
	width := len(src.Headers)

	for sheetRow := 1; sheetRow < last; sheetRow++ {
		if sheetRow%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		var rec []string
		if sheetRow < len(rows) {
			rec = rows[sheetRow]
		}

		anchored := make(map[int][]byte)
		for c, b := range pictures {
			if c.Row == sheetRow && c.Col < width {
				anchored[c.Col] = b
			}
		}
		if isBlankRow(rec) && len(anchored) == 0 {
			continue
		}

		dataRow := len(src.Rows)
		for len(rec) < width && len(anchored) > 0 {
			rec = append(rec, "")
		}
		for col, b := range anchored {
			src.Images[imaging.Cell{Row: dataRow, Col: col}] = b
			if strings.TrimSpace(rec[col]) == "" {
				rec[col] = schema.ImageMarker
			}
		}
		src.Rows = append(src.Rows, rec)
	}
	return src, nil
}

// sheetPictures returns the first picture anchored at each cell, keyed by
// zero-based sheet coordinates.
func sheetPictures(f *excelize.File, sheet string) (map[imaging.Cell][]byte, error) {
	cells, err := f.GetPictureCells(sheet)
	if err != nil {
		return nil, fmt.Errorf("list pictures of %q: %w", sheet, err)
	}

	out := make(map[imaging.Cell][]byte, len(cells))
	for _, ref := range cells {
		col, row, err := excelize.CellNameToCoordinates(ref)
		if err != nil {
			continue
		}
		pics, err := f.GetPictures(sheet, ref)
		if err != nil {
			return nil, fmt.Errorf("read picture %s: %w", ref, err)
		}
		if len(pics) == 0 || len(pics[0].File) == 0 {
			continue
		}
		out[imaging.Cell{Row: row - 1, Col: col - 1}] = pics[0].File
	}
	return out, nil
}
