package core

import (
	"context"
	"fmt"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/sheetimport/internal/imaging"
	"github.com/JonMunkholm/sheetimport/internal/logging"
	"github.com/JonMunkholm/sheetimport/internal/schema"
	"github.com/JonMunkholm/sheetimport/internal/store"
)

const (
	maxSheetName       = 31
	pictureRowHeight   = 60
	pictureColumnWidth = 16
)

var pictureExt = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/bmp":  ".bmp",
}

// ExportXLSX writes target as a one-sheet workbook in its recorded column
// order. Binary cells become pictures anchored in their cell; a payload
// that cannot be placed as a picture is written as a data URI instead.
func (s *Service) ExportXLSX(ctx context.Context, b store.Backend, target string, w io.Writer) error {
	headers, rows, err := s.load(ctx, b, target, 0, 0)
	if err != nil {
		return err
	}
	if b == store.BackendDocument {
		headers = append([]string{schema.DocumentIDKey}, headers...)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := target
	if len(sheet) > maxSheetName {
		sheet = sheet[:maxSheetName]
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	logger := logging.WithFields(ctx, "backend", b, "target", target)
	pictureCols := make(map[int]bool)
	pictures := 0

	for r, row := range rows {
		sheetRow := r + 2
		placed := false

		for c, h := range headers {
			cell, err := excelize.CoordinatesToCellName(c+1, sheetRow)
			if err != nil {
				return err
			}

			v := row[h]
			switch val := v.(type) {
			case nil:
				continue
			case []byte:
				if len(val) == 0 {
					continue
				}
				if err := addPicture(f, sheet, cell, val); err != nil {
					logger.Warn("picture not embedded, writing data URI", "cell", cell, "error", err)
					v = imaging.EncodeDataURI(val)
					break
				}
				pictureCols[c] = true
				placed = true
				pictures++
				continue
			}

			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("write %s: %w", cell, err)
			}
		}

		if placed {
			if err := f.SetRowHeight(sheet, sheetRow, pictureRowHeight); err != nil {
				return err
			}
		}
	}

	for c := range pictureCols {
		name, err := excelize.ColumnNumberToName(c + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, name, name, pictureColumnWidth); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	logger.Info("workbook exported", "rows", len(rows), "pictures", pictures)
	return nil
}

// addPicture anchors b in cell, scaled to fit it.
func addPicture(f *excelize.File, sheet, cell string, b []byte) error {
	ext, ok := pictureExt[imaging.DetectMIME(b)]
	if !ok {
		return fmt.Errorf("unsupported picture type")
	}
	return f.AddPictureFromBytes(sheet, cell, &excelize.Picture{
		Extension: ext,
		File:      b,
		Format:    &excelize.GraphicOptions{AutoFit: true, LockAspectRatio: true},
	})
}
