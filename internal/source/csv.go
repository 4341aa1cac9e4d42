package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// sniffSize is how many leading bytes are inspected to pick a charset.
const sniffSize = 64 * 1024

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVReader reads comma-separated files. UTF-8 (with or without BOM) is
// read as is; anything that is not valid UTF-8 is decoded as GB18030, the
// usual charset of spreadsheet exports on Chinese Windows installs.
type CSVReader struct{}

// Read implements Reader.
func (CSVReader) Read(ctx context.Context, path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(DecodeText(f))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	headers, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("invalid csv header: %w", err)
	}

	src := &Source{Headers: headers}
	for line := 2; ; line++ {
		if line%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid csv at line %d: %w", line, err)
		}
		if isBlankRow(rec) {
			continue
		}
		src.Rows = append(src.Rows, rec)
	}
	return src, nil
}

// DecodeText wraps r so that it yields UTF-8 without a BOM. The charset is
// decided from the first sniffSize bytes.
func DecodeText(r io.Reader) io.Reader {
	br := bufio.NewReaderSize(r, sniffSize)
	head, _ := br.Peek(sniffSize)

	if bytes.HasPrefix(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
		return br
	}
	if validUTF8Prefix(head) {
		return br
	}
	return transform.NewReader(br, simplifiedchinese.GB18030.NewDecoder())
}

// validUTF8Prefix is utf8.Valid tolerant of a multi-byte rune cut at the
// end of the sniffed window.
func validUTF8Prefix(b []byte) bool {
	if utf8.Valid(b) {
		return true
	}
	if len(b) < sniffSize {
		return false
	}
	for cut := 1; cut < utf8.UTFMax && cut < len(b); cut++ {
		if utf8.Valid(b[:len(b)-cut]) {
			return true
		}
	}
	return false
}
