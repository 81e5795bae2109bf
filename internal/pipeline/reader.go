package pipeline

// reader.go prepares raw feed bytes for line scanning.
//
// Feed files arrive from spreadsheets and Windows tools as often as from
// market data vendors, so the scanner input is normalised first:
//
//   - A leading UTF-8 BOM (0xEF 0xBB 0xBF) is removed.
//   - Invalid UTF-8 sequences are replaced with U+FFFD.
//
// Lines are split on '\n'; a trailing '\r' is removed by the processor.

import (
	"bufio"
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// initialBufferSize is the scanner's starting buffer; it grows up to the
// configured maximum line length.
const initialBufferSize = 4 * 1024

// normalizeReader wraps r with BOM stripping and UTF-8 sanitisation.
func normalizeReader(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}

// NewLineScanner returns a scanner over the normalised form of r that
// rejects lines longer than maxLineBytes.
func NewLineScanner(r io.Reader, maxLineBytes int) *bufio.Scanner {
	sc := bufio.NewScanner(normalizeReader(r))
	sc.Buffer(make([]byte, 0, min(initialBufferSize, maxLineBytes)), maxLineBytes)
	return sc
}
