// Package csvparse provides a pure, dependency-free CSV tokenizer for
// back-office bulk uploads.
//
// The parser is a single-pass character scanner that handles the messy
// reality of merchant-exported files: UTF-8 BOMs from Windows exports,
// CRLF and bare-CR line endings, RFC-4180 quoting with doubled-quote
// escapes, and four possible delimiters (comma, semicolon, tab, pipe)
// detected automatically from the first line.
//
// The parser performs no row-content validation. Callers get back raw and
// header-keyed values per row and apply their own schema rules.
package csvparse

import (
	"fmt"
	"strings"
)

// ErrorKind classifies fatal parse failures.
type ErrorKind string

const (
	// KindSize means the raw input exceeded MaxFileSize. Checked on byte
	// length before any decoding.
	KindSize ErrorKind = "SIZE"

	// KindFormat means the file decoded to zero lines.
	KindFormat ErrorKind = "FORMAT"

	// KindHeader means a required header was absent after normalization.
	KindHeader ErrorKind = "HEADER"
)

// Error is a fatal parse error. Row-level problems are never reported
// through Error; those are the caller's concern.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Default limits applied when the corresponding Options field is zero.
const (
	DefaultMaxFileSize = 5 * 1024 * 1024
	DefaultMaxRows     = 1000
)

// delimiter candidates in detection priority order; comma wins ties.
var delimiterCandidates = []rune{',', ';', '\t', '|'}

// Options controls a single parse call.
// Use DefaultOptions as the starting point and override as needed.
type Options struct {
	// MaxFileSize is the maximum raw input size in bytes. Oversize input is
	// rejected before decoding. Zero means DefaultMaxFileSize.
	MaxFileSize int64

	// MaxRows is the maximum number of data rows to keep. Extra rows are
	// truncated with a warning, not an error. Zero means DefaultMaxRows.
	MaxRows int

	// Delimiter forces a field delimiter. Zero means auto-detect among
	// comma, semicolon, tab and pipe by counting occurrences outside quoted
	// spans in the first line.
	Delimiter rune

	// HasHeaders indicates the first row is a header row. When false,
	// columns are keyed column_1..column_N.
	HasHeaders bool

	// HeaderNormalizer maps raw header names to canonical keys. Nil means
	// NormalizeHeader (lowercase, whitespace collapsed to underscores).
	HeaderNormalizer func(string) string

	// RequiredHeaders are checked post-normalization. Any missing header is
	// a KindHeader error and aborts before row parsing.
	RequiredHeaders []string

	// SkipEmptyRows drops rows whose every trimmed cell is empty.
	SkipEmptyRows bool

	// TrimValues trims surrounding whitespace from every cell.
	TrimValues bool
}

// DefaultOptions returns the documented defaults: 5MB / 1000 rows, delimiter
// auto-detection, headers on, empty rows skipped, values trimmed.
func DefaultOptions() Options {
	return Options{
		MaxFileSize:   DefaultMaxFileSize,
		MaxRows:       DefaultMaxRows,
		HasHeaders:    true,
		SkipEmptyRows: true,
		TrimValues:    true,
	}
}

// Row is a single parsed data row.
type Row struct {
	// RowNumber is 1-based counting data rows after the header, including
	// rows that were later skipped as empty. Error messages reference it.
	RowNumber int

	// RawValues are the cells exactly as tokenized (post-trim when
	// TrimValues is set).
	RawValues []string

	// Data maps normalized header names to cell values. Missing trailing
	// cells map to "".
	Data map[string]string
}

// Result is the outcome of a successful parse.
type Result struct {
	// OriginalHeaders are the header cells as found in the file.
	OriginalHeaders []string

	// HeaderMapping maps each original header to its normalized key.
	HeaderMapping map[string]string

	// Rows are the parsed data rows in file order.
	Rows []Row

	// Delimiter is the delimiter used (detected or forced).
	Delimiter rune

	// Warnings are non-fatal observations: BOM stripped, rows truncated.
	Warnings []string
}

// NormalizeHeader is the default header normalizer: lowercase with runs of
// whitespace collapsed to a single underscore.
func NormalizeHeader(h string) string {
	return strings.Join(strings.Fields(strings.ToLower(h)), "_")
}

// Parse tokenizes CSV bytes into rows.
//
// The returned error, when non-nil, is always a *Error carrying one of the
// fatal kinds (SIZE, FORMAT, HEADER). Row content is never validated here.
func Parse(data []byte, opts Options) (*Result, error) {
	if opts.MaxFileSize == 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.MaxRows == 0 {
		opts.MaxRows = DefaultMaxRows
	}
	if opts.HeaderNormalizer == nil {
		opts.HeaderNormalizer = NormalizeHeader
	}

	if int64(len(data)) > opts.MaxFileSize {
		return nil, &Error{Kind: KindSize, Message: fmt.Sprintf("file size %d exceeds limit %d", len(data), opts.MaxFileSize)}
	}

	result := &Result{HeaderMapping: map[string]string{}}

	content := string(data)
	if strings.HasPrefix(content, "\ufeff") {
		content = strings.TrimPrefix(content, "\ufeff")
		result.Warnings = append(result.Warnings, "UTF-8 byte-order mark stripped")
	}

	// Normalize line endings before tokenizing so the scanner only ever
	// sees \n.
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	if strings.TrimSpace(content) == "" {
		return nil, &Error{Kind: KindFormat, Message: "file contains no data"}
	}

	delim := opts.Delimiter
	if delim == 0 {
		delim = detectDelimiter(content)
	}
	result.Delimiter = delim

	records := tokenize(content, delim)
	if len(records) == 0 {
		return nil, &Error{Kind: KindFormat, Message: "file contains no data"}
	}

	var headers []string
	dataRecords := records
	if opts.HasHeaders {
		result.OriginalHeaders = records[0]
		headers = make([]string, len(records[0]))
		for i, h := range records[0] {
			headers[i] = opts.HeaderNormalizer(strings.TrimSpace(h))
			result.HeaderMapping[records[0][i]] = headers[i]
		}
		dataRecords = records[1:]
	} else {
		width := 0
		for _, rec := range records {
			if len(rec) > width {
				width = len(rec)
			}
		}
		headers = make([]string, width)
		for i := range headers {
			headers[i] = fmt.Sprintf("column_%d", i+1)
		}
	}

	if missing := missingHeaders(headers, opts.RequiredHeaders); len(missing) > 0 {
		return nil, &Error{Kind: KindHeader, Message: "missing required columns: " + strings.Join(missing, ", ")}
	}

	for i, rec := range dataRecords {
		if len(result.Rows) >= opts.MaxRows {
			result.Warnings = append(result.Warnings, fmt.Sprintf("row limit %d reached, remaining %d rows ignored", opts.MaxRows, len(dataRecords)-i))
			break
		}

		if opts.TrimValues {
			for j, v := range rec {
				rec[j] = strings.TrimSpace(v)
			}
		}

		if opts.SkipEmptyRows && isEmptyRecord(rec) {
			continue
		}

		row := Row{
			RowNumber: i + 1,
			RawValues: rec,
			Data:      make(map[string]string, len(headers)),
		}
		for j, h := range headers {
			if h == "" {
				continue
			}
			if j < len(rec) {
				row.Data[h] = rec[j]
			} else {
				row.Data[h] = ""
			}
		}
		result.Rows = append(result.Rows, row)
	}

	return result, nil
}

// detectDelimiter counts candidate delimiters outside quoted spans in the
// first line. The highest count wins; comma wins ties by candidate order.
func detectDelimiter(content string) rune {
	line := content
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		line = content[:i]
	}

	counts := make(map[rune]int, len(delimiterCandidates))
	inQuotes := false
	for _, r := range line {
		if r == '"' {
			inQuotes = !inQuotes
			continue
		}
		if inQuotes {
			continue
		}
		for _, c := range delimiterCandidates {
			if r == c {
				counts[r]++
				break
			}
		}
	}

	best := delimiterCandidates[0]
	for _, c := range delimiterCandidates[1:] {
		if counts[c] > counts[best] {
			best = c
		}
	}
	return best
}

// tokenize scans content into records. Inside quotes a doubled quote is an
// escaped literal quote and a lone quote ends the quoted span. Outside
// quotes the delimiter ends the field and \n ends the field and the row.
// The final field and row are flushed without a trailing newline, but only
// when there is pending content.
func tokenize(content string, delim rune) [][]string {
	var (
		records  [][]string
		row      []string
		field    strings.Builder
		inQuotes bool
	)

	runes := []rune(content)
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if inQuotes {
			if r == '"' {
				if i+1 < len(runes) && runes[i+1] == '"' {
					field.WriteRune('"')
					i++
					continue
				}
				inQuotes = false
				continue
			}
			field.WriteRune(r)
			continue
		}

		switch r {
		case '"':
			inQuotes = true
		case delim:
			row = append(row, field.String())
			field.Reset()
		case '\n':
			row = append(row, field.String())
			field.Reset()
			records = append(records, row)
			row = nil
		default:
			field.WriteRune(r)
		}
	}

	// Flush the last field/row only if something is pending; a trailing
	// newline must not produce a spurious empty row.
	if field.Len() > 0 || len(row) > 0 {
		row = append(row, field.String())
		records = append(records, row)
	}

	return records
}

func missingHeaders(headers, required []string) []string {
	if len(required) == 0 {
		return nil
	}
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}
	var missing []string
	for _, r := range required {
		if !present[r] {
			missing = append(missing, r)
		}
	}
	return missing
}

func isEmptyRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
