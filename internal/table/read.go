package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ReadOptions controls how a delimited file is read.
type ReadOptions struct {
	// Delimiter for the file. If 0, sniffs among tab, ';' and ','.
	Delimiter rune
	// MaxRows limits data rows read; 0 means unlimited.
	MaxRows int
	// NormalizeHeader rewrites column names to lower-case ASCII snake case.
	NormalizeHeader bool
	// Sheet selects a workbook sheet by name; empty reads the first one.
	Sheet string
	// HeaderLabels locates the header row of a workbook whose first rows
	// hold titles. Labels are compared after NormalizeName.
	HeaderLabels []string
}

// ReadFile reads a delimited file, decoding legacy encodings when the bytes
// are not valid UTF-8. Files ending in .xlsx are read as workbooks.
func ReadFile(path string, opt ReadOptions) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}
	ext := filepath.Ext(path)
	name := strings.TrimSuffix(filepath.Base(path), ext)
	if strings.EqualFold(ext, ".xlsx") {
		return ReadXLSX(name, raw, opt)
	}
	return ReadBytes(name, raw, opt)
}

// ReadBytes parses an in-memory delimited payload.
func ReadBytes(name string, raw []byte, opt ReadOptions) (*Table, error) {
	data, enc, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	delim := opt.Delimiter
	if delim == 0 {
		delim = SniffDelimiter(data)
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &Table{Name: name, Encoding: enc, Delimiter: delim}, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	header = append([]string(nil), header...)
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
		if opt.NormalizeHeader {
			header[i] = NormalizeName(header[i])
		}
	}
	t := &Table{Name: name, Header: header, Encoding: enc, Delimiter: delim}
	ncol := len(header)
	for {
		if opt.MaxRows > 0 && len(t.Rows) >= opt.MaxRows {
			break
		}
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", len(t.Rows)+1, err)
		}
		if len(rec) < ncol {
			tmp := make([]string, ncol)
			copy(tmp, rec)
			rec = tmp
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// decode returns UTF-8 bytes and the name of the source encoding. UTF-8 is
// tried first, then Windows-1252, then ISO-8859-1 which accepts any byte.
func decode(raw []byte) ([]byte, string, error) {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	if utf8.Valid(raw) {
		return raw, "utf-8", nil
	}
	if out, err := charmap.Windows1252.NewDecoder().Bytes(raw); err == nil && !bytes.ContainsRune(out, utf8.RuneError) {
		return out, "windows-1252", nil
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, "", err
	}
	return out, "iso-8859-1", nil
}

// SniffDelimiter picks the most frequent of tab, ';' and ',' in the first line.
func SniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	best, bestN := ',', 0
	for _, d := range []rune{'\t', ';', ','} {
		if n := bytes.Count(line, []byte(string(d))); n > bestN {
			best, bestN = d, n
		}
	}
	return best
}

var (
	nameSeparators = regexp.MustCompile(`[\s\-.]+`)
	nameInvalid    = regexp.MustCompile(`[^a-z0-9_]`)
	nameRepeats    = regexp.MustCompile(`_+`)
)

// NormalizeName lower-cases a column name, strips accents and collapses
// separators to single underscores: "Área Geográfica" -> "area_geografica".
func NormalizeName(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		folded = strings.ToLower(strings.TrimSpace(s))
	}
	folded = strings.ReplaceAll(folded, "ñ", "n")
	folded = nameSeparators.ReplaceAllString(folded, "_")
	folded = nameInvalid.ReplaceAllString(folded, "")
	folded = nameRepeats.ReplaceAllString(folded, "_")
	return strings.Trim(folded, "_")
}
