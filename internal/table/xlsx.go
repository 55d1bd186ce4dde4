package table

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
)

// headerScanRows bounds the search for a labelled header row.
const headerScanRows = 50

// ErrHeaderNotFound is returned when no row carries every header label.
var ErrHeaderNotFound = errors.New("header row not found")

// ReadXLSX parses one sheet of an .xlsx workbook into a table. Sheet selects
// by name, falling back to the first sheet. When HeaderLabels is set the
// header is the first row holding every label; rows above it are skipped.
func ReadXLSX(name string, raw []byte, opt ReadOptions) (*Table, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	target, err := sheetPath(zr, opt.Sheet)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	sheetXML, err := readZipFile(zr, target)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	sharedXML, _ := readZipFile(zr, "xl/sharedStrings.xml")
	rows := newSheetRows(sheetXML, parseSharedStrings(sharedXML))

	header, err := findHeader(rows, opt.HeaderLabels)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
		if opt.NormalizeHeader {
			header[i] = NormalizeName(header[i])
		}
	}
	t := &Table{Name: name, Header: header, Encoding: "xlsx"}
	ncol := len(header)
	for opt.MaxRows <= 0 || len(t.Rows) < opt.MaxRows {
		rec, ok := rows.next()
		if !ok {
			break
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

func findHeader(rows *sheetRows, labels []string) ([]string, error) {
	if len(labels) == 0 {
		row, _ := rows.next()
		return row, nil
	}
	want := make([]string, len(labels))
	for i, l := range labels {
		want[i] = NormalizeName(l)
	}
	for i := 0; i < headerScanRows; i++ {
		row, ok := rows.next()
		if !ok {
			break
		}
		have := make(map[string]bool, len(row))
		for _, v := range row {
			have[NormalizeName(v)] = true
		}
		found := true
		for _, w := range want {
			found = found && have[w]
		}
		if found {
			return row, nil
		}
	}
	return nil, fmt.Errorf("%w: no row with %s in the first %d", ErrHeaderNotFound, strings.Join(labels, ", "), headerScanRows)
}

// sheetPath resolves a sheet name to its part inside the archive.
func sheetPath(zr *zip.Reader, sheet string) (string, error) {
	workbook, err := readZipFile(zr, "xl/workbook.xml")
	if err != nil {
		return "", err
	}
	rels, _ := readZipFile(zr, "xl/_rels/workbook.xml.rels")
	sheets := parseWorkbook(workbook)
	targets := parseRelationships(rels)
	if len(sheets) == 0 {
		return "", fmt.Errorf("workbook has no sheets")
	}
	pick := sheets[0]
	if sheet != "" {
		found := false
		names := make([]string, len(sheets))
		for i, s := range sheets {
			names[i] = s.name
			if !found && strings.EqualFold(s.name, sheet) {
				pick, found = s, true
			}
		}
		if !found {
			return "", fmt.Errorf("sheet %q not found (available: %s)", sheet, strings.Join(names, ", "))
		}
	}
	if rel, ok := targets[pick.rid]; ok {
		return normalizeRelPath(rel), nil
	}
	return "xl/worksheets/sheet" + strconv.Itoa(pick.id) + ".xml", nil
}

// normalizeRelPath turns a relationship target into an archive path;
// targets may be absolute ("/xl/...") or relative to xl/.
func normalizeRelPath(rel string) string {
	rel = strings.TrimPrefix(rel, "/")
	if strings.HasPrefix(rel, "xl/") {
		return rel
	}
	return path.Join("xl", rel)
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	f, err := zr.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

type workbookSheet struct {
	name string
	id   int
	rid  string
}

func parseWorkbook(data []byte) []workbookSheet {
	var out []workbookSheet
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return out
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "sheet" {
			continue
		}
		var s workbookSheet
		for _, a := range se.Attr {
			switch a.Name.Local {
			case "name":
				s.name = a.Value
			case "sheetId":
				s.id, _ = strconv.Atoi(a.Value)
			case "id":
				s.rid = a.Value
			}
		}
		out = append(out, s)
	}
}

func parseRelationships(data []byte) map[string]string {
	out := map[string]string{}
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return out
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "Relationship" {
			continue
		}
		var id, target string
		for _, a := range se.Attr {
			switch a.Name.Local {
			case "Id":
				id = a.Value
			case "Target":
				target = a.Value
			}
		}
		if id != "" && target != "" {
			out[id] = target
		}
	}
}

func parseSharedStrings(data []byte) []string {
	var out []string
	var buf strings.Builder
	inText := false
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return out
		}
		switch se := tok.(type) {
		case xml.StartElement:
			switch se.Name.Local {
			case "si":
				buf.Reset()
			case "t":
				inText = true
			}
		case xml.EndElement:
			switch se.Name.Local {
			case "t":
				inText = false
			case "si":
				out = append(out, buf.String())
			}
		case xml.CharData:
			if inText {
				buf.Write(se)
			}
		}
	}
}

// sheetRows streams the rows of a worksheet part.
type sheetRows struct {
	dec    *xml.Decoder
	shared []string
}

func newSheetRows(data []byte, shared []string) *sheetRows {
	return &sheetRows{dec: xml.NewDecoder(bytes.NewReader(data)), shared: shared}
}

// next returns the following <row>, placing cells by their column reference
// so blank cells keep their position.
func (r *sheetRows) next() ([]string, bool) {
	var row []string
	inRow := false
	for {
		tok, err := r.dec.Token()
		if err != nil {
			return nil, false
		}
		switch se := tok.(type) {
		case xml.StartElement:
			switch {
			case se.Name.Local == "row":
				inRow, row = true, nil
			case inRow && se.Name.Local == "c":
				var ref, typ string
				for _, a := range se.Attr {
					switch a.Name.Local {
					case "r":
						ref = a.Value
					case "t":
						typ = a.Value
					}
				}
				col := columnIndex(ref)
				if col < 0 {
					col = len(row)
				}
				for len(row) <= col {
					row = append(row, "")
				}
				row[col] = r.cellValue(typ)
			}
		case xml.EndElement:
			if se.Name.Local == "row" {
				return row, true
			}
		}
	}
}

// cellValue consumes a <c> element and returns its text; shared strings are
// resolved through the table read from sharedStrings.xml.
func (r *sheetRows) cellValue(typ string) string {
	var val strings.Builder
	inValue := false
	for {
		tok, err := r.dec.Token()
		if err != nil {
			return val.String()
		}
		switch se := tok.(type) {
		case xml.StartElement:
			if se.Name.Local == "v" || se.Name.Local == "t" {
				inValue = true
			}
		case xml.CharData:
			if inValue {
				val.Write(se)
			}
		case xml.EndElement:
			switch se.Name.Local {
			case "v", "t":
				inValue = false
			case "c":
				if typ != "s" {
					return val.String()
				}
				idx, err := strconv.Atoi(strings.TrimSpace(val.String()))
				if err != nil || idx < 0 || idx >= len(r.shared) {
					return ""
				}
				return r.shared[idx]
			}
		}
	}
}

// columnIndex maps a cell reference such as "C12" to 2; -1 when absent.
func columnIndex(ref string) int {
	idx := 0
	n := 0
	for _, c := range strings.ToUpper(ref) {
		if c < 'A' || c > 'Z' {
			break
		}
		idx = idx*26 + int(c-'A'+1)
		n++
	}
	if n == 0 {
		return -1
	}
	return idx - 1
}
