package table

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadBytesSniffsDelimiterAndPads(t *testing.T) {
	data := "ano;sexo;edad;poblacion\n1979;1;0;380350\n1979;2\n"
	tb, err := ReadBytes("pop", []byte(data), ReadOptions{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if tb.Delimiter != ';' {
		t.Fatalf("expected ';' delimiter, got %q", tb.Delimiter)
	}
	if tb.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", tb.Len())
	}
	if len(tb.Rows[1]) != 4 || tb.Rows[1][3] != "" {
		t.Fatalf("short row not padded: %#v", tb.Rows[1])
	}
	if tb.Encoding != "utf-8" {
		t.Fatalf("unexpected encoding %q", tb.Encoding)
	}
}

func TestReadBytesTabAndMaxRows(t *testing.T) {
	data := "ano\tsexo\tgru_ed1\n1980\t1\t07\n1980\t2\t09\n1980\t1\t25\n"
	tb, err := ReadBytes("Defun1980", []byte(data), ReadOptions{MaxRows: 2})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if tb.Delimiter != '\t' {
		t.Fatalf("expected tab delimiter, got %q", tb.Delimiter)
	}
	if tb.Len() != 2 {
		t.Fatalf("MaxRows not honored: %d rows", tb.Len())
	}
}

func TestReadBytesLegacyEncoding(t *testing.T) {
	// "Área,Año" in ISO-8859-1 / Windows-1252.
	raw := []byte{0xC1, 'r', 'e', 'a', ',', 'A', 0xF1, 'o', '\n', 'x', ',', '1', '\n'}
	tb, err := ReadBytes("legacy", raw, ReadOptions{NormalizeHeader: true})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if tb.Encoding != "windows-1252" {
		t.Fatalf("expected windows-1252, got %q", tb.Encoding)
	}
	if tb.Header[0] != "area" || tb.Header[1] != "ano" {
		t.Fatalf("unexpected header: %#v", tb.Header)
	}
}

func TestReadBytesStripsBOM(t *testing.T) {
	tb, err := ReadBytes("bom", []byte("\xef\xbb\xbfano,sexo\n2000,1\n"), ReadOptions{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if tb.Index("ano") != 0 {
		t.Fatalf("BOM leaked into header: %#v", tb.Header)
	}
}

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"Área Geográfica": "area_geografica",
		" DPNOM ":         "dpnom",
		"Hombres_0":       "hombres_0",
		"Año":             "ano",
		"cod-dpto":        "cod_dpto",
		"Mujeres  12":     "mujeres_12",
	}
	for in, want := range cases {
		if got := NormalizeName(in); got != want {
			t.Fatalf("NormalizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRequireReportsMissingColumns(t *testing.T) {
	tb := New("joined", ColYear, ColSex)
	err := tb.Require(ColYear, ColBucket, ColPopulation)
	var se *SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
	if len(se.Missing) != 2 || se.Missing[0] != ColBucket || se.Missing[1] != ColPopulation {
		t.Fatalf("unexpected missing: %#v", se.Missing)
	}
	if !strings.Contains(err.Error(), "joined") {
		t.Fatalf("error should name the table: %v", err)
	}
	if tb.Require(ColYear) != nil {
		t.Fatalf("present column reported missing")
	}
}

func TestFloatCells(t *testing.T) {
	if FormatFloat(math.NaN()) != "" {
		t.Fatalf("NaN must render empty")
	}
	if FormatFloat(0.001) != "0.001" {
		t.Fatalf("unexpected %q", FormatFloat(0.001))
	}
	v, err := ParseFloat("")
	if err != nil || !math.IsNaN(v) {
		t.Fatalf("empty cell should be NaN, got %v %v", v, err)
	}
	v, err = ParseFloat("12.5")
	if err != nil || v != 12.5 {
		t.Fatalf("got %v %v", v, err)
	}
	n, err := ParseInt("3.0")
	if err != nil || n != 3 {
		t.Fatalf("got %d %v", n, err)
	}
}

func TestWriteFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.csv")
	tb := New("out", ColYear, ColRate)
	tb.Append("2000", FormatFloat(math.NaN()))
	tb.Append("2001", FormatFloat(1e-5))
	if err := WriteFile(path, tb); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	want := "ano,tasa\n2000,\n2001,0.00001\n"
	if string(b) != want {
		t.Fatalf("unexpected output:\n%s", b)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind")
	}
	back, err := ReadFile(path, ReadOptions{})
	if err != nil {
		t.Fatalf("reread: %v", err)
	}
	if back.Name != "out" || back.Len() != 2 {
		t.Fatalf("unexpected reread: %+v", back)
	}
	var buf bytes.Buffer
	if err := Write(&buf, back); err != nil || buf.String() != want {
		t.Fatalf("rewrite mismatch: %q %v", buf.String(), err)
	}
}
