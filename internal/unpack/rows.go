package unpack

import (
	"archive/zip"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/clearhealth/pricing-cli/internal/model"
)

// RowReader streams the rows of one document, header row included, in
// physical order. Read returns io.EOF after the last row.
type RowReader interface {
	Read() ([]string, error)
	Close() error
}

// Open returns a RowReader for the given document. The caller owns the
// reader and must Close it.
func Open(doc model.RawDocument) (RowReader, error) {
	switch doc.Container {
	case model.ContainerCSV:
		rc, err := openStream(doc)
		if err != nil {
			return nil, err
		}
		return newCSVRows(rc, doc), nil
	case model.ContainerJSON:
		return newJSONRows(doc)
	case model.ContainerXLSX:
		return newXLSXRows(doc)
	default:
		return nil, eris.Errorf("unpack: cannot read container %q", doc.Container)
	}
}

// openStream opens the document's byte stream, transparently reaching into
// a ZIP archive when the document is an archive member.
func openStream(doc model.RawDocument) (io.ReadCloser, error) {
	if doc.Entry == "" {
		f, err := os.Open(doc.Path)
		if err != nil {
			return nil, eris.Wrapf(err, "unpack: open %s", doc.Path)
		}
		return f, nil
	}

	zr, err := zip.OpenReader(doc.Path)
	if err != nil {
		return nil, eris.Wrapf(ErrCorruptContainer, "%s: %v", doc.Path, err)
	}
	for _, f := range zr.File {
		if f.Name != doc.Entry {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			zr.Close()
			return nil, eris.Wrapf(ErrCorruptContainer, "%s!%s: %v", doc.Path, doc.Entry, err)
		}
		return &entryReader{rc: rc, zr: zr}, nil
	}
	zr.Close()
	return nil, eris.Errorf("unpack: entry %q not found in %s", doc.Entry, doc.Path)
}

// entryReader holds the archive open for the lifetime of a member stream.
type entryReader struct {
	rc io.ReadCloser
	zr *zip.ReadCloser
}

func (e *entryReader) Read(p []byte) (int, error) { return e.rc.Read(p) }

func (e *entryReader) Close() error {
	err := e.rc.Close()
	if cerr := e.zr.Close(); err == nil {
		err = cerr
	}
	return err
}

type csvRows struct {
	rc io.Closer
	cr *csv.Reader
}

func newCSVRows(rc io.ReadCloser, doc model.RawDocument) *csvRows {
	var r io.Reader
	if doc.Encoding == "windows-1252" {
		r = transform.NewReader(rc, charmap.Windows1252.NewDecoder())
	} else {
		r = transform.NewReader(rc, unicode.BOMOverride(transform.Nop))
	}

	cr := csv.NewReader(r)
	cr.Comma = doc.Delimiter
	if cr.Comma == 0 {
		cr.Comma = ','
	}
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return &csvRows{rc: rc, cr: cr}
}

func (c *csvRows) Read() ([]string, error) {
	rec, err := c.cr.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, eris.Wrap(err, "unpack: csv read")
	}
	return rec, nil
}

func (c *csvRows) Close() error { return c.rc.Close() }

// jsonWrapperKeys are the object keys, in lookup order, under which price
// transparency JSON exports bury their record arrays.
var jsonWrapperKeys = []string{"standard_charge_information", "charges", "items", "data"}

type jsonRows struct {
	rc     io.ReadCloser
	dec    *json.Decoder
	header []string
	sent   bool
}

// newJSONRows streams a JSON document in two passes so memory stays bounded
// by one record regardless of file size. The first pass collects the union
// of record keys for the header; the second re-opens the stream and decodes
// one record per Read.
func newJSONRows(doc model.RawDocument) (*jsonRows, error) {
	header, err := jsonHeader(doc)
	if err != nil {
		return nil, err
	}

	rc, err := openStream(doc)
	if err != nil {
		return nil, err
	}
	dec, err := recordArray(rc)
	if err != nil {
		rc.Close()
		return nil, eris.Wrapf(err, "unpack: %s", doc.Path)
	}
	return &jsonRows{rc: rc, dec: dec, header: header}, nil
}

func jsonHeader(doc model.RawDocument) ([]string, error) {
	rc, err := openStream(doc)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	dec, err := recordArray(rc)
	if err != nil {
		return nil, eris.Wrapf(err, "unpack: %s", doc.Path)
	}

	keys := map[string]struct{}{}
	for dec.More() {
		var rec map[string]json.RawMessage
		if err := dec.Decode(&rec); err != nil {
			return nil, eris.Wrapf(err, "unpack: %s", doc.Path)
		}
		for k := range rec {
			keys[k] = struct{}{}
		}
	}
	header := make([]string, 0, len(keys))
	for k := range keys {
		header = append(header, k)
	}
	sort.Strings(header)
	return header, nil
}

// recordArray advances a decoder to just inside the record array: either
// the top-level array, or the first wrapper key holding one.
func recordArray(r io.Reader) (*json.Decoder, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return nil, eris.Wrap(err, "json parse")
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return nil, eris.New("json payload holds no record array")
	}
	if delim == '[' {
		return dec, nil
	}
	if delim != '{' {
		return nil, eris.New("json payload holds no record array")
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, eris.Wrap(err, "json parse")
		}
		key, _ := keyTok.(string)
		if isWrapperKey(key) {
			open, err := dec.Token()
			if err != nil {
				return nil, eris.Wrap(err, "json parse")
			}
			if d, ok := open.(json.Delim); ok && d == '[' {
				return dec, nil
			}
			return nil, eris.Errorf("json key %q holds no record array", key)
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, eris.Wrap(err, "json parse")
		}
	}
	return nil, eris.New("json payload holds no record array")
}

func isWrapperKey(key string) bool {
	for _, k := range jsonWrapperKeys {
		if key == k {
			return true
		}
	}
	return false
}

func (j *jsonRows) Read() ([]string, error) {
	if !j.sent {
		j.sent = true
		return j.header, nil
	}
	if !j.dec.More() {
		return nil, io.EOF
	}

	var rec map[string]json.RawMessage
	if err := j.dec.Decode(&rec); err != nil {
		return nil, eris.Wrap(err, "unpack: json read")
	}
	row := make([]string, len(j.header))
	for i, key := range j.header {
		raw, ok := rec[key]
		if !ok {
			continue
		}
		row[i] = scalarString(raw)
	}
	return row, nil
}

// scalarString renders a JSON value as a cell. Nested objects and arrays
// keep their JSON encoding so downstream code can still see the value.
func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return s
		}
	case 'n':
		return ""
	case 't', 'f':
		var b bool
		if json.Unmarshal(raw, &b) == nil {
			return strconv.FormatBool(b)
		}
	case '{', '[':
		return string(raw)
	default:
		var f float64
		if json.Unmarshal(raw, &f) == nil {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
	}
	return string(raw)
}

func (j *jsonRows) Close() error { return j.rc.Close() }

type xlsxRows struct {
	rows [][]string
	next int
}

func newXLSXRows(doc model.RawDocument) (*xlsxRows, error) {
	f, err := xlsx.OpenFile(doc.Path)
	if err != nil {
		return nil, eris.Wrapf(ErrCorruptContainer, "%s: %v", doc.Path, err)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Wrapf(ErrCorruptContainer, "%s has no sheets", doc.Path)
	}

	sheet := f.Sheets[0]
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for i, cell := range row.Cells {
			cells[i] = cell.String()
		}
		rows = append(rows, cells)
	}
	return &xlsxRows{rows: rows}, nil
}

func (x *xlsxRows) Read() ([]string, error) {
	if x.next >= len(x.rows) {
		return nil, io.EOF
	}
	row := x.rows[x.next]
	x.next++
	return row, nil
}

func (x *xlsxRows) Close() error { return nil }
