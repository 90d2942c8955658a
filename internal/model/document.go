package model

// Container describes what kind of payload a fetched blob holds.
type Container string

const (
	ContainerCSV     Container = "csv"
	ContainerJSON    Container = "json"
	ContainerZIP     Container = "zip"
	ContainerXLSX    Container = "xlsx"
	ContainerUnknown Container = "unknown"
)

// RawDocument is one tabular stream unpacked from a fetched blob. A ZIP
// yields one RawDocument per contained tabular file; a bare CSV or JSON
// yields exactly one. The document is immutable for the duration of a
// pipeline run.
type RawDocument struct {
	SourceID  string    `json:"source_id"`
	Path      string    `json:"path"`            // blob path on disk
	Entry     string    `json:"entry,omitempty"` // container-relative path for archive members
	Container Container `json:"container"`
	Delimiter rune      `json:"delimiter,omitempty"`
	Encoding  string    `json:"encoding,omitempty"`  // "utf-8", "windows-1252"
	HeaderRow int       `json:"header_row"`          // 0-based index of the header row
	ByteSize  int64     `json:"byte_size,omitempty"` // uncompressed size of the stream
	RowCount  int64     `json:"row_count,omitempty"`
}

// Layout classifies the tabular shape of a document.
type Layout string

const (
	// LayoutTall has one row per (code, payer, price) triple.
	LayoutTall Layout = "tall"
	// LayoutWide has one row per code with payers spread across columns.
	LayoutWide Layout = "wide"
	// LayoutUnknown could not be classified; the resolver needs a manual
	// binding before the document can be ingested.
	LayoutUnknown Layout = "unknown"
)
