package unpack

import (
	"archive/zip"
	"io"
	"os"
	"path"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/clearhealth/pricing-cli/internal/model"
)

// ErrCorruptContainer marks an archive whose directory or entries cannot be
// read. The fetch itself succeeded; only unpacking failed, so callers report
// the document and move on rather than re-downloading.
var ErrCorruptContainer = eris.New("unpack: corrupt container")

const sniffLen = 4096

// Describe inspects a fetched blob and enumerates the tabular documents it
// holds. A ZIP archive yields one document per tabular member; XLSX, CSV and
// JSON payloads yield exactly one.
func Describe(blobPath, sourceID string) ([]model.RawDocument, error) {
	prefix, err := readPrefix(blobPath)
	if err != nil {
		return nil, eris.Wrapf(err, "unpack: read %s", blobPath)
	}
	info, err := os.Stat(blobPath)
	if err != nil {
		return nil, eris.Wrapf(err, "unpack: stat %s", blobPath)
	}

	switch DetectContainer(prefix) {
	case model.ContainerZIP:
		return describeArchive(blobPath, sourceID)
	case model.ContainerJSON:
		return []model.RawDocument{{
			SourceID:  sourceID,
			Path:      blobPath,
			Container: model.ContainerJSON,
			Encoding:  "utf-8",
			ByteSize:  info.Size(),
		}}, nil
	case model.ContainerCSV:
		return []model.RawDocument{{
			SourceID:  sourceID,
			Path:      blobPath,
			Container: model.ContainerCSV,
			Delimiter: DetectDelimiter(prefix),
			Encoding:  DetectEncoding(prefix),
			ByteSize:  info.Size(),
		}}, nil
	default:
		return nil, eris.Errorf("unpack: unrecognized payload in %s", blobPath)
	}
}

// describeArchive distinguishes XLSX from plain ZIP and, for the latter,
// sniffs each member the same way a bare blob is sniffed.
func describeArchive(blobPath, sourceID string) ([]model.RawDocument, error) {
	zr, err := zip.OpenReader(blobPath)
	if err != nil {
		return nil, eris.Wrapf(ErrCorruptContainer, "%s: %v", blobPath, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name == "[Content_Types].xml" {
			info, err := os.Stat(blobPath)
			if err != nil {
				return nil, eris.Wrapf(err, "unpack: stat %s", blobPath)
			}
			return []model.RawDocument{{
				SourceID:  sourceID,
				Path:      blobPath,
				Container: model.ContainerXLSX,
				ByteSize:  info.Size(),
			}}, nil
		}
	}

	var docs []model.RawDocument
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasPrefix(path.Base(f.Name), ".") {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, eris.Wrapf(ErrCorruptContainer, "%s!%s: %v", blobPath, f.Name, err)
		}
		prefix := make([]byte, sniffLen)
		n, rerr := io.ReadFull(rc, prefix)
		rc.Close()
		if rerr != nil && rerr != io.EOF && rerr != io.ErrUnexpectedEOF {
			return nil, eris.Wrapf(ErrCorruptContainer, "%s!%s: %v", blobPath, f.Name, rerr)
		}
		prefix = prefix[:n]

		doc := model.RawDocument{
			SourceID: sourceID,
			Path:     blobPath,
			Entry:    f.Name,
			ByteSize: int64(f.UncompressedSize64),
		}
		switch DetectContainer(prefix) {
		case model.ContainerJSON:
			doc.Container = model.ContainerJSON
			doc.Encoding = "utf-8"
		case model.ContainerCSV:
			doc.Container = model.ContainerCSV
			doc.Delimiter = DetectDelimiter(prefix)
			doc.Encoding = DetectEncoding(prefix)
		default:
			continue // binary or empty member, not tabular
		}
		docs = append(docs, doc)
	}

	if len(docs) == 0 {
		return nil, eris.Wrapf(ErrCorruptContainer, "no tabular members in %s", blobPath)
	}
	return docs, nil
}

func readPrefix(p string) ([]byte, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return buf[:n], nil
}
