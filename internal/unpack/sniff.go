// Package unpack turns fetched blobs into raw tabular streams. Container
// detection is by content sniffing, never by file extension: extensions
// are unreliable across sources.
package unpack

import (
	"bytes"
	"unicode/utf8"

	"github.com/clearhealth/pricing-cli/internal/model"
)

var zipMagic = []byte{'P', 'K', 0x03, 0x04}

// DetectContainer classifies a payload from its leading bytes. XLSX is
// distinguished from plain ZIP by the caller once the archive directory is
// readable (an XLSX is a ZIP holding [Content_Types].xml).
func DetectContainer(prefix []byte) model.Container {
	trimmed := bytes.TrimLeft(prefix, " \t\r\n\uFEFF")
	switch {
	case bytes.HasPrefix(prefix, zipMagic):
		return model.ContainerZIP
	case len(trimmed) == 0:
		return model.ContainerUnknown
	case trimmed[0] == '{' || trimmed[0] == '[':
		return model.ContainerJSON
	case looksBinary(trimmed):
		return model.ContainerUnknown
	default:
		return model.ContainerCSV
	}
}

// looksBinary reports whether the sample carries control bytes no text
// export would. High bytes are fine; they may be Windows-1252.
func looksBinary(sample []byte) bool {
	for _, b := range sample {
		if b < 0x09 || (b > 0x0d && b < 0x20) || b == 0x7f {
			return true
		}
	}
	return false
}

// DetectDelimiter picks the most frequent candidate delimiter in the first
// line of a delimited file. Comma wins ties.
func DetectDelimiter(prefix []byte) rune {
	line := prefix
	if i := bytes.IndexByte(prefix, '\n'); i >= 0 {
		line = prefix[:i]
	}

	best, bestCount := ',', bytes.Count(line, []byte{','})
	for _, cand := range []byte{'|', '\t', ';'} {
		if n := bytes.Count(line, []byte{cand}); n > bestCount {
			best, bestCount = rune(cand), n
		}
	}
	return best
}

// DetectEncoding reports the declared encoding for a text payload:
// UTF-8 (with or without BOM) when the sample is valid UTF-8, otherwise
// Windows-1252, which covers the Latin-1-family exports hospitals produce.
func DetectEncoding(sample []byte) string {
	sample = bytes.TrimPrefix(sample, []byte("\uFEFF"))
	// The sample may end mid-rune; drop up to three trailing bytes before
	// deciding the payload is not UTF-8.
	for i := 0; i < 4 && len(sample) > 0; i++ {
		if utf8.Valid(sample) {
			return "utf-8"
		}
		sample = sample[:len(sample)-1]
	}
	return "windows-1252"
}
