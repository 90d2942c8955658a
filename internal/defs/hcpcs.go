// Package defs loads code reference data into the sink's code_definitions
// table. The HCPCS annual release is a fixed-width, Latin-1 text file where
// a long description continues across lines sharing the same code.
package defs

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/clearhealth/pricing-cli/internal/model"
	"github.com/clearhealth/pricing-cli/internal/sink"
)

// Fixed-width field boundaries from the HCPCS record layout.
const (
	codeEnd       = 5
	longStart     = 11
	longEnd       = 91
	shortStart    = 91
	shortEnd      = 119
	upsertBatch   = 1000
)

// LoadHCPCS parses a HCPCS release file and upserts its definitions.
// Returns the number of definitions written.
func LoadHCPCS(ctx context.Context, s sink.Sink, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, eris.Wrapf(err, "defs: open %s", path)
	}
	defer f.Close()

	defs, err := ParseHCPCS(f)
	if err != nil {
		return 0, err
	}

	var total int64
	for start := 0; start < len(defs); start += upsertBatch {
		end := start + upsertBatch
		if end > len(defs) {
			end = len(defs)
		}
		n, err := s.UpsertDefinitions(ctx, defs[start:end])
		if err != nil {
			return total, err
		}
		total += n
	}

	zap.L().Info("code definitions loaded",
		zap.String("path", path),
		zap.Int64("definitions", total))
	return total, nil
}

// ParseHCPCS reads the fixed-width release format. Continuation lines share
// the leading code and extend the long description; the short description
// comes from the first line of each code.
func ParseHCPCS(r io.Reader) ([]model.CodeDefinition, error) {
	scanner := bufio.NewScanner(transform.NewReader(r, charmap.ISO8859_1.NewDecoder()))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var defs []model.CodeDefinition
	var current *model.CodeDefinition
	var longParts []string

	flush := func() {
		if current == nil {
			return
		}
		current.LongText = strings.Join(longParts, " ")
		defs = append(defs, *current)
		current, longParts = nil, nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		code := strings.TrimSpace(slice(line, 0, codeEnd))
		if code == "" {
			continue
		}
		longChunk := strings.TrimSpace(slice(line, longStart, longEnd))
		shortChunk := strings.TrimSpace(slice(line, shortStart, shortEnd))

		if current != nil && code == current.Code {
			if longChunk != "" {
				longParts = append(longParts, longChunk)
			}
			continue
		}

		flush()
		current = &model.CodeDefinition{
			Code:      code,
			CodeType:  codeTypeFor(code),
			ShortText: shortChunk,
		}
		if longChunk != "" {
			longParts = append(longParts, longChunk)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "defs: scan")
	}
	flush()
	return defs, nil
}

// codeTypeFor tags a definition by the shape of its code; the release
// mixes CPT-range numerics with letter-prefixed HCPCS level II codes.
func codeTypeFor(code string) model.CodeType {
	if t := model.DetectCodeType(code); t == model.CodeCPT || t == model.CodeHCPCS {
		return t
	}
	return model.CodeHCPCS
}

// slice is a bounds-safe fixed-width field cut.
func slice(line string, start, end int) string {
	if start >= len(line) {
		return ""
	}
	if end > len(line) {
		end = len(line)
	}
	return line[start:end]
}
