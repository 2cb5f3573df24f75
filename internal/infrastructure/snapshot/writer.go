// Package snapshot writes the audit artifacts of an import run: a JSON
// document with everything the run read and derived, and a CSV of the
// priced rows.
package snapshot

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/erp/priceimport/internal/application/priceimport"
	"github.com/erp/priceimport/internal/domain/pricing"
	"go.uber.org/zap"
)

// TimestampLayout formats the run time in artifact names
const TimestampLayout = "20060102T150405Z"

const (
	contentTypeJSON = "application/json"
	contentTypeCSV  = "text/csv"
)

var baseColumns = []string{"source_index", "quantity", "eur", "dkk_base", "tier_multiplier", "dkk_final", "li_text"}

var matrixColumns = []string{"format", "material", "modifiers"}

// Uploader copies an artifact to remote storage and returns its location
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

// Writer stores snapshots in a directory and optionally uploads them
type Writer struct {
	dir      string
	uploader Uploader
	logger   *zap.Logger
}

// Option configures a Writer
type Option func(*Writer)

// WithUploader uploads every artifact after it is written locally
func WithUploader(u Uploader) Option {
	return func(w *Writer) {
		w.uploader = u
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(w *Writer) {
		w.logger = logger
	}
}

// NewWriter creates a Writer rooted at dir
func NewWriter(dir string, opts ...Option) *Writer {
	w := &Writer{
		dir:    dir,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// BaseName returns "<slug>-<timestamp>" for a snapshot
func BaseName(snap *priceimport.Snapshot) string {
	return snap.Slug + "-" + snap.CreatedAt.UTC().Format(TimestampLayout)
}

// Write stores <base>.json and <base>.csv and returns their paths followed
// by any upload locations. Local files are kept when an upload fails.
func (w *Writer) Write(ctx context.Context, snap *priceimport.Snapshot) ([]string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}

	doc, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	table, err := EncodeCSV(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot csv: %w", err)
	}

	base := BaseName(snap)
	artifacts := []struct {
		name        string
		data        []byte
		contentType string
	}{
		{base + ".json", doc, contentTypeJSON},
		{base + ".csv", table, contentTypeCSV},
	}

	var written []string
	for _, a := range artifacts {
		path := filepath.Join(w.dir, a.name)
		if err := os.WriteFile(path, a.data, 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", path, err)
		}
		written = append(written, path)
	}
	w.logger.Info("snapshot written", zap.Strings("files", written))

	if w.uploader == nil {
		return written, nil
	}
	var uploadErrs []error
	for _, a := range artifacts {
		location, err := w.uploader.Upload(ctx, a.name, a.data, a.contentType)
		if err != nil {
			uploadErrs = append(uploadErrs, err)
			continue
		}
		written = append(written, location)
	}
	return written, errors.Join(uploadErrs...)
}

// EncodeCSV renders every transformed row of a snapshot, including rows
// later skipped for an unmapped material. Matrix-mode snapshots carry the
// format, material and modifier columns as well, left empty for unmapped rows.
func EncodeCSV(snap *priceimport.Snapshot) ([]byte, error) {
	matrix := snap.Mode == priceimport.SourceModeMatrix
	header := baseColumns
	if matrix {
		header = append(append([]string{}, baseColumns...), matrixColumns...)
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(header); err != nil {
		return nil, err
	}
	// Mapped is an ordered subset of Transformed
	next := 0
	for _, r := range snap.Transformed {
		record := []string{
			strconv.Itoa(r.SourceIndex),
			strconv.Itoa(r.Quantity),
			r.UnitPrice.String(),
			r.BaseAmount.String(),
			r.TierMultiplier.String(),
			strconv.FormatInt(r.FinalAmount, 10),
			r.SourceText,
		}
		var m *priceimport.MappedRow
		if next < len(snap.Mapped) && sameRow(snap.Mapped[next].TransformedRow, r) {
			m = &snap.Mapped[next]
			next++
		}
		if matrix {
			record = append(record, matrixCells(m)...)
		}
		if err := cw.Write(record); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	return buf.Bytes(), cw.Error()
}

func sameRow(a, b pricing.TransformedRow) bool {
	return a.SourceIndex == b.SourceIndex && a.Quantity == b.Quantity && a.MaterialLabel == b.MaterialLabel
}

func matrixCells(m *priceimport.MappedRow) []string {
	if m == nil {
		return []string{"", "", ""}
	}
	mods := make([]string, 0, len(m.Modifiers))
	for _, sel := range m.Modifiers {
		mods = append(mods, sel.Group.Name+"="+sel.Value)
	}
	return []string{m.Format, m.Material, strings.Join(mods, ";")}
}
