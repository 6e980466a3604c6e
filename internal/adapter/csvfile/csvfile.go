// Package csvfile reads dataset exports and writes the enriched property table.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/couchcryptid/hdb-property-etl/internal/domain"
	"github.com/couchcryptid/hdb-property-etl/internal/observability"
)

// EnrichedColumns are appended after the upstream columns in the output file.
var EnrichedColumns = []string{domain.ColumnArea, domain.ColumnAddress, domain.ColumnLat, domain.ColumnLon}

// Decode reads a CSV with a header row into a PropertyTable. Rows keep their
// file order. A leading UTF-8 BOM is stripped from the first header.
func Decode(r io.Reader) (domain.PropertyTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return domain.PropertyTable{}, errors.New("csv: empty file, missing header row")
	}
	if err != nil {
		return domain.PropertyTable{}, fmt.Errorf("csv: read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	table := domain.PropertyTable{Columns: header}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.PropertyTable{}, fmt.Errorf("csv: read row %d: %w", len(table.Records)+1, err)
		}
		table.Records = append(table.Records, domain.NewPropertyRecord(header, row))
	}
	return table, nil
}

// ReadTable loads a CSV file written by Writer (or any CSV with a header).
func ReadTable(path string) (domain.PropertyTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.PropertyTable{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	table, err := Decode(f)
	if err != nil {
		return domain.PropertyTable{}, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}

// OutputColumns returns the upstream columns followed by EnrichedColumns.
// Upstream columns that collide with an enriched name are dropped so each
// header appears once.
func OutputColumns(upstream []string) []string {
	enriched := make(map[string]bool, len(EnrichedColumns))
	for _, c := range EnrichedColumns {
		enriched[c] = true
	}
	cols := make([]string, 0, len(upstream)+len(EnrichedColumns))
	for _, c := range upstream {
		if !enriched[c] {
			cols = append(cols, c)
		}
	}
	return append(cols, EnrichedColumns...)
}

// Row renders one enriched record against the given output columns. Absent
// area and coordinates become empty cells.
func Row(r domain.EnrichedRecord, columns []string) []string {
	row := make([]string, len(columns))
	for i, col := range columns {
		switch col {
		case domain.ColumnArea:
			row[i] = r.AreaName()
		case domain.ColumnAddress:
			row[i] = r.Address
		case domain.ColumnLat:
			if r.Location != nil {
				row[i] = formatCoord(r.Location.Lat)
			}
		case domain.ColumnLon:
			if r.Location != nil {
				row[i] = formatCoord(r.Location.Lon)
			}
		default:
			row[i] = r.Get(col)
		}
	}
	return row
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Writer persists the enriched table to a CSV file.
// It implements pipeline.Loader.
type Writer struct {
	path    string
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewWriter creates a Writer for the given output path.
func NewWriter(path string, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	return &Writer{path: path, logger: logger, metrics: metrics}
}

// Name identifies the sink in logs and metrics.
func (w *Writer) Name() string { return "csv" }

// Path returns the output file path.
func (w *Writer) Path() string { return w.path }

// LoadTable writes all records in one pass. The file is written to a
// temporary sibling and renamed into place, so a failure never leaves a
// partial output behind.
func (w *Writer) LoadTable(ctx context.Context, columns []string, records []domain.EnrichedRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(w.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if err := writeCSV(tmp, OutputColumns(columns), records); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), w.path); err != nil {
		return fmt.Errorf("rename output: %w", err)
	}

	w.metrics.RecordsWritten.WithLabelValues(w.Name()).Add(float64(len(records)))
	w.logger.Info("enriched table written", "path", w.path, "rows", len(records))
	return nil
}

func writeCSV(out io.Writer, columns []string, records []domain.EnrichedRecord) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := range records {
		if err := cw.Write(Row(records[i], columns)); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
