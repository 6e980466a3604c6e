package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hdb-property-etl/internal/domain"
	"github.com/couchcryptid/hdb-property-etl/internal/observability"
)

// progressEvery controls how often the geocoding phase logs progress.
const progressEvery = 500

// Exporter downloads a dataset export as a table.
type Exporter interface {
	ExportDataset(ctx context.Context, datasetID string) (domain.PropertyTable, error)
}

// MetadataSource returns the free-text description of a dataset column.
type MetadataSource interface {
	ColumnDescription(ctx context.Context, datasetID, column string) (string, error)
}

// TokenSource issues a geocoding bearer token.
type TokenSource interface {
	Token(ctx context.Context) (domain.Token, error)
}

// Loader writes the enriched table to a destination.
type Loader interface {
	Name() string
	LoadTable(ctx context.Context, columns []string, records []domain.EnrichedRecord) error
}

// Sources groups the upstream dependencies of a run.
type Sources struct {
	Exporter Exporter
	Metadata MetadataSource
	Tokens   TokenSource
	Geocoder domain.Geocoder
}

// Options selects the dataset and the column that carries the town code.
type Options struct {
	DatasetID  string
	TownColumn string
}

// Summary reports the row counts of a completed run.
type Summary struct {
	Exported    int
	Residential int
	Mapped      int
	Geocoded    int
	Duration    time.Duration
}

// Pipeline performs one export-to-load pass per call to Run.
type Pipeline struct {
	src     Sources
	loaders []Loader
	opts    Options
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool
}

// New creates a Pipeline. Loaders run in order after enrichment.
func New(src Sources, loaders []Loader, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		src:     src,
		loaders: loaders,
		opts:    opts,
		clock:   clockwork.NewRealClock(),
		logger:  logger,
		metrics: metrics,
	}
}

// WithClock replaces the clock used for run timings.
func (p *Pipeline) WithClock(c clockwork.Clock) *Pipeline {
	p.clock = c
	return p
}

// CheckReadiness returns nil once a run has completed successfully.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a run yet")
	}
	return nil
}

// Run executes one full pass. Any error aborts the run; errors raised before
// the load step leave no output behind.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	start := p.clock.Now()
	p.logger.Info("pipeline started", "dataset_id", p.opts.DatasetID)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	var sum Summary

	table, err := p.src.Exporter.ExportDataset(ctx, p.opts.DatasetID)
	if err != nil {
		return sum, fmt.Errorf("export dataset: %w", err)
	}
	sum.Exported = table.Len()
	p.metrics.RecordsExported.Add(float64(sum.Exported))

	residential := domain.FilterResidential(table)
	sum.Residential = residential.Len()
	p.metrics.RecordsResidential.Add(float64(sum.Residential))
	p.logger.Info("residential filter applied", "exported", sum.Exported, "residential", sum.Residential)

	idx, err := p.townIndex(ctx)
	if err != nil {
		return sum, err
	}

	records := domain.AttachAddresses(domain.JoinTownNames(residential.Records, idx))
	for _, r := range records {
		if r.Area != nil {
			sum.Mapped++
		}
	}

	tok, err := p.src.Tokens.Token(ctx)
	if err != nil {
		return sum, fmt.Errorf("obtain token: %w", err)
	}

	records, sum.Geocoded, err = p.geocode(ctx, records, tok.AccessToken)
	if err != nil {
		return sum, err
	}

	for _, l := range p.loaders {
		if err := l.LoadTable(ctx, table.Columns, records); err != nil {
			return sum, fmt.Errorf("load %s: %w", l.Name(), err)
		}
	}

	sum.Duration = p.clock.Since(start)
	p.metrics.PipelineDuration.Observe(sum.Duration.Seconds())
	p.metrics.LastSuccess.Set(float64(p.clock.Now().Unix()))
	p.ready.Store(true)
	p.logger.Info("pipeline finished",
		"exported", sum.Exported,
		"residential", sum.Residential,
		"mapped", sum.Mapped,
		"geocoded", sum.Geocoded,
		"duration", sum.Duration,
	)
	return sum, nil
}

func (p *Pipeline) townIndex(ctx context.Context) (domain.TownIndex, error) {
	desc, err := p.src.Metadata.ColumnDescription(ctx, p.opts.DatasetID, p.opts.TownColumn)
	if err != nil {
		return nil, fmt.Errorf("town mapping: %w", err)
	}
	entries := domain.ParseTownMapping(desc)
	idx := domain.NewTownIndex(entries)
	p.logger.Info("town mapping parsed", "column", p.opts.TownColumn, "pairs", len(entries), "codes", len(idx))
	return idx, nil
}

// geocode looks up every record in order and returns the enriched copies
// along with the number of matches.
func (p *Pipeline) geocode(ctx context.Context, records []domain.EnrichedRecord, token string) ([]domain.EnrichedRecord, int, error) {
	start := p.clock.Now()
	out := make([]domain.EnrichedRecord, 0, len(records))
	matched := 0

	for i, r := range records {
		enriched, err := domain.EnrichWithGeocoding(ctx, r, p.src.Geocoder, token)
		if err != nil {
			return nil, matched, fmt.Errorf("row %d: %w", i+1, err)
		}
		if enriched.Location != nil {
			matched++
		}
		out = append(out, enriched)

		if (i+1)%progressEvery == 0 {
			p.logger.Info("geocoding progress", "done", i+1, "total", len(records), "matched", matched)
		}
	}

	elapsed := p.clock.Since(start)
	p.logger.Info("geocoding finished",
		"rows", len(records),
		"matched", matched,
		"elapsed", elapsed,
		"elapsed_minutes", elapsed.Minutes(),
	)
	return out, matched, nil
}
