// Package datagov talks to the data.gov.sg open-data APIs: the asynchronous
// dataset export (initiate, poll, download) and the dataset metadata.
package datagov

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/tidwall/gjson"

	"github.com/couchcryptid/hdb-property-etl/internal/adapter/apiclient"
	"github.com/couchcryptid/hdb-property-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/hdb-property-etl/internal/domain"
	"github.com/couchcryptid/hdb-property-etl/internal/observability"
)

// ExportState is a step of the export job as seen by the client.
type ExportState string

const (
	StateRequested ExportState = "requested"
	StatePolling   ExportState = "polling"
	StateReady     ExportState = "ready"
	StateExhausted ExportState = "exhausted"
)

// Exporter downloads a dataset through the export API. It makes one initiate
// call, then polls a fixed number of times at a fixed interval until the
// download URL appears.
type Exporter struct {
	api         *apiclient.Client
	baseURL     string
	maxAttempts int
	interval    time.Duration
	clock       clockwork.Clock
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewExporter creates an Exporter against baseURL
// (e.g. https://api-open.data.gov.sg/v1/public/api).
func NewExporter(api *apiclient.Client, baseURL string, maxAttempts int, interval time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Exporter {
	return &Exporter{
		api:         api,
		baseURL:     baseURL,
		maxAttempts: maxAttempts,
		interval:    interval,
		clock:       clockwork.NewRealClock(),
		logger:      logger,
		metrics:     metrics,
	}
}

// WithClock replaces the clock used between polls.
func (e *Exporter) WithClock(c clockwork.Clock) *Exporter {
	e.clock = c
	return e
}

// ExportDataset runs the export job for datasetID and returns the decoded
// CSV. It fails with *domain.ExportTimeoutError when no download URL appears
// within the poll budget, and with *domain.HTTPError on any non-200 response.
func (e *Exporter) ExportDataset(ctx context.Context, datasetID string) (domain.PropertyTable, error) {
	e.transition(datasetID, StateRequested)
	msg, err := e.initiate(ctx, datasetID)
	if err != nil {
		return domain.PropertyTable{}, fmt.Errorf("initiate download: %w", err)
	}
	e.logger.Info("export initiated", "dataset_id", datasetID, "message", msg)

	e.transition(datasetID, StatePolling)
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		downloadURL, err := e.poll(ctx, datasetID)
		if err != nil {
			return domain.PropertyTable{}, fmt.Errorf("poll download (attempt %d/%d): %w", attempt, e.maxAttempts, err)
		}

		if downloadURL != "" {
			e.metrics.ExportPolls.WithLabelValues("ready").Inc()
			e.transition(datasetID, StateReady)
			return e.download(ctx, downloadURL)
		}

		e.metrics.ExportPolls.WithLabelValues("pending").Inc()
		if attempt == e.maxAttempts {
			break
		}
		e.logger.Info("export not ready, continuing to poll",
			"dataset_id", datasetID,
			"attempt", attempt,
			"max_attempts", e.maxAttempts,
			"interval", e.interval,
		)
		if !sleepWithContext(ctx, e.clock, e.interval) {
			return domain.PropertyTable{}, ctx.Err()
		}
	}

	e.transition(datasetID, StateExhausted)
	return domain.PropertyTable{}, &domain.ExportTimeoutError{DatasetID: datasetID, Attempts: e.maxAttempts}
}

func (e *Exporter) initiate(ctx context.Context, datasetID string) (string, error) {
	body, err := e.api.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		URL:    e.datasetURL(datasetID, "initiate-download"),
	})
	if err != nil {
		return "", err
	}
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("initiate download: invalid JSON response")
	}
	return gjson.GetBytes(body, "data.message").String(), nil
}

// poll returns the download URL, or "" while the export is still pending.
func (e *Exporter) poll(ctx context.Context, datasetID string) (string, error) {
	body, err := e.api.Do(ctx, apiclient.Request{
		Method: http.MethodGet,
		URL:    e.datasetURL(datasetID, "poll-download"),
	})
	if err != nil {
		return "", err
	}
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("invalid JSON response")
	}
	return gjson.GetBytes(body, "data.url").String(), nil
}

func (e *Exporter) download(ctx context.Context, downloadURL string) (domain.PropertyTable, error) {
	body, err := e.api.Do(ctx, apiclient.Request{Method: http.MethodGet, URL: downloadURL})
	if err != nil {
		return domain.PropertyTable{}, fmt.Errorf("download export: %w", err)
	}
	table, err := csvfile.Decode(bytes.NewReader(body))
	if err != nil {
		return domain.PropertyTable{}, fmt.Errorf("decode export: %w", err)
	}
	e.logger.Info("export loaded", "rows", table.Len(), "columns", len(table.Columns), "bytes", len(body))
	return table, nil
}

func (e *Exporter) datasetURL(datasetID, action string) string {
	return fmt.Sprintf("%s/datasets/%s/%s", e.baseURL, url.PathEscape(datasetID), action)
}

func (e *Exporter) transition(datasetID string, state ExportState) {
	e.logger.Debug("export state", "dataset_id", datasetID, "state", string(state))
}

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
