package datagov

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/couchcryptid/hdb-property-etl/internal/adapter/apiclient"
	"github.com/couchcryptid/hdb-property-etl/internal/domain"
)

// MetadataClient reads dataset metadata from the v2 metadata API.
type MetadataClient struct {
	api     *apiclient.Client
	baseURL string
	logger  *slog.Logger
}

// NewMetadataClient creates a MetadataClient against baseURL
// (e.g. https://api-production.data.gov.sg/v2/public/api).
func NewMetadataClient(api *apiclient.Client, baseURL string, logger *slog.Logger) *MetadataClient {
	return &MetadataClient{api: api, baseURL: baseURL, logger: logger}
}

// ColumnDescription returns the free-text description of a dataset column.
//
// Columns are keyed by opaque ids: data.columnMetadata.map maps id to column
// name and data.columnMetadata.metaMapping maps id to {description, ...}.
func (m *MetadataClient) ColumnDescription(ctx context.Context, datasetID, column string) (string, error) {
	body, err := m.api.Do(ctx, apiclient.Request{
		Method: http.MethodGet,
		URL:    fmt.Sprintf("%s/datasets/%s/metadata", m.baseURL, url.PathEscape(datasetID)),
	})
	if err != nil {
		return "", fmt.Errorf("fetch metadata: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return "", &domain.MetadataError{DatasetID: datasetID, Column: column, Reason: "invalid JSON response"}
	}

	columns := gjson.GetBytes(body, "data.columnMetadata")
	key := findKey(columns.Get("map"), func(_, v gjson.Result) bool {
		return v.String() == column
	})
	if key == "" {
		return "", &domain.MetadataError{DatasetID: datasetID, Column: column, Reason: "column not listed in columnMetadata.map"}
	}

	var description gjson.Result
	columns.Get("metaMapping").ForEach(func(k, v gjson.Result) bool {
		if k.String() == key {
			description = v.Get("description")
			return false
		}
		return true
	})
	if !description.Exists() {
		return "", &domain.MetadataError{DatasetID: datasetID, Column: column, Reason: "no description for column id " + key}
	}

	m.logger.Debug("column description loaded", "dataset_id", datasetID, "column", column, "column_id", key)
	return description.String(), nil
}

// findKey returns the first object key whose entry matches, or "".
func findKey(obj gjson.Result, match func(k, v gjson.Result) bool) string {
	var key string
	obj.ForEach(func(k, v gjson.Result) bool {
		if match(k, v) {
			key = k.String()
			return false
		}
		return true
	})
	return key
}
