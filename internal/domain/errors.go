package domain

import "fmt"

// HTTPError reports a non-200 response from an upstream API.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// ExportTimeoutError reports that a dataset export produced no download URL
// within the poll budget.
type ExportTimeoutError struct {
	DatasetID string
	Attempts  int
}

func (e *ExportTimeoutError) Error() string {
	return fmt.Sprintf("dataset %s: no download url after %d polls, the export may still be running; rerun later",
		e.DatasetID, e.Attempts)
}

// ConfigurationError reports a missing required configuration value.
type ConfigurationError struct {
	Key string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s is required", e.Key)
}

// MetadataError reports dataset metadata that lacks an expected column.
type MetadataError struct {
	DatasetID string
	Column    string
	Reason    string
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("dataset %s metadata, column %q: %s", e.DatasetID, e.Column, e.Reason)
}
