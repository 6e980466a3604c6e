package domain

import "time"

// Upstream column names relied on by the pipeline.
const (
	ColumnBlockNumber = "blk_no"
	ColumnStreet      = "street"
	ColumnResidential = "residential"
	ColumnTown        = "bldg_contract_town"
)

// Columns appended to the upstream header in the enriched output.
const (
	ColumnArea    = "Area"
	ColumnAddress = "address"
	ColumnLat     = "lat"
	ColumnLon     = "lon"
)

// ResidentialFlag is the value of the residential column for housing blocks.
const ResidentialFlag = "Y"

// PropertyRecord is one row of the exported dataset, keyed by column name.
type PropertyRecord struct {
	Fields map[string]string
}

// NewPropertyRecord zips a CSV header with one row. Missing trailing values
// are stored as empty strings.
func NewPropertyRecord(columns, values []string) PropertyRecord {
	fields := make(map[string]string, len(columns))
	for i, col := range columns {
		if i < len(values) {
			fields[col] = values[i]
		} else {
			fields[col] = ""
		}
	}
	return PropertyRecord{Fields: fields}
}

// Get returns the value of a column, or "" if the column is absent.
func (r PropertyRecord) Get(column string) string {
	return r.Fields[column]
}

func (r PropertyRecord) BlockNumber() string { return r.Get(ColumnBlockNumber) }
func (r PropertyRecord) Street() string      { return r.Get(ColumnStreet) }
func (r PropertyRecord) TownCode() string    { return r.Get(ColumnTown) }

// Residential reports whether the block is flagged as residential.
func (r PropertyRecord) Residential() bool {
	return r.Get(ColumnResidential) == ResidentialFlag
}

// PropertyTable holds the exported rows in upstream order along with the
// upstream header.
type PropertyTable struct {
	Columns []string
	Records []PropertyRecord
}

// Len returns the number of records.
func (t PropertyTable) Len() int { return len(t.Records) }

// Coordinates is a WGS-84 latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// EnrichedRecord is a residential PropertyRecord with its area name, address
// text and geocoded location attached. Area and Location are nil when no
// mapping or geocoding match exists.
type EnrichedRecord struct {
	PropertyRecord
	Area        *string
	Address     string
	Location    *Coordinates
	ProcessedAt time.Time
}

// AreaName returns the mapped area name or "".
func (r EnrichedRecord) AreaName() string {
	if r.Area == nil {
		return ""
	}
	return *r.Area
}

// Token is a OneMap bearer token. It is fetched once per run and never
// refreshed.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}
