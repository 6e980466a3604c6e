package csvfile

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hdb-property-etl/internal/domain"
	"github.com/couchcryptid/hdb-property-etl/internal/observability"
)

const exportCSV = "\ufeffblk_no,street,max_floor_lvl,residential,bldg_contract_town\n" +
	"1,BEACH RD,16,Y,KWN\n" +
	"2,\"MARKET ST, CENTRAL\",3,N,CT\n" +
	"10A,ANG MO KIO AVE 3,12,Y,AMK\n"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDecode(t *testing.T) {
	table, err := Decode(strings.NewReader(exportCSV))
	require.NoError(t, err)

	assert.Equal(t, []string{"blk_no", "street", "max_floor_lvl", "residential", "bldg_contract_town"}, table.Columns)
	require.Equal(t, 3, table.Len())
	assert.Equal(t, "1", table.Records[0].BlockNumber())
	assert.Equal(t, "MARKET ST, CENTRAL", table.Records[1].Street())
	assert.Equal(t, "AMK", table.Records[2].TownCode())
	assert.Equal(t, "12", table.Records[2].Get("max_floor_lvl"))
}

func TestDecode_Empty(t *testing.T) {
	_, err := Decode(strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "header")
}

func TestDecode_HeaderOnly(t *testing.T) {
	table, err := Decode(strings.NewReader("blk_no,street\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
	assert.Equal(t, []string{"blk_no", "street"}, table.Columns)
}

func TestOutputColumns(t *testing.T) {
	cols := OutputColumns([]string{"blk_no", "street", "lat"})
	assert.Equal(t, []string{"blk_no", "street", "Area", "address", "lat", "lon"}, cols)
}

func TestRow_AbsentValues(t *testing.T) {
	rec := domain.EnrichedRecord{
		PropertyRecord: domain.NewPropertyRecord([]string{"blk_no", "street"}, []string{"123", "ORCHARD RD"}),
		Address:        "123 ORCHARD RD",
	}
	row := Row(rec, OutputColumns([]string{"blk_no", "street"}))
	assert.Equal(t, []string{"123", "ORCHARD RD", "", "123 ORCHARD RD", "", ""}, row)
}

func TestWriter_LoadTable_RoundTrip(t *testing.T) {
	table, err := Decode(strings.NewReader(exportCSV))
	require.NoError(t, err)

	area := "KALLANG/WHAMPOA"
	records := []domain.EnrichedRecord{
		{
			PropertyRecord: table.Records[0],
			Area:           &area,
			Address:        "1 BEACH RD",
			Location:       &domain.Coordinates{Lat: 1.29475386234532, Lon: 103.854333440512},
		},
		{
			PropertyRecord: table.Records[2],
			Address:        "10A ANG MO KIO AVE 3",
		},
	}

	path := filepath.Join(t.TempDir(), "nested", "hdb-property-info.csv")
	metrics := observability.NewMetricsForTesting()
	w := NewWriter(path, discardLogger(), metrics)

	require.NoError(t, w.LoadTable(context.Background(), table.Columns, records))
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.RecordsWritten.WithLabelValues("csv")), 0)

	got, err := ReadTable(path)
	require.NoError(t, err)

	require.Equal(t, 2, got.Len())
	assert.Equal(t, OutputColumns(table.Columns), got.Columns)
	assert.Equal(t, "KALLANG/WHAMPOA", got.Records[0].Get("Area"))
	assert.Equal(t, "1 BEACH RD", got.Records[0].Get("address"))
	assert.Equal(t, "1.29475386234532", got.Records[0].Get("lat"))
	assert.Equal(t, "103.854333440512", got.Records[0].Get("lon"))
	assert.Empty(t, got.Records[1].Get("Area"))
	assert.Empty(t, got.Records[1].Get("lat"))
	assert.Empty(t, got.Records[1].Get("lon"))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file is cleaned up")
}

func TestWriter_LoadTable_CancelledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w := NewWriter(path, discardLogger(), observability.NewMetricsForTesting())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Error(t, w.LoadTable(ctx, []string{"blk_no"}, nil))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestReadTable_Missing(t *testing.T) {
	_, err := ReadTable(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
}
