package main

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/hdb-property-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/hdb-property-etl/internal/domain"
)

// Rough bounding box of Singapore, used to flag implausible geocodes.
const (
	minLat, maxLat = 1.15, 1.48
	minLon, maxLon = 103.59, 104.10
)

var validateFile string

var errValidationFailed = errors.New("validation failed")

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the integrity of the enriched CSV",
	Long: "Re-reads the enriched CSV and checks its header, the residential filter, " +
		"address construction, coordinate pairs and the town-to-area join.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := cfg.OutputPath
		if validateFile != "" {
			path = validateFile
		}
		table, err := csvfile.ReadTable(path)
		if err != nil {
			return err
		}
		if !runValidate(cmd.OutOrStdout(), path, table) {
			return errValidationFailed
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateFile, "file", "", "enriched CSV to check (default: OUTPUT_PATH)")
	rootCmd.AddCommand(validateCmd)
}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func runValidate(w io.Writer, path string, table domain.PropertyTable) bool {
	fmt.Fprintln(w, "=== HDB Property Output Validation ===")
	fmt.Fprintf(w, "File: %s (%d rows)\n\n", path, table.Len())

	phases := []*phase{validateHeader(table.Columns)}
	if phases[0].passed() {
		phases = append(phases,
			validateResidential(table),
			validateAddresses(table),
			validateCoordinates(table),
			validateAreaJoin(table),
		)
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-40s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
		return true
	}
	fmt.Fprintln(w, "\nValidation FAILED.")
	return false
}

// lineOf maps a record index to its line in the file (header is line 1).
func lineOf(i int) int { return i + 2 }

// ── Phase 1: Header ──

func validateHeader(columns []string) *phase {
	p := &phase{name: "Phase 1: Header"}

	for _, col := range []string{domain.ColumnBlockNumber, domain.ColumnStreet, domain.ColumnResidential, domain.ColumnTown} {
		if !slices.Contains(columns, col) {
			p.errorf("missing upstream column %q", col)
		}
	}

	n := len(csvfile.EnrichedColumns)
	if len(columns) < n || !slices.Equal(columns[len(columns)-n:], csvfile.EnrichedColumns) {
		p.errorf("header must end with %v, got %v", csvfile.EnrichedColumns, columns)
	}
	return p
}

// ── Phase 2: Residential filter ──

func validateResidential(table domain.PropertyTable) *phase {
	p := &phase{name: "Phase 2: Residential filter"}
	for i, r := range table.Records {
		if !r.Residential() {
			p.errorf("line %d: residential=%q", lineOf(i), r.Get(domain.ColumnResidential))
		}
	}
	return p
}

// ── Phase 3: Addresses ──

func validateAddresses(table domain.PropertyTable) *phase {
	p := &phase{name: "Phase 3: Address construction"}
	for i, r := range table.Records {
		want := domain.BuildAddress(r)
		if got := r.Get(domain.ColumnAddress); got != want {
			p.errorf("line %d: address %q, expected %q", lineOf(i), got, want)
		}
	}
	return p
}

// ── Phase 4: Coordinates ──

func validateCoordinates(table domain.PropertyTable) *phase {
	p := &phase{name: "Phase 4: Coordinates"}
	for i, r := range table.Records {
		lat, lon := r.Get(domain.ColumnLat), r.Get(domain.ColumnLon)
		if lat == "" && lon == "" {
			continue
		}
		if lat == "" || lon == "" {
			p.errorf("line %d: only one of lat/lon set (lat=%q lon=%q)", lineOf(i), lat, lon)
			continue
		}
		latV, err := strconv.ParseFloat(lat, 64)
		if err != nil {
			p.errorf("line %d: lat %q is not a number", lineOf(i), lat)
			continue
		}
		lonV, err := strconv.ParseFloat(lon, 64)
		if err != nil {
			p.errorf("line %d: lon %q is not a number", lineOf(i), lon)
			continue
		}
		if latV < minLat || latV > maxLat || lonV < minLon || lonV > maxLon {
			p.errorf("line %d: (%g, %g) is outside Singapore", lineOf(i), latV, lonV)
		}
	}
	return p
}

// ── Phase 5: Area join ──
// Every row with the same town code must carry the same area.

func validateAreaJoin(table domain.PropertyTable) *phase {
	p := &phase{name: "Phase 5: Area join consistency"}
	seen := map[string]string{}
	firstLine := map[string]int{}
	for i, r := range table.Records {
		code, area := r.TownCode(), r.Get(domain.ColumnArea)
		prev, ok := seen[code]
		if !ok {
			seen[code] = area
			firstLine[code] = lineOf(i)
			continue
		}
		if prev != area {
			p.errorf("line %d: town %q has area %q, line %d has %q", lineOf(i), code, area, firstLine[code], prev)
		}
	}
	return p
}
