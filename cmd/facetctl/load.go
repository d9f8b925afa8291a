package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	facet "github.com/openfacet/facet"
	"github.com/openfacet/facet/factory"
)

var (
	loadFile       string
	loadEntityType string
	loadIDColumn   string
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load entity values from a CSV file",
	Long: `Load CSV rows into the value store. The header names attribute
slugs; each cell is coerced through the attribute's datatype. One column
may carry the entity id (a UUID); without it every row gets a fresh id.

Object cells use the form <type>:<uuid>. Empty cells are skipped.

Examples:
  facetctl load -f patients.csv --entity-type clinic.patient
  facetctl load -f listings.csv --entity-type crm.listing --id-column listing_id
`,
	Run: func(cmd *cobra.Command, args []string) {
		loadEnv()

		if loadFile == "" {
			fmt.Println("❌ --file is required")
			os.Exit(1)
		}
		if loadEntityType == "" {
			fmt.Println("❌ --entity-type is required")
			os.Exit(1)
		}

		file, err := os.Open(loadFile)
		if err != nil {
			fmt.Println("❌ Open CSV:", err)
			os.Exit(1)
		}
		defer file.Close()

		ctx := context.Background()

		pool, err := pgxpool.New(ctx, databaseDSN())
		if err != nil {
			fmt.Println("❌ Connect to database:", err)
			os.Exit(1)
		}
		defer pool.Close()

		eng, err := factory.NewEngineWithConfig(engineConfigFromEnv(), pool)
		if err != nil {
			fmt.Println("❌ Create engine:", err)
			os.Exit(1)
		}

		loader := &csvLoader{
			attrs:      eng.Attributes(),
			values:     eng.Values(),
			entityType: loadEntityType,
			idColumn:   loadIDColumn,
		}

		result, err := loader.Run(ctx, file)
		if err != nil {
			fmt.Println("❌ Load failed:", err)
			os.Exit(1)
		}

		if result.FailedCount > 0 {
			color.Yellow("⚠️  %s", result.Summary())
			for i, loadErr := range result.Errors {
				if i == maxReportedErrors {
					fmt.Printf("   ... and %d more\n", len(result.Errors)-maxReportedErrors)
					break
				}
				fmt.Printf("   %s\n", loadErr.Error())
			}
			os.Exit(1)
		}

		color.Green("✅ %s", result.Summary())
	},
}

const maxReportedErrors = 10

func init() {
	loadCmd.Flags().StringVarP(&loadFile, "file", "f", "", "CSV file path")
	loadCmd.Flags().StringVar(&loadEntityType, "entity-type", "", "Entity content type for the imported rows")
	loadCmd.Flags().StringVar(&loadIDColumn, "id-column", "entity_id", "CSV column holding the entity id")
}

// loadError describes one cell or row that could not be imported.
type loadError struct {
	Row      int    // CSV row number (1-based, header is row 1)
	Column   string // CSV column name, empty for row-level failures
	RawValue string
	Reason   string
}

func (e *loadError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
	}
	return fmt.Sprintf("row %d, column %q: value %q - %s", e.Row, e.Column, e.RawValue, e.Reason)
}

// loadResult summarizes one CSV import pass.
type loadResult struct {
	TotalRows    int
	SuccessCount int
	FailedCount  int
	ValuesSet    int
	Errors       []*loadError
	Duration     time.Duration
}

func (r *loadResult) Summary() string {
	return fmt.Sprintf("%d/%d rows imported, %d values set, %d failed, duration: %v",
		r.SuccessCount, r.TotalRows, r.ValuesSet, r.FailedCount, r.Duration.Round(time.Millisecond))
}

// csvLoader streams CSV rows into the value store. Header columns are
// resolved against the attribute catalog once; a column naming an unknown
// slug fails the whole run before any row is written.
type csvLoader struct {
	attrs      facet.AttributeStore
	values     facet.ValueStore
	entityType string
	idColumn   string
}

func (l *csvLoader) Run(ctx context.Context, reader io.Reader) (*loadResult, error) {
	start := time.Now()

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true

	header, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}

	idIdx := -1
	columns := make(map[int]*facet.Attribute, len(header))
	for idx, name := range header {
		if name == l.idColumn {
			idIdx = idx
			continue
		}
		attr, err := l.attrs.GetBySlug(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", name, err)
		}
		columns[idx] = attr
	}

	result := &loadResult{}
	rowNum := 1

	for {
		rowNum++
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.FailedCount++
			result.Errors = append(result.Errors, &loadError{
				Row:    rowNum,
				Reason: fmt.Sprintf("CSV parsing error: %v", err),
			})
			continue
		}

		result.TotalRows++

		var entityID uuid.UUID
		if idIdx >= 0 {
			if idIdx >= len(record) {
				result.FailedCount++
				result.Errors = append(result.Errors, &loadError{
					Row:    rowNum,
					Reason: fmt.Sprintf("missing %q column", l.idColumn),
				})
				continue
			}
			entityID, err = uuid.Parse(strings.TrimSpace(record[idIdx]))
			if err != nil {
				result.FailedCount++
				result.Errors = append(result.Errors, &loadError{
					Row:      rowNum,
					Column:   l.idColumn,
					RawValue: record[idIdx],
					Reason:   "not a valid UUID",
				})
				continue
			}
		} else {
			entityID = uuid.Must(uuid.NewV7())
		}

		ref := facet.EntityRef{Type: l.entityType, ID: entityID}
		rowFailed := false

		for idx := range header {
			attr, ok := columns[idx]
			if !ok || idx >= len(record) {
				continue
			}
			raw := strings.TrimSpace(record[idx])
			if raw == "" {
				continue
			}

			native, cellErr := cellValue(attr, raw)
			if cellErr == nil {
				_, cellErr = l.values.Set(ctx, ref, attr, native)
			}
			if cellErr != nil {
				rowFailed = true
				result.Errors = append(result.Errors, &loadError{
					Row:      rowNum,
					Column:   header[idx],
					RawValue: raw,
					Reason:   cellErr.Error(),
				})
				continue
			}
			result.ValuesSet++
		}

		if rowFailed {
			result.FailedCount++
		} else {
			result.SuccessCount++
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

// cellValue converts the raw CSV cell into the native input the value
// store coerces. Strings pass through for every datatype except object,
// whose <type>:<uuid> form is parsed here.
func cellValue(attr *facet.Attribute, raw string) (any, error) {
	if attr.Datatype != facet.DatatypeObject {
		return raw, nil
	}

	typePart, idPart, found := strings.Cut(raw, ":")
	if !found || typePart == "" {
		return nil, fmt.Errorf("object cells use the form <type>:<uuid>")
	}
	id, err := uuid.Parse(strings.TrimSpace(idPart))
	if err != nil {
		return nil, fmt.Errorf("object reference id is not a valid UUID")
	}
	return facet.EntityRef{Type: strings.TrimSpace(typePart), ID: id}, nil
}
