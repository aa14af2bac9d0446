package seed

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"medeasy/pos/domain"
)

// MedicineRow is one line of a catalog CSV.
type MedicineRow struct {
	Name         string `csv:"name"`
	Brand        string `csv:"brand"`
	Form         string `csv:"form"`
	Category     string `csv:"category"`
	SellingPrice string `csv:"selling_price"`
}

// ImportResult reports what an import did.
type ImportResult struct {
	Inserted int      `json:"inserted"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// ParseMedicines decodes catalog rows from CSV with a header line.
func ParseMedicines(r io.Reader) ([]MedicineRow, error) {
	var rows []MedicineRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("parse medicine csv: %w", err)
	}
	return rows, nil
}

// Import inserts catalog rows in one transaction, ignoring names that already
// exist. Invalid rows are skipped and reported by line number.
func Import(ctx context.Context, db *sqlx.DB, rows []MedicineRow) (ImportResult, error) {
	var result ImportResult

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("start medicine import: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `INSERT OR IGNORE INTO medicines (name, brand, form, category, selling_price) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return result, fmt.Errorf("prepare medicine insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range rows {
		line := i + 2 // header is line 1
		name := strings.TrimSpace(row.Name)
		if name == "" {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: name is required", line))
			continue
		}
		price, err := decimal.NewFromString(strings.TrimSpace(row.SellingPrice))
		if err != nil || !price.IsPositive() {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: selling_price must be a positive number", line))
			continue
		}
		category := strings.ToLower(strings.TrimSpace(row.Category))
		if !slices.Contains(domain.Categories, category) {
			category = "other"
		}

		res, err := stmt.ExecContext(ctx, name, strings.TrimSpace(row.Brand), strings.TrimSpace(row.Form), category, price.StringFixed(2))
		if err != nil {
			return result, fmt.Errorf("insert medicine %s: %w", name, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			result.Skipped++
			continue
		}
		result.Inserted++
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("commit medicine import: %w", err)
	}
	return result, nil
}

// LoadMedicines seeds the catalog from a CSV file. A missing file is logged
// and ignored.
func LoadMedicines(ctx context.Context, db *sqlx.DB, csvPath string, logger zerolog.Logger) {
	file, err := os.Open(csvPath)
	if err != nil {
		logger.Warn().Err(err).Str("path", csvPath).Msg("unable to load medicine catalog")
		return
	}
	defer file.Close()

	rows, err := ParseMedicines(file)
	if err != nil {
		logger.Warn().Err(err).Str("path", csvPath).Msg("unable to read medicine catalog")
		return
	}
	result, err := Import(ctx, db, rows)
	if err != nil {
		logger.Error().Err(err).Msg("unable to seed medicine catalog")
		return
	}
	logger.Info().Int("inserted", result.Inserted).Int("skipped", result.Skipped).Msg("seeded medicine catalog")
}
