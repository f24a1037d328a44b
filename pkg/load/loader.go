// Package load is the thin warehouse boundary: it reads the transformed
// artifacts for one batch and replaces or appends the warehouse tables.
// There is no transactionality guarantee beyond the single load transaction.
package load

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx with database/sql for goose
	"github.com/pressly/goose/v3"

	"github.com/fenorlabs/totesys-etl/pkg/artifact"
	"github.com/fenorlabs/totesys-etl/pkg/blob"
	"github.com/fenorlabs/totesys-etl/pkg/transform"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// RunMigrations applies the star-schema DDL to the warehouse using goose.
func RunMigrations(log *slog.Logger, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open warehouse connection: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	log.Info("load: running warehouse migrations")
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("load: warehouse migrations completed")
	return nil
}

type Config struct {
	Logger *slog.Logger
	Store  blob.Store
	DSN    string

	// Pool overrides the constructed pool; used by tests.
	Pool *pgxpool.Pool
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.DSN == "" && cfg.Pool == nil {
		return errors.New("warehouse dsn is required")
	}
	return nil
}

// Loader upserts the warehouse from one batch's artifacts: dimensions are
// replaced wholesale (they are fully rebuilt per batch), fact rows appended.
type Loader struct {
	log  *slog.Logger
	cfg  Config
	pool *pgxpool.Pool
}

func NewLoader(ctx context.Context, cfg Config) (*Loader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pool := cfg.Pool
	if pool == nil {
		var err error
		pool, err = pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create warehouse pool: %w", err)
		}
	}

	return &Loader{log: cfg.Logger, cfg: cfg, pool: pool}, nil
}

// Load reads the seven artifacts for batchID and applies them in one
// transaction.
func (l *Loader) Load(ctx context.Context, batchID string) error {
	dates, err := artifact.Get[transform.DateRow](ctx, l.cfg.Store, transform.TargetDimDate, batchID)
	if err != nil {
		return err
	}
	designs, err := artifact.Get[transform.DesignRow](ctx, l.cfg.Store, transform.TargetDimDesign, batchID)
	if err != nil {
		return err
	}
	locations, err := artifact.Get[transform.LocationRow](ctx, l.cfg.Store, transform.TargetDimLocation, batchID)
	if err != nil {
		return err
	}
	counterparties, err := artifact.Get[transform.CounterpartyRow](ctx, l.cfg.Store, transform.TargetDimCounterparty, batchID)
	if err != nil {
		return err
	}
	staff, err := artifact.Get[transform.StaffRow](ctx, l.cfg.Store, transform.TargetDimStaff, batchID)
	if err != nil {
		return err
	}
	currencies, err := artifact.Get[transform.CurrencyRow](ctx, l.cfg.Store, transform.TargetDimCurrency, batchID)
	if err != nil {
		return err
	}
	facts, err := artifact.Get[transform.FactSalesOrderRow](ctx, l.cfg.Store, transform.TargetFactSalesOrder, batchID)
	if err != nil {
		return err
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin warehouse transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := replaceDimDate(ctx, tx, dates); err != nil {
		return err
	}
	if err := replaceDimDesign(ctx, tx, designs); err != nil {
		return err
	}
	if err := replaceDimLocation(ctx, tx, locations); err != nil {
		return err
	}
	if err := replaceDimCounterparty(ctx, tx, counterparties); err != nil {
		return err
	}
	if err := replaceDimStaff(ctx, tx, staff); err != nil {
		return err
	}
	if err := replaceDimCurrency(ctx, tx, currencies); err != nil {
		return err
	}
	if err := appendFactSalesOrder(ctx, tx, facts); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit warehouse transaction: %w", err)
	}

	l.log.Info("load: batch loaded", "batch_id", batchID,
		"dim_date", len(dates), "fact_sales_order", len(facts))
	return nil
}

// Close releases the warehouse pool.
func (l *Loader) Close() {
	l.pool.Close()
}

func replaceTable(ctx context.Context, tx pgx.Tx, tableName string, columns []string, rows [][]any) error {
	if _, err := tx.Exec(ctx, "DELETE FROM "+tableName); err != nil {
		return fmt.Errorf("failed to clear %s: %w", tableName, err)
	}
	return copyRows(ctx, tx, tableName, columns, rows)
}

func copyRows(ctx context.Context, tx pgx.Tx, tableName string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := tx.CopyFrom(ctx, pgx.Identifier{tableName}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy into %s: %w", tableName, err)
	}
	return nil
}

func replaceDimDate(ctx context.Context, tx pgx.Tx, rows []transform.DateRow) error {
	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = []any{r.DateID, r.Year, r.Month, r.Day, r.DayOfWeek, r.DayName, r.MonthName, r.Quarter}
	}
	return replaceTable(ctx, tx, "dim_date",
		[]string{"date_id", "year", "month", "day", "day_of_week", "day_name", "month_name", "quarter"}, values)
}

func replaceDimDesign(ctx context.Context, tx pgx.Tx, rows []transform.DesignRow) error {
	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = []any{r.DesignID, r.DesignName, r.FileLocation, r.FileName}
	}
	return replaceTable(ctx, tx, "dim_design",
		[]string{"design_id", "design_name", "file_location", "file_name"}, values)
}

func replaceDimLocation(ctx context.Context, tx pgx.Tx, rows []transform.LocationRow) error {
	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = []any{r.AddressID, r.AddressLine1, r.AddressLine2, r.District, r.City, r.PostalCode, r.Country, r.Phone}
	}
	return replaceTable(ctx, tx, "dim_location",
		[]string{"address_id", "address_line_1", "address_line_2", "district", "city", "postal_code", "country", "phone"}, values)
}

func replaceDimCounterparty(ctx context.Context, tx pgx.Tx, rows []transform.CounterpartyRow) error {
	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = []any{
			r.CounterpartyID, r.CounterpartyLegalName,
			r.CounterpartyLegalAddressLine1, r.CounterpartyLegalAddressLine2,
			r.CounterpartyLegalDistrict, r.CounterpartyLegalCity,
			r.CounterpartyLegalPostalCode, r.CounterpartyLegalCountry,
			r.CounterpartyLegalPhoneNumber,
		}
	}
	return replaceTable(ctx, tx, "dim_counterparty",
		[]string{
			"counterparty_id", "counterparty_legal_name",
			"counterparty_legal_address_line_1", "counterparty_legal_address_line_2",
			"counterparty_legal_district", "counterparty_legal_city",
			"counterparty_legal_postal_code", "counterparty_legal_country",
			"counterparty_legal_phone_number",
		}, values)
}

func replaceDimStaff(ctx context.Context, tx pgx.Tx, rows []transform.StaffRow) error {
	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = []any{r.StaffID, r.FirstName, r.LastName, r.DepartmentName, r.Location, r.EmailAddress}
	}
	return replaceTable(ctx, tx, "dim_staff",
		[]string{"staff_id", "first_name", "last_name", "department_name", "location", "email_address"}, values)
}

func replaceDimCurrency(ctx context.Context, tx pgx.Tx, rows []transform.CurrencyRow) error {
	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = []any{r.CurrencyID, r.CurrencyCode, r.CurrencyName}
	}
	return replaceTable(ctx, tx, "dim_currency",
		[]string{"currency_id", "currency_code", "currency_name"}, values)
}

func appendFactSalesOrder(ctx context.Context, tx pgx.Tx, rows []transform.FactSalesOrderRow) error {
	values := make([][]any, len(rows))
	for i, r := range rows {
		createdDate, err := warehouseDate(r.CreatedDate)
		if err != nil {
			return fmt.Errorf("fact_sales_order row %d: %w", i, err)
		}
		createdTime, err := warehouseTime(r.CreatedTime)
		if err != nil {
			return fmt.Errorf("fact_sales_order row %d: %w", i, err)
		}
		updatedDate, err := warehouseDate(r.LastUpdatedDate)
		if err != nil {
			return fmt.Errorf("fact_sales_order row %d: %w", i, err)
		}
		updatedTime, err := warehouseTime(r.LastUpdatedTime)
		if err != nil {
			return fmt.Errorf("fact_sales_order row %d: %w", i, err)
		}
		paymentDate, err := warehouseDate(r.AgreedPaymentDate)
		if err != nil {
			return fmt.Errorf("fact_sales_order row %d: %w", i, err)
		}
		deliveryDate, err := warehouseDate(r.AgreedDeliveryDate)
		if err != nil {
			return fmt.Errorf("fact_sales_order row %d: %w", i, err)
		}
		values[i] = []any{
			r.SalesRecordID, r.SalesOrderID, createdDate, createdTime,
			updatedDate, updatedTime, r.SalesStaffID, r.CounterpartyID,
			r.UnitsSold, r.UnitPrice, r.CurrencyID, r.DesignID,
			paymentDate, deliveryDate, r.AgreedDeliveryLocationID,
		}
	}
	return copyRows(ctx, tx, "fact_sales_order",
		[]string{
			"sales_record_id", "sales_order_id", "created_date", "created_time",
			"last_updated_date", "last_updated_time", "sales_staff_id", "counterparty_id",
			"units_sold", "unit_price", "currency_id", "design_id",
			"agreed_payment_date", "agreed_delivery_date", "agreed_delivery_location_id",
		}, values)
}

// warehouseDate parses an artifact date string for a DATE column.
func warehouseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// warehouseTime parses an artifact time-of-day string for a TIME column.
func warehouseTime(s string) (pgtype.Time, error) {
	t, err := time.Parse("15:04:05.000", s)
	if err != nil {
		return pgtype.Time{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	micros := int64(t.Hour())*3600_000_000 +
		int64(t.Minute())*60_000_000 +
		int64(t.Second())*1_000_000 +
		int64(t.Nanosecond())/1_000
	return pgtype.Time{Microseconds: micros, Valid: true}, nil
}
