package load

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/fenorlabs/totesys-etl/pkg/artifact"
	"github.com/fenorlabs/totesys-etl/pkg/blob"
	"github.com/fenorlabs/totesys-etl/pkg/testutil"
	"github.com/fenorlabs/totesys-etl/pkg/transform"
)

const testBatchID = "20221103_142049"

// testWarehouse starts a disposable Postgres, applies the star-schema
// migrations and returns a pool against it.
func testWarehouse(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping warehouse container test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("warehouse"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		tcpostgres.BasicWaitStrategies(),
		tcpostgres.WithSQLDriver("pgx"),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		terminateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = container.Terminate(terminateCtx)
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, RunMigrations(testutil.NewLogger(), connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func seedArtifacts(t *testing.T, store blob.Store) {
	t.Helper()
	ctx := context.Background()

	name := "United States Dollars"
	district := "Avon"

	_, err := artifact.Put(ctx, store, transform.TargetDimDate, testBatchID, []transform.DateRow{
		{DateID: 0, Year: 2022, Month: "11", Day: "03", DayOfWeek: 4, DayName: "thursday", MonthName: "november", Quarter: 3},
		{DateID: 1, Year: 2022, Month: "11", Day: "07", DayOfWeek: 1, DayName: "monday", MonthName: "november", Quarter: 3},
	})
	require.NoError(t, err)

	_, err = artifact.Put(ctx, store, transform.TargetDimDesign, testBatchID, []transform.DesignRow{
		{DesignID: 8, DesignName: "Wooden", FileLocation: "/usr", FileName: "wooden-20220717.json"},
	})
	require.NoError(t, err)

	_, err = artifact.Put(ctx, store, transform.TargetDimLocation, testBatchID, []transform.LocationRow{
		{AddressID: 8, AddressLine1: "0579 Durgan Common", District: &district, City: "Suffolk", PostalCode: "56693-0660", Country: "United Kingdom", Phone: "8935 157571"},
	})
	require.NoError(t, err)

	_, err = artifact.Put(ctx, store, transform.TargetDimCounterparty, testBatchID, []transform.CounterpartyRow{
		{CounterpartyID: 8, CounterpartyLegalName: "Grant - Lakin", CounterpartyLegalAddressLine1: "0579 Durgan Common", CounterpartyLegalCity: "Suffolk", CounterpartyLegalPostalCode: "56693-0660", CounterpartyLegalCountry: "United Kingdom", CounterpartyLegalPhoneNumber: "8935 157571"},
	})
	require.NoError(t, err)

	_, err = artifact.Put(ctx, store, transform.TargetDimStaff, testBatchID, []transform.StaffRow{
		{StaffID: 19, FirstName: "Pierre", LastName: "Sauer", DepartmentName: "Purchasing", Location: "Manchester", EmailAddress: "pierre.sauer@terrifictotes.com"},
	})
	require.NoError(t, err)

	_, err = artifact.Put(ctx, store, transform.TargetDimCurrency, testBatchID, []transform.CurrencyRow{
		{CurrencyID: 2, CurrencyCode: "USD", CurrencyName: &name},
	})
	require.NoError(t, err)

	_, err = artifact.Put(ctx, store, transform.TargetFactSalesOrder, testBatchID, []transform.FactSalesOrderRow{
		{
			SalesRecordID: 1, SalesOrderID: 2,
			CreatedDate: "2022-11-03", CreatedTime: "14:20:52.186",
			LastUpdatedDate: "2022-11-03", LastUpdatedTime: "14:20:52.186",
			SalesStaffID: 19, CounterpartyID: 8, UnitsSold: 42972, UnitPrice: 3.94,
			CurrencyID: 2, DesignID: 8,
			AgreedPaymentDate: "2022-11-08", AgreedDeliveryDate: "2022-11-07",
			AgreedDeliveryLocationID: 8,
		},
	})
	require.NoError(t, err)
}

func TestETL_Load_NewLoader(t *testing.T) {
	t.Parallel()

	_, err := NewLoader(context.Background(), Config{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "logger is required")

	_, err = NewLoader(context.Background(), Config{Logger: testutil.NewLogger(), Store: blob.NewMemoryStore()})
	require.Error(t, err)
	require.Contains(t, err.Error(), "warehouse dsn is required")
}

func TestETL_Load_Load(t *testing.T) {
	pool := testWarehouse(t)
	ctx := context.Background()

	store := blob.NewMemoryStore()
	seedArtifacts(t, store)

	loader, err := NewLoader(ctx, Config{
		Logger: testutil.NewLogger(),
		Store:  store,
		Pool:   pool,
	})
	require.NoError(t, err)

	require.NoError(t, loader.Load(ctx, testBatchID))

	var count int
	require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM dim_date").Scan(&count))
	require.Equal(t, 2, count)

	var staffName string
	require.NoError(t, pool.QueryRow(ctx,
		"SELECT first_name FROM dim_staff WHERE staff_id = 19").Scan(&staffName))
	require.Equal(t, "Pierre", staffName)

	var currencyName *string
	require.NoError(t, pool.QueryRow(ctx,
		"SELECT currency_name FROM dim_currency WHERE currency_id = 2").Scan(&currencyName))
	require.Equal(t, "United States Dollars", *currencyName)

	var salesStaffID int64
	var unitPrice float64
	require.NoError(t, pool.QueryRow(ctx,
		"SELECT sales_staff_id, unit_price FROM fact_sales_order WHERE sales_record_id = 1").
		Scan(&salesStaffID, &unitPrice))
	require.Equal(t, int64(19), salesStaffID)
	require.InDelta(t, 3.94, unitPrice, 1e-9)

	t.Run("dimensions are replaced, facts appended", func(t *testing.T) {
		// Reloading the same batch leaves dimension counts stable and appends
		// the fact rows again.
		require.NoError(t, loader.Load(ctx, testBatchID))

		var dims, facts int
		require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM dim_design").Scan(&dims))
		require.Equal(t, 1, dims)
		require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM fact_sales_order").Scan(&facts))
		require.Equal(t, 2, facts)
	})

	t.Run("missing artifact aborts without touching tables", func(t *testing.T) {
		err := loader.Load(ctx, "no_such_batch")
		require.ErrorIs(t, err, blob.ErrNotFound)

		var facts int
		require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM fact_sales_order").Scan(&facts))
		require.Equal(t, 2, facts)
	})
}
