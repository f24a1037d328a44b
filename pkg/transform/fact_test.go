package transform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestETL_Transform_BuildFactSalesOrder(t *testing.T) {
	t.Parallel()

	orders := []SalesOrder{
		{
			SalesOrderID:             2,
			CreatedAt:                time.Date(2022, 11, 3, 14, 20, 52, 186000000, time.UTC),
			LastUpdated:              time.Date(2022, 11, 3, 14, 20, 52, 186000000, time.UTC),
			DesignID:                 3,
			StaffID:                  19,
			CounterpartyID:           8,
			UnitsSold:                42972,
			UnitPrice:                3.94,
			CurrencyID:               2,
			AgreedDeliveryDate:       "2022-11-07",
			AgreedPaymentDate:        "2022-11-08",
			AgreedDeliveryLocationID: 8,
		},
		{
			SalesOrderID: 3,
			CreatedAt:    time.Date(2022, 11, 3, 14, 20, 52, 188000000, time.UTC),
			LastUpdated:  time.Date(2022, 11, 3, 14, 20, 52, 188000000, time.UTC),
			StaffID:      10,
		},
	}

	rows := BuildFactSalesOrder(orders)
	require.Len(t, rows, 2)

	t.Run("sales_record_id is dense, 1-based, in input order", func(t *testing.T) {
		t.Parallel()
		require.Equal(t, int64(1), rows[0].SalesRecordID)
		require.Equal(t, int64(2), rows[1].SalesRecordID)
	})

	t.Run("staff_id is renamed to sales_staff_id", func(t *testing.T) {
		t.Parallel()
		require.Equal(t, int64(19), rows[0].SalesStaffID)
		require.Equal(t, int64(10), rows[1].SalesStaffID)
	})

	t.Run("timestamps split into date and millisecond time", func(t *testing.T) {
		t.Parallel()
		require.Equal(t, "2022-11-03", rows[0].CreatedDate)
		require.Equal(t, "14:20:52.186", rows[0].CreatedTime)
		require.Equal(t, "2022-11-03", rows[0].LastUpdatedDate)
		require.Equal(t, "14:20:52.186", rows[0].LastUpdatedTime)
	})

	t.Run("measures and foreign keys carry through", func(t *testing.T) {
		t.Parallel()
		row := rows[0]
		require.Equal(t, int64(2), row.SalesOrderID)
		require.Equal(t, int64(42972), row.UnitsSold)
		require.InDelta(t, 3.94, row.UnitPrice, 1e-9)
		require.Equal(t, int64(2), row.CurrencyID)
		require.Equal(t, int64(3), row.DesignID)
		require.Equal(t, int64(8), row.CounterpartyID)
		require.Equal(t, "2022-11-08", row.AgreedPaymentDate)
		require.Equal(t, "2022-11-07", row.AgreedDeliveryDate)
		require.Equal(t, int64(8), row.AgreedDeliveryLocationID)
	})

	t.Run("no rows are dropped", func(t *testing.T) {
		t.Parallel()
		require.Len(t, BuildFactSalesOrder(nil), 0)
		require.Len(t, BuildFactSalesOrder(orders), len(orders))
	})
}
