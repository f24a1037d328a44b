package transform

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestETL_Transform_BuildDateDimension(t *testing.T) {
	t.Parallel()

	t.Run("ids are a dense index over sorted distinct dates", func(t *testing.T) {
		t.Parallel()

		orders := []SalesOrder{
			{
				CreatedAt:          time.Date(2022, 11, 3, 14, 20, 49, 962000000, time.UTC),
				LastUpdated:        time.Date(2022, 11, 3, 14, 20, 49, 962000000, time.UTC),
				AgreedDeliveryDate: "2022-11-10",
				AgreedPaymentDate:  "2022-11-08",
			},
			{
				CreatedAt:          time.Date(2022, 11, 4, 11, 0, 0, 0, time.UTC),
				LastUpdated:        time.Date(2022, 11, 5, 11, 0, 0, 0, time.UTC),
				AgreedDeliveryDate: "2022-11-10",
				AgreedPaymentDate:  "2022-11-07",
			},
		}

		rows, err := BuildDateDimension(orders)
		require.NoError(t, err)

		// 2022-11-03 .. 2022-11-10 minus the unmentioned days.
		var got []string
		for i, row := range rows {
			require.Equal(t, int64(i), row.DateID)
			got = append(got, fmt.Sprintf("%d-%s-%s", row.Year, row.Month, row.Day))
		}
		require.Equal(t, []string{
			"2022-11-03", "2022-11-04", "2022-11-05",
			"2022-11-07", "2022-11-08", "2022-11-10",
		}, got)
	})

	t.Run("calendar attributes", func(t *testing.T) {
		t.Parallel()

		orders := []SalesOrder{{
			CreatedAt:          time.Date(2022, 11, 3, 14, 20, 49, 0, time.UTC),
			LastUpdated:        time.Date(2022, 11, 3, 14, 20, 49, 0, time.UTC),
			AgreedDeliveryDate: "2022-11-03",
			AgreedPaymentDate:  "2022-11-03",
		}}

		rows, err := BuildDateDimension(orders)
		require.NoError(t, err)
		require.Len(t, rows, 1)

		row := rows[0]
		require.Equal(t, int32(2022), row.Year)
		require.Equal(t, "11", row.Month)
		require.Equal(t, "03", row.Day)
		require.Equal(t, int32(4), row.DayOfWeek) // Thursday
		require.Equal(t, "thursday", row.DayName)
		require.Equal(t, "november", row.MonthName)
		require.Equal(t, int32(3), row.Quarter) // 11/4 + 1 per the upstream rule
	})

	t.Run("sunday maps to ISO weekday 7", func(t *testing.T) {
		t.Parallel()

		orders := []SalesOrder{{
			CreatedAt:          time.Date(2022, 11, 6, 0, 0, 0, 0, time.UTC),
			LastUpdated:        time.Date(2022, 11, 6, 0, 0, 0, 0, time.UTC),
			AgreedDeliveryDate: "2022-11-06",
			AgreedPaymentDate:  "2022-11-06",
		}}

		rows, err := BuildDateDimension(orders)
		require.NoError(t, err)
		require.Equal(t, int32(7), rows[0].DayOfWeek)
		require.Equal(t, "sunday", rows[0].DayName)
	})

	t.Run("quarter follows the upstream formula across the year", func(t *testing.T) {
		t.Parallel()

		// month/4 + 1 puts Jan-Mar in 1, Apr-Jul in 2, Aug-Nov in 3, Dec in 4.
		wantByMonth := map[int]int32{
			1: 1, 2: 1, 3: 1,
			4: 2, 5: 2, 6: 2, 7: 2,
			8: 3, 9: 3, 10: 3, 11: 3,
			12: 4,
		}
		for month, want := range wantByMonth {
			d := time.Date(2022, time.Month(month), 15, 0, 0, 0, 0, time.UTC)
			rows, err := BuildDateDimension([]SalesOrder{{
				CreatedAt:          d,
				LastUpdated:        d,
				AgreedDeliveryDate: d.Format("2006-01-02"),
				AgreedPaymentDate:  d.Format("2006-01-02"),
			}})
			require.NoError(t, err)
			require.Equal(t, want, rows[0].Quarter, "month %d", month)
		}
	})

	t.Run("invalid agreed date is a hard failure", func(t *testing.T) {
		t.Parallel()

		_, err := BuildDateDimension([]SalesOrder{{
			CreatedAt:          time.Date(2022, 11, 3, 0, 0, 0, 0, time.UTC),
			LastUpdated:        time.Date(2022, 11, 3, 0, 0, 0, 0, time.UTC),
			AgreedDeliveryDate: "2022-13-45",
			AgreedPaymentDate:  "2022-11-03",
		}})
		require.Error(t, err)
	})

	t.Run("no orders yields no dates", func(t *testing.T) {
		t.Parallel()

		rows, err := BuildDateDimension(nil)
		require.NoError(t, err)
		require.Empty(t, rows)
	})
}
