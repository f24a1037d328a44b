package transform

// timeOfDayLayout formats the time component to millisecond precision.
const timeOfDayLayout = "15:04:05.000"

// BuildFactSalesOrder maps the sales-order snapshot to the fact table: one
// output row per input row, re-keyed with a dense 1-based sales_record_id
// assigned in input row order. No joins happen here and no rows are dropped.
func BuildFactSalesOrder(orders []SalesOrder) []FactSalesOrderRow {
	rows := make([]FactSalesOrderRow, 0, len(orders))
	for i, so := range orders {
		rows = append(rows, FactSalesOrderRow{
			SalesRecordID:            int64(i + 1),
			SalesOrderID:             so.SalesOrderID,
			CreatedDate:              so.CreatedAt.Format("2006-01-02"),
			CreatedTime:              so.CreatedAt.Format(timeOfDayLayout),
			LastUpdatedDate:          so.LastUpdated.Format("2006-01-02"),
			LastUpdatedTime:          so.LastUpdated.Format(timeOfDayLayout),
			SalesStaffID:             so.StaffID,
			CounterpartyID:           so.CounterpartyID,
			UnitsSold:                so.UnitsSold,
			UnitPrice:                so.UnitPrice,
			CurrencyID:               so.CurrencyID,
			DesignID:                 so.DesignID,
			AgreedPaymentDate:        so.AgreedPaymentDate,
			AgreedDeliveryDate:       so.AgreedDeliveryDate,
			AgreedDeliveryLocationID: so.AgreedDeliveryLocationID,
		})
	}
	return rows
}
