package transform

// Target table names of the star schema.
const (
	TargetDimDate         = "dim_date"
	TargetDimDesign       = "dim_design"
	TargetDimLocation     = "dim_location"
	TargetDimCounterparty = "dim_counterparty"
	TargetDimStaff        = "dim_staff"
	TargetDimCurrency     = "dim_currency"
	TargetFactSalesOrder  = "fact_sales_order"
)

// TargetTables lists every conformed table produced per batch, in build order.
func TargetTables() []string {
	return []string{
		TargetDimDate,
		TargetDimDesign,
		TargetDimLocation,
		TargetDimCounterparty,
		TargetDimStaff,
		TargetDimCurrency,
		TargetFactSalesOrder,
	}
}

// DateRow is a synthesized date-dimension row. Month and day are zero-padded
// strings; date_id is a dense 0-based index over the sorted distinct dates.
type DateRow struct {
	DateID    int64  `parquet:"date_id"`
	Year      int32  `parquet:"year"`
	Month     string `parquet:"month"`
	Day       string `parquet:"day"`
	DayOfWeek int32  `parquet:"day_of_week"`
	DayName   string `parquet:"day_name"`
	MonthName string `parquet:"month_name"`
	Quarter   int32  `parquet:"quarter"`
}

type DesignRow struct {
	DesignID     int64  `parquet:"design_id"`
	DesignName   string `parquet:"design_name"`
	FileLocation string `parquet:"file_location"`
	FileName     string `parquet:"file_name"`
}

// LocationRow keeps address_id as its key even though the target table is
// named dim_location.
type LocationRow struct {
	AddressID    int64   `parquet:"address_id"`
	AddressLine1 string  `parquet:"address_line_1"`
	AddressLine2 *string `parquet:"address_line_2,optional"`
	District     *string `parquet:"district,optional"`
	City         string  `parquet:"city"`
	PostalCode   string  `parquet:"postal_code"`
	Country      string  `parquet:"country"`
	Phone        string  `parquet:"phone"`
}

type CounterpartyRow struct {
	CounterpartyID                int64   `parquet:"counterparty_id"`
	CounterpartyLegalName         string  `parquet:"counterparty_legal_name"`
	CounterpartyLegalAddressLine1 string  `parquet:"counterparty_legal_address_line_1"`
	CounterpartyLegalAddressLine2 *string `parquet:"counterparty_legal_address_line_2,optional"`
	CounterpartyLegalDistrict     *string `parquet:"counterparty_legal_district,optional"`
	CounterpartyLegalCity         string  `parquet:"counterparty_legal_city"`
	CounterpartyLegalPostalCode   string  `parquet:"counterparty_legal_postal_code"`
	CounterpartyLegalCountry      string  `parquet:"counterparty_legal_country"`
	CounterpartyLegalPhoneNumber  string  `parquet:"counterparty_legal_phone_number"`
}

type StaffRow struct {
	StaffID        int64  `parquet:"staff_id"`
	FirstName      string `parquet:"first_name"`
	LastName       string `parquet:"last_name"`
	DepartmentName string `parquet:"department_name"`
	Location       string `parquet:"location"`
	EmailAddress   string `parquet:"email_address"`
}

type CurrencyRow struct {
	CurrencyID   int64   `parquet:"currency_id"`
	CurrencyCode string  `parquet:"currency_code"`
	CurrencyName *string `parquet:"currency_name,optional"`
}

// FactSalesOrderRow is one fact row per source sales-order record, keyed by a
// dense synthetic sales_record_id assigned in source row order. Foreign keys
// are carried through unresolved; referential validity is a loader concern.
type FactSalesOrderRow struct {
	SalesRecordID            int64   `parquet:"sales_record_id"`
	SalesOrderID             int64   `parquet:"sales_order_id"`
	CreatedDate              string  `parquet:"created_date"`
	CreatedTime              string  `parquet:"created_time"`
	LastUpdatedDate          string  `parquet:"last_updated_date"`
	LastUpdatedTime          string  `parquet:"last_updated_time"`
	SalesStaffID             int64   `parquet:"sales_staff_id"`
	CounterpartyID           int64   `parquet:"counterparty_id"`
	UnitsSold                int64   `parquet:"units_sold"`
	UnitPrice                float64 `parquet:"unit_price"`
	CurrencyID               int64   `parquet:"currency_id"`
	DesignID                 int64   `parquet:"design_id"`
	AgreedPaymentDate        string  `parquet:"agreed_payment_date"`
	AgreedDeliveryDate       string  `parquet:"agreed_delivery_date"`
	AgreedDeliveryLocationID int64   `parquet:"agreed_delivery_location_id"`
}
