package transform

import (
	"fmt"
	"sort"
	"time"

	"github.com/fenorlabs/totesys-etl/pkg/etlerr"
	"github.com/fenorlabs/totesys-etl/pkg/table"
)

// Declared source-table schemas. Snapshots are checked against these at the
// typed boundary: a missing or unexpected column is a data-shape failure for
// the artifact being built, not something papered over by keyed access.
var sourceColumns = map[string][]string{
	"sales_order": {
		"sales_order_id", "created_at", "last_updated", "design_id", "staff_id",
		"counterparty_id", "units_sold", "unit_price", "currency_id",
		"agreed_delivery_date", "agreed_payment_date", "agreed_delivery_location_id",
	},
	"design": {
		"design_id", "created_at", "last_updated", "design_name", "file_location", "file_name",
	},
	"address": {
		"address_id", "address_line_1", "address_line_2", "district", "city",
		"postal_code", "country", "phone", "created_at", "last_updated",
	},
	"counterparty": {
		"counterparty_id", "counterparty_legal_name", "legal_address_id",
		"commercial_contact", "delivery_contact", "created_at", "last_updated",
	},
	"staff": {
		"staff_id", "first_name", "last_name", "department_id", "email_address",
		"created_at", "last_updated",
	},
	"department": {
		"department_id", "department_name", "location", "manager", "created_at", "last_updated",
	},
	"currency": {
		"currency_id", "currency_code", "created_at", "last_updated",
	},
}

// SourceColumns returns the declared column set for a source table.
func SourceColumns(tableName string) ([]string, error) {
	cols, ok := sourceColumns[tableName]
	if !ok {
		return nil, fmt.Errorf("no declared schema for table %q", tableName)
	}
	return cols, nil
}

func checkSchema(snap *table.Snapshot) error {
	declared, err := SourceColumns(snap.TableName)
	if err != nil {
		return etlerr.New(etlerr.CodeDataShape, err)
	}

	want := make(map[string]bool, len(declared))
	for _, c := range declared {
		want[c] = true
	}

	missing := make(map[string]bool)
	unexpected := make(map[string]bool)

	have := make(map[string]bool, len(snap.Columns))
	for _, c := range snap.Columns {
		have[c] = true
		if !want[c] {
			unexpected[c] = true
		}
	}
	for _, c := range declared {
		if !have[c] {
			missing[c] = true
		}
	}

	// The header carries the declared list; decoded rows can still hold keys
	// it never declared, so their key sets are checked too.
	for _, row := range snap.Rows {
		for c := range row {
			if !want[c] {
				unexpected[c] = true
			}
		}
	}

	if len(missing) > 0 || len(unexpected) > 0 {
		return etlerr.New(etlerr.CodeDataShape,
			fmt.Errorf("snapshot %s: missing columns %v, unexpected columns %v",
				snap.TableName, sortedColumns(missing), sortedColumns(unexpected)))
	}
	return nil
}

func sortedColumns(set map[string]bool) []string {
	cols := make([]string, 0, len(set))
	for c := range set {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// SalesOrder is a typed sales_order source row. Timestamps are parsed at the
// boundary; the agreed dates are held as YYYY-MM-DD strings.
type SalesOrder struct {
	SalesOrderID             int64
	CreatedAt                time.Time
	LastUpdated              time.Time
	DesignID                 int64
	StaffID                  int64
	CounterpartyID           int64
	UnitsSold                int64
	UnitPrice                float64
	CurrencyID               int64
	AgreedDeliveryDate       string
	AgreedPaymentDate        string
	AgreedDeliveryLocationID int64
}

type Design struct {
	DesignID     int64
	DesignName   string
	FileLocation string
	FileName     string
}

type Address struct {
	AddressID    int64
	AddressLine1 string
	AddressLine2 *string
	District     *string
	City         string
	PostalCode   string
	Country      string
	Phone        string
}

type Counterparty struct {
	CounterpartyID        int64
	CounterpartyLegalName string
	LegalAddressID        int64
}

type Staff struct {
	StaffID      int64
	FirstName    string
	LastName     string
	DepartmentID int64
	EmailAddress string
}

type Department struct {
	DepartmentID   int64
	DepartmentName string
	Location       string
}

type Currency struct {
	CurrencyID   int64
	CurrencyCode string
}

// timestampLayouts covers the formats seen in raw snapshots: the ingestion
// codec's millisecond ISO form plus common fallbacks.
var timestampLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// parseDate truncates an ISO date/datetime string to its date component and
// validates it parses as a calendar date.
func parseDate(s string) (string, error) {
	if len(s) < 10 {
		return "", fmt.Errorf("unparseable date %q", s)
	}
	d := s[:10]
	if _, err := time.Parse("2006-01-02", d); err != nil {
		return "", fmt.Errorf("unparseable date %q", s)
	}
	return d, nil
}

func rowTimestamp(row table.Row, col string) (time.Time, error) {
	s, err := row.String(col)
	if err != nil {
		return time.Time{}, err
	}
	return parseTimestamp(s)
}

func rowDate(row table.Row, col string) (string, error) {
	s, err := row.String(col)
	if err != nil {
		return "", err
	}
	return parseDate(s)
}

// ParseSalesOrders parses the sales_order snapshot into typed rows,
// preserving input row order.
func ParseSalesOrders(snap *table.Snapshot) ([]SalesOrder, error) {
	if err := checkSchema(snap); err != nil {
		return nil, err
	}
	out := make([]SalesOrder, 0, len(snap.Rows))
	for i, row := range snap.Rows {
		so, err := parseSalesOrder(row)
		if err != nil {
			return nil, etlerr.New(etlerr.CodeDataShape, fmt.Errorf("sales_order row %d: %w", i, err))
		}
		out = append(out, so)
	}
	return out, nil
}

func parseSalesOrder(row table.Row) (SalesOrder, error) {
	var so SalesOrder
	var err error
	if so.SalesOrderID, err = row.Int("sales_order_id"); err != nil {
		return so, err
	}
	if so.CreatedAt, err = rowTimestamp(row, "created_at"); err != nil {
		return so, err
	}
	if so.LastUpdated, err = rowTimestamp(row, "last_updated"); err != nil {
		return so, err
	}
	if so.DesignID, err = row.Int("design_id"); err != nil {
		return so, err
	}
	if so.StaffID, err = row.Int("staff_id"); err != nil {
		return so, err
	}
	if so.CounterpartyID, err = row.Int("counterparty_id"); err != nil {
		return so, err
	}
	if so.UnitsSold, err = row.Int("units_sold"); err != nil {
		return so, err
	}
	if so.UnitPrice, err = row.Float("unit_price"); err != nil {
		return so, err
	}
	if so.CurrencyID, err = row.Int("currency_id"); err != nil {
		return so, err
	}
	if so.AgreedDeliveryDate, err = rowDate(row, "agreed_delivery_date"); err != nil {
		return so, err
	}
	if so.AgreedPaymentDate, err = rowDate(row, "agreed_payment_date"); err != nil {
		return so, err
	}
	if so.AgreedDeliveryLocationID, err = row.Int("agreed_delivery_location_id"); err != nil {
		return so, err
	}
	return so, nil
}

// ParseDesigns parses the design snapshot.
func ParseDesigns(snap *table.Snapshot) ([]Design, error) {
	if err := checkSchema(snap); err != nil {
		return nil, err
	}
	out := make([]Design, 0, len(snap.Rows))
	for i, row := range snap.Rows {
		var d Design
		var err error
		if d.DesignID, err = row.Int("design_id"); err == nil {
			if d.DesignName, err = row.String("design_name"); err == nil {
				if d.FileLocation, err = row.String("file_location"); err == nil {
					d.FileName, err = row.String("file_name")
				}
			}
		}
		if err != nil {
			return nil, etlerr.New(etlerr.CodeDataShape, fmt.Errorf("design row %d: %w", i, err))
		}
		out = append(out, d)
	}
	return out, nil
}

// ParseAddresses parses the address snapshot.
func ParseAddresses(snap *table.Snapshot) ([]Address, error) {
	if err := checkSchema(snap); err != nil {
		return nil, err
	}
	out := make([]Address, 0, len(snap.Rows))
	for i, row := range snap.Rows {
		a, err := parseAddress(row)
		if err != nil {
			return nil, etlerr.New(etlerr.CodeDataShape, fmt.Errorf("address row %d: %w", i, err))
		}
		out = append(out, a)
	}
	return out, nil
}

func parseAddress(row table.Row) (Address, error) {
	var a Address
	var err error
	if a.AddressID, err = row.Int("address_id"); err != nil {
		return a, err
	}
	if a.AddressLine1, err = row.String("address_line_1"); err != nil {
		return a, err
	}
	if a.AddressLine2, err = row.NullString("address_line_2"); err != nil {
		return a, err
	}
	if a.District, err = row.NullString("district"); err != nil {
		return a, err
	}
	if a.City, err = row.String("city"); err != nil {
		return a, err
	}
	if a.PostalCode, err = row.String("postal_code"); err != nil {
		return a, err
	}
	if a.Country, err = row.String("country"); err != nil {
		return a, err
	}
	if a.Phone, err = row.String("phone"); err != nil {
		return a, err
	}
	return a, nil
}

// ParseCounterparties parses the counterparty snapshot. Only the columns the
// counterparty dimension consumes are materialized.
func ParseCounterparties(snap *table.Snapshot) ([]Counterparty, error) {
	if err := checkSchema(snap); err != nil {
		return nil, err
	}
	out := make([]Counterparty, 0, len(snap.Rows))
	for i, row := range snap.Rows {
		var cp Counterparty
		var err error
		if cp.CounterpartyID, err = row.Int("counterparty_id"); err == nil {
			if cp.CounterpartyLegalName, err = row.String("counterparty_legal_name"); err == nil {
				cp.LegalAddressID, err = row.Int("legal_address_id")
			}
		}
		if err != nil {
			return nil, etlerr.New(etlerr.CodeDataShape, fmt.Errorf("counterparty row %d: %w", i, err))
		}
		out = append(out, cp)
	}
	return out, nil
}

// ParseStaff parses the staff snapshot.
func ParseStaff(snap *table.Snapshot) ([]Staff, error) {
	if err := checkSchema(snap); err != nil {
		return nil, err
	}
	out := make([]Staff, 0, len(snap.Rows))
	for i, row := range snap.Rows {
		var s Staff
		var err error
		if s.StaffID, err = row.Int("staff_id"); err == nil {
			if s.FirstName, err = row.String("first_name"); err == nil {
				if s.LastName, err = row.String("last_name"); err == nil {
					if s.DepartmentID, err = row.Int("department_id"); err == nil {
						s.EmailAddress, err = row.String("email_address")
					}
				}
			}
		}
		if err != nil {
			return nil, etlerr.New(etlerr.CodeDataShape, fmt.Errorf("staff row %d: %w", i, err))
		}
		out = append(out, s)
	}
	return out, nil
}

// ParseDepartments parses the department snapshot.
func ParseDepartments(snap *table.Snapshot) ([]Department, error) {
	if err := checkSchema(snap); err != nil {
		return nil, err
	}
	out := make([]Department, 0, len(snap.Rows))
	for i, row := range snap.Rows {
		var d Department
		var err error
		if d.DepartmentID, err = row.Int("department_id"); err == nil {
			if d.DepartmentName, err = row.String("department_name"); err == nil {
				d.Location, err = row.String("location")
			}
		}
		if err != nil {
			return nil, etlerr.New(etlerr.CodeDataShape, fmt.Errorf("department row %d: %w", i, err))
		}
		out = append(out, d)
	}
	return out, nil
}

// ParseCurrencies parses the currency snapshot.
func ParseCurrencies(snap *table.Snapshot) ([]Currency, error) {
	if err := checkSchema(snap); err != nil {
		return nil, err
	}
	out := make([]Currency, 0, len(snap.Rows))
	for i, row := range snap.Rows {
		var c Currency
		var err error
		if c.CurrencyID, err = row.Int("currency_id"); err == nil {
			c.CurrencyCode, err = row.String("currency_code")
		}
		if err != nil {
			return nil, etlerr.New(etlerr.CodeDataShape, fmt.Errorf("currency row %d: %w", i, err))
		}
		out = append(out, c)
	}
	return out, nil
}
