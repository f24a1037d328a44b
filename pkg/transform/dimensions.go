package transform

// JoinReport makes the silent inner-join drop semantics observable: callers
// can see drop counts instead of inferring them from row-count deltas.
type JoinReport struct {
	Dimension   string  `json:"dimension"`
	Matched     int     `json:"matched"`
	Dropped     int     `json:"dropped"`
	DroppedKeys []int64 `json:"dropped_keys,omitempty"`
}

// BuildDesignDimension projects the design source rows; key design_id.
func BuildDesignDimension(designs []Design) []DesignRow {
	rows := make([]DesignRow, 0, len(designs))
	for _, d := range designs {
		rows = append(rows, DesignRow{
			DesignID:     d.DesignID,
			DesignName:   d.DesignName,
			FileLocation: d.FileLocation,
			FileName:     d.FileName,
		})
	}
	return rows
}

// BuildLocationDimension projects the address source rows; key address_id.
func BuildLocationDimension(addresses []Address) []LocationRow {
	rows := make([]LocationRow, 0, len(addresses))
	for _, a := range addresses {
		rows = append(rows, LocationRow{
			AddressID:    a.AddressID,
			AddressLine1: a.AddressLine1,
			AddressLine2: copyNullable(a.AddressLine2),
			District:     copyNullable(a.District),
			City:         a.City,
			PostalCode:   a.PostalCode,
			Country:      a.Country,
			Phone:        a.Phone,
		})
	}
	return rows
}

// BuildCounterpartyDimension inner-joins counterparty rows to the location
// dimension on legal_address_id = address_id, prefixing the location columns
// with counterparty_legal_ and dropping the join key. Counterparties without
// a resolvable address are dropped and reported, not errored.
func BuildCounterpartyDimension(counterparties []Counterparty, locations []LocationRow) ([]CounterpartyRow, JoinReport) {
	byAddress := make(map[int64]LocationRow, len(locations))
	for _, loc := range locations {
		byAddress[loc.AddressID] = loc
	}

	report := JoinReport{Dimension: TargetDimCounterparty}
	rows := make([]CounterpartyRow, 0, len(counterparties))
	for _, cp := range counterparties {
		loc, ok := byAddress[cp.LegalAddressID]
		if !ok {
			report.Dropped++
			report.DroppedKeys = append(report.DroppedKeys, cp.CounterpartyID)
			continue
		}
		report.Matched++
		rows = append(rows, CounterpartyRow{
			CounterpartyID:                cp.CounterpartyID,
			CounterpartyLegalName:         cp.CounterpartyLegalName,
			CounterpartyLegalAddressLine1: loc.AddressLine1,
			CounterpartyLegalAddressLine2: copyNullable(loc.AddressLine2),
			CounterpartyLegalDistrict:     copyNullable(loc.District),
			CounterpartyLegalCity:         loc.City,
			CounterpartyLegalPostalCode:   loc.PostalCode,
			CounterpartyLegalCountry:      loc.Country,
			CounterpartyLegalPhoneNumber:  loc.Phone,
		})
	}
	return rows, report
}

// BuildStaffDimension inner-joins staff to department on department_id; staff
// rows without a resolvable department are dropped and reported.
func BuildStaffDimension(staff []Staff, departments []Department) ([]StaffRow, JoinReport) {
	byID := make(map[int64]Department, len(departments))
	for _, d := range departments {
		byID[d.DepartmentID] = d
	}

	report := JoinReport{Dimension: TargetDimStaff}
	rows := make([]StaffRow, 0, len(staff))
	for _, s := range staff {
		dept, ok := byID[s.DepartmentID]
		if !ok {
			report.Dropped++
			report.DroppedKeys = append(report.DroppedKeys, s.StaffID)
			continue
		}
		report.Matched++
		rows = append(rows, StaffRow{
			StaffID:        s.StaffID,
			FirstName:      s.FirstName,
			LastName:       s.LastName,
			DepartmentName: dept.DepartmentName,
			Location:       dept.Location,
			EmailAddress:   s.EmailAddress,
		})
	}
	return rows, report
}

// currencyNames is the fixed code-to-display-name lookup. An unlisted code
// yields a null name, not an error.
var currencyNames = map[string]string{
	"GBP": "Great British Pounds",
	"USD": "United States Dollars",
	"EUR": "Euro",
}

// BuildCurrencyDimension enriches currency rows with a display name.
func BuildCurrencyDimension(currencies []Currency) []CurrencyRow {
	rows := make([]CurrencyRow, 0, len(currencies))
	for _, c := range currencies {
		row := CurrencyRow{
			CurrencyID:   c.CurrencyID,
			CurrencyCode: c.CurrencyCode,
		}
		if name, ok := currencyNames[c.CurrencyCode]; ok {
			row.CurrencyName = &name
		}
		rows = append(rows, row)
	}
	return rows
}

// copyNullable keeps output rows independent of their inputs.
func copyNullable(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
