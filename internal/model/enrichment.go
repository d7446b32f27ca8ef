package model

// Enrichment holds registry API figures for one organization number. Nil
// fields were unavailable.
type Enrichment struct {
	OrgNumber  string   `json:"org_number"`
	Employees  *int     `json:"employees,omitempty"`
	Revenue    *float64 `json:"revenue_mnok,omitempty"` // MNOK
	Profit     *float64 `json:"profit_mnok,omitempty"`  // MNOK, before tax
	FiscalYear *int     `json:"fiscal_year,omitempty"`
}

// Row is a match result joined with its enrichment. It is what the
// report layer filters, renders and exports.
type Row struct {
	Match      MatchResult `json:"match"`
	Enrichment Enrichment  `json:"enrichment"`
}

// OrgNumber returns the matched registry org number, falling back to the
// CRM one.
func (r Row) OrgNumber() string {
	if r.Match.Registry != nil && r.Match.Registry.OrgNumber != "" {
		return r.Match.Registry.OrgNumber
	}
	return r.Match.CRM.OrgNumber
}

// IndustryCode returns the registry industry code, or "" for unmatched rows.
func (r Row) IndustryCode() string {
	if r.Match.Registry == nil {
		return ""
	}
	return r.Match.Registry.IndustryCode
}
