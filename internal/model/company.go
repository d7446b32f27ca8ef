// Package model defines the records flowing through the matcher: the two
// input datasets, match results, enrichment figures and the joined rows.
package model

import "time"

// CRMCompany is one row of the CRM export.
type CRMCompany struct {
	Name         string     `json:"name"`
	OrgNumber    string     `json:"org_number,omitempty"` // digits only, "" when absent
	RecordID     string     `json:"record_id,omitempty"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

// HasOrgNumber reports whether the CRM row carries an organization number.
func (c CRMCompany) HasOrgNumber() bool {
	return c.OrgNumber != ""
}

// RegistryCompany is one row of the Enhetsregisteret export. OrgNumber is
// unique within a loaded dataset.
type RegistryCompany struct {
	OrgNumber           string `json:"org_number"`
	Name                string `json:"name"`
	IndustryCode        string `json:"industry_code"`
	IndustryDescription string `json:"industry_description"`
}
