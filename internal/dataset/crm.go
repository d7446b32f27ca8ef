package dataset

import (
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/brreg-matcher/internal/model"
	"github.com/sells-group/brreg-matcher/internal/orgnr"
)

// CRM export column names.
const (
	ColCRMName         = "Company name"
	ColCRMOrgNumber    = "Organisasjonsnummer"
	ColCRMRecordID     = "Record ID"
	ColCRMLastActivity = "Last Activity Date"
)

type crmRecord struct {
	Name         string `csv:"Company name"`
	OrgNumber    string `csv:"Organisasjonsnummer"`
	RecordID     string `csv:"Record ID"`
	LastActivity string `csv:"Last Activity Date"`
}

// LoadCRM reads a CRM export. Only the company name column is required.
// Rows repeating an earlier Record ID are dropped; fully blank rows are
// skipped. Organization numbers are reduced to digits.
func LoadCRM(r io.Reader, format Format) ([]model.CRMCompany, Stats, error) {
	recs, skipped, err := decodeAll[crmRecord](r, format, "crm", []string{ColCRMName})
	if err != nil {
		return nil, Stats{}, err
	}

	stats := Stats{Skipped: skipped}
	seen := make(map[string]bool)
	out := make([]model.CRMCompany, 0, len(recs))
	for _, rec := range recs {
		c := model.CRMCompany{
			Name:         strings.TrimSpace(rec.Name),
			OrgNumber:    orgnr.Clean(rec.OrgNumber),
			RecordID:     strings.TrimSpace(rec.RecordID),
			LastActivity: parseActivity(rec.LastActivity),
		}
		if c.Name == "" && c.OrgNumber == "" && c.RecordID == "" {
			stats.Skipped++
			continue
		}
		if c.RecordID != "" {
			if seen[c.RecordID] {
				stats.Duplicates++
				continue
			}
			seen[c.RecordID] = true
		}
		out = append(out, c)
	}
	stats.Rows = len(out)

	zap.L().Debug("dataset: crm loaded",
		zap.Int("rows", stats.Rows),
		zap.Int("skipped", stats.Skipped),
		zap.Int("duplicates", stats.Duplicates),
	)
	return out, stats, nil
}

// LoadCRMFile opens path and calls LoadCRM with the format implied by its
// extension.
func LoadCRMFile(path string) ([]model.CRMCompany, Stats, error) {
	f, format, err := openFile(path)
	if err != nil {
		return nil, Stats{}, err
	}
	defer f.Close() //nolint:errcheck
	return LoadCRM(f, format)
}

var activityLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04",
	"01/02/2006",
	"02.01.2006",
}

// parseActivity accepts the date layouts seen in HubSpot exports and
// returns nil for anything else.
func parseActivity(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range activityLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
