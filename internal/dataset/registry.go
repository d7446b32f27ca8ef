package dataset

import (
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/brreg-matcher/internal/model"
	"github.com/sells-group/brreg-matcher/internal/orgnr"
)

// Enhetsregisteret export column names.
const (
	ColRegOrgNumber           = "organisasjonsnummer"
	ColRegName                = "navn"
	ColRegIndustryCode        = "naeringskode1.kode"
	ColRegIndustryDescription = "naeringskode1.beskrivelse"
)

var registryColumns = []string{
	ColRegOrgNumber,
	ColRegName,
	ColRegIndustryCode,
	ColRegIndustryDescription,
}

type registryRecord struct {
	OrgNumber           string `csv:"organisasjonsnummer"`
	Name                string `csv:"navn"`
	IndustryCode        string `csv:"naeringskode1.kode"`
	IndustryDescription string `csv:"naeringskode1.beskrivelse"`
}

// LoadRegistry reads an Enhetsregisteret export. All four columns are
// required. Rows without an organization number are skipped and repeated
// organization numbers keep their first row.
func LoadRegistry(r io.Reader, format Format) ([]model.RegistryCompany, Stats, error) {
	recs, skipped, err := decodeAll[registryRecord](r, format, "registry", registryColumns)
	if err != nil {
		return nil, Stats{}, err
	}

	stats := Stats{Skipped: skipped}
	seen := make(map[string]bool, len(recs))
	out := make([]model.RegistryCompany, 0, len(recs))
	for _, rec := range recs {
		num := orgnr.Clean(rec.OrgNumber)
		if num == "" {
			stats.Skipped++
			continue
		}
		if seen[num] {
			stats.Duplicates++
			continue
		}
		seen[num] = true
		out = append(out, model.RegistryCompany{
			OrgNumber:           num,
			Name:                strings.TrimSpace(rec.Name),
			IndustryCode:        strings.TrimSpace(rec.IndustryCode),
			IndustryDescription: strings.TrimSpace(rec.IndustryDescription),
		})
	}
	stats.Rows = len(out)

	zap.L().Debug("dataset: registry loaded",
		zap.Int("rows", stats.Rows),
		zap.Int("skipped", stats.Skipped),
		zap.Int("duplicates", stats.Duplicates),
	)
	return out, stats, nil
}

// LoadRegistryFile opens path and calls LoadRegistry with the format
// implied by its extension.
func LoadRegistryFile(path string) ([]model.RegistryCompany, Stats, error) {
	f, format, err := openFile(path)
	if err != nil {
		return nil, Stats{}, err
	}
	defer f.Close() //nolint:errcheck
	return LoadRegistry(f, format)
}
