package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/brreg-matcher/internal/model"
)

// SheetName is the worksheet written by WriteXLSX.
const SheetName = "Matches"

// utf8BOM makes spreadsheet apps detect UTF-8 in CSV downloads.
const utf8BOM = "\ufeff"

// record is one export line. Field order is column order.
type record struct {
	CRMName             string `csv:"CRM name"`
	CRMRecordID         string `csv:"CRM record ID"`
	CRMOrgNumber        string `csv:"CRM org number"`
	LastActivity        string `csv:"Last activity"`
	RegistryName        string `csv:"Registry name"`
	OrgNumber           string `csv:"Org number"`
	Stage               string `csv:"Match stage"`
	Ambiguous           string `csv:"Ambiguous"`
	IndustryCode        string `csv:"Industry code"`
	IndustryDescription string `csv:"Industry description"`
	Employees           *int   `csv:"Employees"`
	Revenue             string `csv:"Revenue (MNOK)"`
	Profit              string `csv:"Profit before tax (MNOK)"`
}

// Columns returns the export header in order.
func Columns() []string {
	h, err := csvutil.Header(record{}, "csv")
	if err != nil {
		panic(err)
	}
	return h
}

func toRecord(r model.Row) record {
	rec := record{
		CRMName:      r.Match.CRM.Name,
		CRMRecordID:  r.Match.CRM.RecordID,
		CRMOrgNumber: r.Match.CRM.OrgNumber,
		Stage:        string(r.Match.Stage),
		Employees:    r.Enrichment.Employees,
	}
	if t := r.Match.CRM.LastActivity; t != nil {
		rec.LastActivity = t.Format("2006-01-02")
	}
	if reg := r.Match.Registry; reg != nil {
		rec.RegistryName = reg.Name
		rec.OrgNumber = reg.OrgNumber
		rec.IndustryCode = reg.IndustryCode
		rec.IndustryDescription = reg.IndustryDescription
	}
	if r.Match.Ambiguous() {
		rec.Ambiguous = "yes"
	}
	if v := r.Enrichment.Revenue; v != nil {
		rec.Revenue = strconv.FormatFloat(*v, 'f', -1, 64)
	}
	if v := r.Enrichment.Profit; v != nil {
		rec.Profit = strconv.FormatFloat(*v, 'f', -1, 64)
	}
	return rec
}

// WriteCSV writes rows as UTF-8 CSV with a byte-order mark. Absent values
// are empty fields.
func WriteCSV(w io.Writer, rows []model.Row) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return eris.Wrap(err, "report: write bom")
	}

	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if err := enc.EncodeHeader(record{}); err != nil {
		return eris.Wrap(err, "report: write header")
	}
	for _, r := range rows {
		if err := enc.Encode(toRecord(r)); err != nil {
			return eris.Wrap(err, "report: write row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "report: flush csv")
}

// WriteXLSX writes rows to a single "Matches" worksheet. Employees, revenue
// and profit are numeric cells; absent values are empty cells.
func WriteXLSX(w io.Writer, rows []model.Row) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range Columns() {
		header.AddCell().SetString(col)
	}

	for _, r := range rows {
		rec := toRecord(r)
		row := sheet.AddRow()
		for _, s := range []string{
			rec.CRMName, rec.CRMRecordID, rec.CRMOrgNumber, rec.LastActivity,
			rec.RegistryName, rec.OrgNumber, rec.Stage, rec.Ambiguous,
			rec.IndustryCode, rec.IndustryDescription,
		} {
			row.AddCell().SetString(s)
		}

		emp := row.AddCell()
		if rec.Employees != nil {
			emp.SetInt(*rec.Employees)
		}
		for _, v := range []*float64{r.Enrichment.Revenue, r.Enrichment.Profit} {
			c := row.AddCell()
			if v != nil {
				c.SetFloat(*v)
			}
		}
	}

	return eris.Wrap(f.Write(w), "report: write xlsx")
}
