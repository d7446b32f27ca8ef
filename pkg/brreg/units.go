package brreg

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Unit is the subset of an Enhetsregisteret entry the matcher uses.
type Unit struct {
	OrgNumber          string `json:"organisasjonsnummer"`
	Name               string `json:"navn"`
	Employees          *int   `json:"-"`
	IndustryCode       string `json:"-"`
	Industry           string `json:"-"`
	OrgForm            string `json:"-"`
	Municipality       string `json:"-"`
	MunicipalityNumber string `json:"-"`
	Bankrupt           bool   `json:"konkurs"`
}

type unitWire struct {
	OrgNumber     string          `json:"organisasjonsnummer"`
	Name          string          `json:"navn"`
	Employees     json.RawMessage `json:"antallAnsatte"`
	Bankrupt      bool            `json:"konkurs"`
	Naeringskode1 *struct {
		Code        string `json:"kode"`
		Description string `json:"beskrivelse"`
	} `json:"naeringskode1"`
	OrgForm *struct {
		Code string `json:"kode"`
	} `json:"organisasjonsform"`
	BusinessAddress *struct {
		Municipality       string `json:"kommune"`
		MunicipalityNumber string `json:"kommunenummer"`
	} `json:"forretningsadresse"`
}

func (w unitWire) unit() (*Unit, error) {
	u := &Unit{
		OrgNumber: w.OrgNumber,
		Name:      w.Name,
		Bankrupt:  w.Bankrupt,
	}
	if w.Naeringskode1 != nil {
		u.IndustryCode = w.Naeringskode1.Code
		u.Industry = w.Naeringskode1.Description
	}
	if w.OrgForm != nil {
		u.OrgForm = w.OrgForm.Code
	}
	if a := w.BusinessAddress; a != nil {
		u.Municipality = a.Municipality
		u.MunicipalityNumber = a.MunicipalityNumber
	}
	n, err := parseCount(w.Employees)
	if err != nil {
		return nil, eris.Wrapf(err, "brreg: antallAnsatte for %s", w.OrgNumber)
	}
	u.Employees = n
	return u, nil
}

func (c *httpClient) Unit(ctx context.Context, orgNumber string) (*Unit, error) {
	org, err := checkOrgNumber(orgNumber)
	if err != nil {
		return nil, err
	}

	var w unitWire
	found, err := c.getJSON(ctx, c.unitsURL+"/"+org, &w)
	if err != nil || !found {
		return nil, err
	}
	if w.OrgNumber == "" {
		w.OrgNumber = org
	}
	return w.unit()
}

func (c *httpClient) Employees(ctx context.Context, orgNumber string) (*int, error) {
	u, err := c.Unit(ctx, orgNumber)
	if err != nil || u == nil {
		return nil, err
	}
	return u.Employees, nil
}

// parseCount accepts a JSON number, a numeric string, null or nothing.
func parseCount(raw json.RawMessage) (*int, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil, nil
	}
	s = strings.Trim(s, `"`)
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "parse count %q", s)
	}
	n := int(f)
	return &n, nil
}
