package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// MatchStage identifies the rule tier that paired a CRM row with a registry row.
type MatchStage string

const (
	StageOrgNumber           MatchStage = "org_number"
	StageExactName           MatchStage = "exact_name"
	StageNameNoSuffix        MatchStage = "name_no_suffix"
	StageNameNoSuffixNoNoise MatchStage = "name_no_suffix_no_noise"
	StageNone                MatchStage = "none"
)

// Stages lists every stage in priority order, StageNone last.
var Stages = []MatchStage{
	StageOrgNumber,
	StageExactName,
	StageNameNoSuffix,
	StageNameNoSuffixNoNoise,
	StageNone,
}

var stageLabels = map[MatchStage]string{
	StageOrgNumber:           "Org. number",
	StageExactName:           "Exact name",
	StageNameNoSuffix:        "Name without legal suffix",
	StageNameNoSuffixNoNoise: "Name without suffix and qualifiers",
	StageNone:                "No match",
}

// Label returns a human-readable stage name.
func (s MatchStage) Label() string {
	if l, ok := stageLabels[s]; ok {
		return l
	}
	return string(s)
}

// Priority returns the 1-based rank of the stage; lower wins. Unknown
// stages rank after StageNone.
func (s MatchStage) Priority() int {
	for i, st := range Stages {
		if st == s {
			return i + 1
		}
	}
	return len(Stages) + 1
}

// Matched reports whether the stage represents a successful match.
func (s MatchStage) Matched() bool {
	return s != StageNone && s != ""
}

// ParseMatchStage accepts a stage name, case-insensitively.
func ParseMatchStage(s string) (MatchStage, error) {
	v := MatchStage(strings.ToLower(strings.TrimSpace(s)))
	for _, st := range Stages {
		if st == v {
			return st, nil
		}
	}
	return "", eris.Errorf("model: unknown match stage %q", s)
}

// MatchResult pairs a CRM row with at most one registry row.
type MatchResult struct {
	CRM      CRMCompany       `json:"crm"`
	Registry *RegistryCompany `json:"registry,omitempty"`
	Stage    MatchStage       `json:"stage"`

	// Candidates is the number of registry rows that shared the matched key.
	// The first one in dataset order is the one in Registry.
	Candidates int `json:"candidates"`
}

// Ambiguous reports whether more than one registry row qualified.
func (m MatchResult) Ambiguous() bool {
	return m.Candidates > 1
}
