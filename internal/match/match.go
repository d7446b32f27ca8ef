// Package match pairs CRM rows with registry rows using four fallback stages:
// organization number, exact name, name without legal suffix, and name
// without legal suffix and qualifier words.
package match

import (
	"go.uber.org/zap"

	"github.com/sells-group/brreg-matcher/internal/model"
	"github.com/sells-group/brreg-matcher/internal/normalize"
)

// nameStages are the name-based stages in priority order.
var nameStages = []model.MatchStage{
	model.StageExactName,
	model.StageNameNoSuffix,
	model.StageNameNoSuffixNoNoise,
}

// Index maps each stage's key to registry positions in dataset order. It is
// built once and read-only afterwards.
type Index struct {
	registry []model.RegistryCompany
	keys     map[model.MatchStage]map[string][]int
}

// NewIndex builds the per-stage lookup tables for registry. Empty keys are
// not indexed, so a blank name never matches.
func NewIndex(registry []model.RegistryCompany, n *normalize.Normalizer) *Index {
	idx := &Index{
		registry: registry,
		keys:     make(map[model.MatchStage]map[string][]int, len(model.Stages)),
	}
	for _, st := range append([]model.MatchStage{model.StageOrgNumber}, nameStages...) {
		idx.keys[st] = make(map[string][]int, len(registry))
	}

	for i, r := range registry {
		idx.add(model.StageOrgNumber, r.OrgNumber, i)
		f := n.Normalize(r.Name)
		idx.add(model.StageExactName, f.Exact, i)
		idx.add(model.StageNameNoSuffix, f.NoSuffix, i)
		idx.add(model.StageNameNoSuffixNoNoise, f.NoSuffixNoNoise, i)
	}
	return idx
}

func (idx *Index) add(st model.MatchStage, key string, pos int) {
	if key == "" {
		return
	}
	idx.keys[st][key] = append(idx.keys[st][key], pos)
}

// Lookup returns the registry positions sharing key for stage.
func (idx *Index) Lookup(st model.MatchStage, key string) []int {
	if key == "" {
		return nil
	}
	return idx.keys[st][key]
}

// Len returns the number of indexed registry rows.
func (idx *Index) Len() int {
	return len(idx.registry)
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithNormalizer sets the name normalizer. Default: normalize.Default().
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(m *Matcher) {
		m.norm = n
	}
}

// WithExclusive makes MatchAll pair each registry row with at most one CRM
// row: a registry row claimed by an earlier CRM row is passed over.
func WithExclusive(exclusive bool) Option {
	return func(m *Matcher) {
		m.exclusive = exclusive
	}
}

// Matcher runs the staged match against one registry dataset.
type Matcher struct {
	idx       *Index
	norm      *normalize.Normalizer
	exclusive bool
}

// New indexes registry and returns a Matcher over it.
func New(registry []model.RegistryCompany, opts ...Option) *Matcher {
	m := &Matcher{norm: normalize.Default()}
	for _, opt := range opts {
		opt(m)
	}
	m.idx = NewIndex(registry, m.norm)
	return m
}

// Match runs the stages for one CRM row and returns the first hit. Ties go
// to the earliest registry row.
func (m *Matcher) Match(c model.CRMCompany) model.MatchResult {
	return m.match(c, nil)
}

// MatchAll matches every CRM row, preserving order.
func (m *Matcher) MatchAll(crm []model.CRMCompany) []model.MatchResult {
	var claimed map[int]bool
	if m.exclusive {
		claimed = make(map[int]bool)
	}

	counts := make(map[model.MatchStage]int, len(model.Stages))
	out := make([]model.MatchResult, len(crm))
	for i, c := range crm {
		out[i] = m.match(c, claimed)
		counts[out[i].Stage]++
	}

	zap.L().Info("match: complete",
		zap.Int("crm_rows", len(crm)),
		zap.Int("registry_rows", m.idx.Len()),
		zap.Int(string(model.StageOrgNumber), counts[model.StageOrgNumber]),
		zap.Int(string(model.StageExactName), counts[model.StageExactName]),
		zap.Int(string(model.StageNameNoSuffix), counts[model.StageNameNoSuffix]),
		zap.Int(string(model.StageNameNoSuffixNoNoise), counts[model.StageNameNoSuffixNoNoise]),
		zap.Int(string(model.StageNone), counts[model.StageNone]),
	)
	return out
}

func (m *Matcher) match(c model.CRMCompany, claimed map[int]bool) model.MatchResult {
	if c.HasOrgNumber() {
		if res, ok := m.try(c, model.StageOrgNumber, c.OrgNumber, claimed); ok {
			return res
		}
	}

	f := m.norm.Normalize(c.Name)
	keys := map[model.MatchStage]string{
		model.StageExactName:           f.Exact,
		model.StageNameNoSuffix:        f.NoSuffix,
		model.StageNameNoSuffixNoNoise: f.NoSuffixNoNoise,
	}
	for _, st := range nameStages {
		if res, ok := m.try(c, st, keys[st], claimed); ok {
			return res
		}
	}

	return model.MatchResult{CRM: c, Stage: model.StageNone}
}

func (m *Matcher) try(c model.CRMCompany, st model.MatchStage, key string, claimed map[int]bool) (model.MatchResult, bool) {
	positions := m.idx.Lookup(st, key)
	first, free := -1, 0
	for _, pos := range positions {
		if claimed[pos] {
			continue
		}
		if first < 0 {
			first = pos
		}
		free++
	}
	if first < 0 {
		return model.MatchResult{}, false
	}
	if claimed != nil {
		claimed[first] = true
	}
	reg := m.idx.registry[first]
	return model.MatchResult{
		CRM:        c,
		Registry:   &reg,
		Stage:      st,
		Candidates: free,
	}, true
}
