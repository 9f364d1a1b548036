package mapping

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pricing-cli/internal/model"
	"github.com/sells-group/pricing-cli/internal/table"
)

// DefaultSimilarityThreshold is the minimum signature score for a rule set
// to be picked without a hint.
const DefaultSimilarityThreshold = 0.6

// MappedRow holds the field values of one surviving input row.
type MappedRow struct {
	SourceRow int // 1-based data row number in the input
	Values    map[Field]string
}

// Get returns the value of f, or "" when it is null.
func (r MappedRow) Get(f Field) string {
	return r.Values[f]
}

// MappedTable is the result of applying a rule set to an input table.
type MappedTable struct {
	RuleSet  string
	Score    float64
	Rows     []MappedRow
	Dropped  []model.DroppedRow
	Unmapped []string // input columns no rule read
}

// Score is the signature match of one rule set against an input.
type Score struct {
	RuleSet string
	Score   float64
}

// Mapper selects and applies rule sets.
type Mapper struct {
	sets      []*RuleSet
	threshold float64
}

// NewMapper creates a Mapper with the built-in rule sets registered.
// A non-positive threshold uses DefaultSimilarityThreshold.
func NewMapper(threshold float64) *Mapper {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	m := &Mapper{threshold: threshold}
	for _, rs := range Builtins() {
		if err := rs.Validate(); err != nil {
			panic(err) // built-ins are static
		}
		m.sets = append(m.sets, rs)
	}
	return m
}

// Register adds rule sets. A rule set replaces a registered one with the
// same name in place; new names are registered ahead of existing ones so
// they win score ties.
func (m *Mapper) Register(sets ...*RuleSet) error {
	var added []*RuleSet
	for _, rs := range sets {
		if err := rs.Validate(); err != nil {
			return err
		}
		if i := m.indexOf(rs.Name); i >= 0 {
			m.sets[i] = rs
			continue
		}
		added = append(added, rs)
	}
	m.sets = append(added, m.sets...)
	return nil
}

// RuleSets returns the registered rule sets in priority order.
func (m *Mapper) RuleSets() []*RuleSet {
	return append([]*RuleSet(nil), m.sets...)
}

// Lookup returns the rule set with the given name.
func (m *Mapper) Lookup(name string) (*RuleSet, bool) {
	if i := m.indexOf(name); i >= 0 {
		return m.sets[i], true
	}
	return nil, false
}

func (m *Mapper) indexOf(name string) int {
	for i, rs := range m.sets {
		if strings.EqualFold(rs.Name, name) {
			return i
		}
	}
	return -1
}

// Scores returns the signature score of every rule set, best first. Equal
// scores keep registration order.
func (m *Mapper) Scores(columns []string) []Score {
	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[model.NormalizeHeader(c)] = true
	}

	out := make([]Score, len(m.sets))
	for i, rs := range m.sets {
		out[i] = Score{RuleSet: rs.Name, Score: signatureScore(rs.Signature, present)}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func signatureScore(signature []string, present map[string]bool) float64 {
	if len(signature) == 0 {
		return 0
	}
	hits := 0
	for _, h := range signature {
		if present[model.NormalizeHeader(h)] {
			hits++
		}
	}
	return float64(hits) / float64(len(signature))
}

// HeaderScore rates row as a header line by the best signature score of
// any registered rule set. It satisfies table.HeaderScorer.
func (m *Mapper) HeaderScore(row []string) float64 {
	scores := m.Scores(row)
	if len(scores) == 0 {
		return 0
	}
	return scores[0].Score
}

// Select picks the rule set for an input. A non-empty hint names the rule
// set directly.
func (m *Mapper) Select(columns []string, hint string) (*RuleSet, float64, error) {
	if hint != "" {
		rs, ok := m.Lookup(hint)
		if !ok {
			return nil, 0, eris.Errorf("mapping: unknown rule set %q", hint)
		}
		present := make(map[string]bool, len(columns))
		for _, c := range columns {
			present[model.NormalizeHeader(c)] = true
		}
		return rs, signatureScore(rs.Signature, present), nil
	}

	scores := m.Scores(columns)
	if len(scores) == 0 || scores[0].Score < m.threshold {
		best := Score{}
		if len(scores) > 0 {
			best = scores[0]
		}
		return nil, best.Score, model.NewError(model.KindUnrecognizedSourceFormat, "no rule set matches the input headers", nil).
			With("headers", strings.Join(columns, ", ")).
			With("best_rule_set", best.RuleSet).
			With("best_score", best.Score).
			With("threshold", m.threshold)
	}
	rs, _ := m.Lookup(scores[0].RuleSet)
	return rs, scores[0].Score, nil
}

// Map selects a rule set and applies it to every row of input.
func (m *Mapper) Map(input *table.Table, hint string) (*MappedTable, error) {
	rs, score, err := m.Select(input.Columns, hint)
	if err != nil {
		return nil, err
	}
	out := Apply(rs, input)
	out.Score = score

	zap.L().Info("mapping: applied rule set",
		zap.String("rule_set", rs.Name),
		zap.Float64("score", score),
		zap.Int("rows_in", input.Len()),
		zap.Int("rows_mapped", len(out.Rows)),
		zap.Int("rows_dropped", len(out.Dropped)),
		zap.Strings("unmapped_columns", out.Unmapped),
	)
	return out, nil
}

// Apply maps input with rs. Rows failing a filter or carrying a term
// outside model.TargetTerms are dropped.
func Apply(rs *RuleSet, input *table.Table) *MappedTable {
	h := newHeaderIndex(input.Columns)
	used := make(map[int]bool)

	type resolvedFilter struct {
		col    int
		equals map[string]bool
	}
	var filters []resolvedFilter
	for _, f := range rs.Filters {
		c := h.find(f.Candidates, f.Contains)
		if c < 0 {
			continue
		}
		used[c] = true
		eq := make(map[string]bool, len(f.Equals))
		for _, v := range f.Equals {
			eq[strings.ToLower(strings.TrimSpace(v))] = true
		}
		filters = append(filters, resolvedFilter{col: c, equals: eq})
	}

	fields := make(map[Field]*resolvedRule, len(rs.Fields))
	for f, r := range rs.Fields {
		fields[f] = resolve(r, h, used)
	}

	out := &MappedTable{RuleSet: rs.Name}
	for i, row := range input.Rows {
		sourceRow := i + 1
		if table.IsBlank(row) {
			continue
		}

		keep := true
		for _, f := range filters {
			v := ""
			if f.col < len(row) {
				v = row[f.col]
			}
			if !f.equals[strings.ToLower(strings.TrimSpace(v))] {
				out.Dropped = append(out.Dropped, model.DroppedRow{SourceRow: sourceRow, Reason: model.DropFiltered, Value: v})
				keep = false
				break
			}
		}
		if !keep {
			continue
		}

		values := make(map[Field]string, len(fields)+len(rs.Constants))
		for f, r := range fields {
			if v := r.value(row); v != "" {
				values[f] = v
			}
		}
		for f, v := range rs.Constants {
			if values[f] == "" && v != "" {
				values[f] = v
			}
		}

		rawTerm := values[FieldTerm]
		term, ok := parseTerm(rawTerm)
		if !ok || !model.TargetTerms[term] {
			out.Dropped = append(out.Dropped, model.DroppedRow{SourceRow: sourceRow, Reason: model.DropInvalidTerm, Value: rawTerm})
			continue
		}
		values[FieldTerm] = termText(rawTerm)

		if rs.multiplier.Valid {
			if p, ok := ParseNumber(values[FieldDailyNoRUC]); ok {
				values[FieldDailyNoRUC] = p.Mul(rs.multiplier.Decimal).String()
			}
		}

		out.Rows = append(out.Rows, MappedRow{SourceRow: sourceRow, Values: values})
	}

	for i, c := range input.Columns {
		if !used[i] {
			out.Unmapped = append(out.Unmapped, c)
		}
	}
	return out
}

type resolvedRule struct {
	col       int
	transform transformFunc
	fallback  *resolvedRule
}

func resolve(r Rule, h *headerIndex, used map[int]bool) *resolvedRule {
	c := h.find(r.Candidates, r.Contains)
	if c < 0 && r.Index != nil && *r.Index < len(h.columns) {
		c = *r.Index
	}
	if c >= 0 {
		used[c] = true
	}
	rr := &resolvedRule{col: c, transform: transforms[r.Transform]}
	if r.Fallback != nil {
		rr.fallback = resolve(*r.Fallback, h, used)
	}
	return rr
}

func (r *resolvedRule) value(row []string) string {
	v := ""
	if r.col >= 0 && r.col < len(row) && strings.TrimSpace(row[r.col]) != "" {
		v = r.transform(row[r.col])
	}
	if v == "" && r.fallback != nil {
		return r.fallback.value(row)
	}
	return v
}

type headerIndex struct {
	columns []string
	norm    []string
	exact   map[string]int
}

func newHeaderIndex(columns []string) *headerIndex {
	h := &headerIndex{
		columns: columns,
		norm:    make([]string, len(columns)),
		exact:   make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		n := model.NormalizeHeader(c)
		h.norm[i] = n
		if _, dup := h.exact[n]; !dup && n != "" {
			h.exact[n] = i
		}
	}
	return h
}

// find returns the column for the first candidate with an exact normalized
// match. With contains set, a second pass walks the columns in order and
// takes the first whose normalized header contains any candidate.
func (h *headerIndex) find(candidates []string, contains bool) int {
	for _, c := range candidates {
		if i, ok := h.exact[model.NormalizeHeader(c)]; ok {
			return i
		}
	}
	if !contains {
		return -1
	}
	for i, n := range h.norm {
		if n == "" {
			continue
		}
		for _, c := range candidates {
			if cn := model.NormalizeHeader(c); cn != "" && strings.Contains(n, cn) {
				return i
			}
		}
	}
	return -1
}
