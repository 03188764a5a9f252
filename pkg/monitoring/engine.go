package monitoring

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/solutionhub/platform/pkg/common/logger"
	"github.com/solutionhub/platform/pkg/tender"
)

// ScoreWeights are the heuristic scoring constants. They produce a stable
// relative ordering for triage, not a calibrated probability; deployments
// tune them through configuration.
type ScoreWeights struct {
	Keyword int // per matched keyword
	Value   int // peak of the value-range bell bonus
	Org     int // flat bonus for an explicitly allow-listed CNPJ
}

func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{Keyword: 20, Value: 30, Org: 50}
}

// Match pairs a rule with the relevance score of the tender it matched.
type Match struct {
	Rule  *Rule
	Score int
}

type Engine struct {
	weights ScoreWeights
}

func NewEngine(weights ScoreWeights) *Engine {
	if weights.Keyword == 0 && weights.Value == 0 && weights.Org == 0 {
		weights = DefaultScoreWeights()
	}
	return &Engine{weights: weights}
}

// Evaluate returns every active rule that matches the tender, scored. A
// panic inside a single rule's evaluation is contained so one bad rule
// cannot abort evaluation of the rest.
func (e *Engine) Evaluate(t *tender.Tender, rules []Rule) []Match {
	var matches []Match
	for i := range rules {
		rule := &rules[i]
		matched, err := e.evaluateOne(t, rule)
		if err != nil {
			logger.Log.WithError(err).WithFields(map[string]interface{}{
				"rule_id":   rule.ID,
				"tender_id": t.ID,
			}).Warn("rule evaluation failed")
			continue
		}
		if matched {
			matches = append(matches, Match{Rule: rule, Score: e.Score(t, rule)})
		}
	}
	return matches
}

func (e *Engine) evaluateOne(t *tender.Tender, rule *Rule) (matched bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rule evaluation panic: %v", r)
		}
	}()
	return e.Matches(t, rule), nil
}

// Matches reports whether every configured filter category on the rule
// passes for the tender. Absent categories are no constraint, but a rule
// with zero configured filters never matches anything.
func (e *Engine) Matches(t *tender.Tender, rule *Rule) bool {
	if rule.Status != StatusActive {
		return false
	}
	if !rule.HasAnyFilter() {
		return false
	}

	if len(rule.Keywords) > 0 && countKeywordHits(t, rule.Keywords) == 0 {
		return false
	}

	org := rule.OrgFilters.Data()
	if len(org.States) > 0 && !containsFold(org.States, t.UnitState) {
		return false
	}
	if len(org.Municipalities) > 0 && !containsFold(org.Municipalities, t.UnitCity) {
		return false
	}
	if len(org.CNPJs) > 0 && !contains(org.CNPJs, t.OrgCNPJ) {
		return false
	}
	if len(org.ExcludeCNPJs) > 0 && contains(org.ExcludeCNPJs, t.OrgCNPJ) {
		return false
	}

	values := rule.ValueFilters.Data()
	if values.Min != nil && t.EstimatedValue < *values.Min {
		return false
	}
	if values.Max != nil && t.EstimatedValue > *values.Max {
		return false
	}

	if len(rule.TypeFilters) > 0 && !containsFold(rule.TypeFilters, t.ModalityTag) {
		return false
	}
	if len(rule.CategoryFilters) > 0 && !containsFold(rule.CategoryFilters, t.ModalityTag) {
		return false
	}

	return true
}

// Score computes the relevance of the tender for the rule, clamped to
// [0, 100]. Purely additive: keyword hits, a bell-shaped bonus peaking at
// the midpoint of the configured value range, and a flat bonus for an
// explicitly allow-listed organization.
func (e *Engine) Score(t *tender.Tender, rule *Rule) int {
	score := countKeywordHits(t, rule.Keywords) * e.weights.Keyword
	score += e.valueBonus(t, rule)

	if contains(rule.OrgFilters.Data().CNPJs, t.OrgCNPJ) {
		score += e.weights.Org
	}

	if score > 100 {
		return 100
	}
	if score < 0 {
		return 0
	}
	return score
}

func (e *Engine) valueBonus(t *tender.Tender, rule *Rule) int {
	values := rule.ValueFilters.Data()
	if values.Min == nil || values.Max == nil {
		return 0
	}
	span := *values.Max - *values.Min
	if span <= 0 {
		return 0
	}
	position := (t.EstimatedValue - *values.Min) / span
	if position < 0 || position > 1 {
		return 0
	}
	bonus := float64(e.weights.Value) - math.Abs(0.5-position)*float64(2*e.weights.Value)
	if bonus < 0 {
		return 0
	}
	return int(math.Round(bonus))
}

// WindowOpen reports whether the rule's notification window admits the
// given instant. Tenders are still synced and matched outside the window;
// only dispatch is suppressed.
func (e *Engine) WindowOpen(rule *Rule, now time.Time) bool {
	if len(rule.NotifyDays) > 0 {
		day := strings.ToLower(now.Weekday().String())
		if !containsFold(rule.NotifyDays, day) {
			return false
		}
	}
	if rule.NotifyStartHour != nil && rule.NotifyEndHour != nil {
		hour := now.Hour()
		if hour < *rule.NotifyStartHour || hour >= *rule.NotifyEndHour {
			return false
		}
	}
	return true
}

func countKeywordHits(t *tender.Tender, keywords []string) int {
	if len(keywords) == 0 {
		return 0
	}
	searchText := strings.ToLower(t.SearchText())
	hits := 0
	for _, keyword := range keywords {
		trimmed := strings.ToLower(strings.TrimSpace(keyword))
		if trimmed != "" && strings.Contains(searchText, trimmed) {
			hits++
		}
	}
	return hits
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

func containsFold(list []string, value string) bool {
	for _, item := range list {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}
