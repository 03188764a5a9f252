package pipeline

import (
	"context"
	"time"

	"github.com/solutionhub/platform/pkg/common/logger"
	"github.com/solutionhub/platform/pkg/monitoring"
	"github.com/solutionhub/platform/pkg/notification"
	"github.com/solutionhub/platform/pkg/tender"
)

// RuleSource yields the rules eligible for evaluation.
type RuleSource interface {
	FindActive(ctx context.Context) ([]monitoring.Rule, error)
}

// TenderMarker flags a tender as monitored with the score it earned.
type TenderMarker interface {
	SetMonitored(ctx context.Context, id string, score float64) error
}

// Notifier fans matches for one rule out to the user's channels.
type Notifier interface {
	Dispatch(ctx context.Context, rule *monitoring.Rule, matches []notification.MatchedTender)
}

// Processor connects freshly synced tenders to rule evaluation and
// notification dispatch. The sync engine hands it each run's batch so
// the sync loop itself stays ignorant of monitoring semantics.
type Processor struct {
	rules    RuleSource
	engine   *monitoring.Engine
	tenders  TenderMarker
	notifier Notifier
}

func NewProcessor(rules RuleSource, engine *monitoring.Engine, tenders TenderMarker, notifier Notifier) *Processor {
	return &Processor{
		rules:    rules,
		engine:   engine,
		tenders:  tenders,
		notifier: notifier,
	}
}

// Process evaluates a batch of tenders against every active rule whose
// notification window is currently open, marks matched tenders with their
// best score, and dispatches one notification bundle per matched rule.
func (p *Processor) Process(ctx context.Context, batch []*tender.Tender) error {
	if len(batch) == 0 {
		return nil
	}

	rules, err := p.rules.FindActive(ctx)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}

	now := time.Now().UTC()
	eligible := rules[:0]
	for i := range rules {
		if p.engine.WindowOpen(&rules[i], now) {
			eligible = append(eligible, rules[i])
		}
	}
	if len(eligible) == 0 {
		return nil
	}

	byRule := make(map[string][]notification.MatchedTender)
	ruleByID := make(map[string]*monitoring.Rule, len(eligible))
	for i := range eligible {
		ruleByID[eligible[i].ID] = &eligible[i]
	}
	bestScore := make(map[string]int)

	for _, t := range batch {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		for _, m := range p.engine.Evaluate(t, eligible) {
			byRule[m.Rule.ID] = append(byRule[m.Rule.ID], notification.MatchedTender{
				Tender: t,
				Score:  m.Score,
			})
			if m.Score > bestScore[t.ID] {
				bestScore[t.ID] = m.Score
			}
		}
	}

	for id, score := range bestScore {
		if err := p.tenders.SetMonitored(ctx, id, float64(score)); err != nil {
			logger.Log.WithError(err).WithField("tender_id", id).Error("failed to mark tender monitored")
		}
	}

	for ruleID, matches := range byRule {
		p.notifier.Dispatch(ctx, ruleByID[ruleID], matches)
	}

	logger.Log.WithFields(map[string]interface{}{
		"tenders":       len(batch),
		"rules":         len(eligible),
		"matched_rules": len(byRule),
	}).Debug("processed sync batch")
	return nil
}
