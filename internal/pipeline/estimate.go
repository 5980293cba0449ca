package pipeline

import (
	"github.com/KaramelBytes/surveyloom-cli/internal/ai"
	"github.com/KaramelBytes/surveyloom-cli/internal/insight"
	"github.com/KaramelBytes/surveyloom-cli/internal/table"
)

// completionTokensPerCall approximates the length of a four-field answer.
const completionTokensPerCall = 120

// Estimate is the projected cost of analyzing the open-ended columns.
type Estimate struct {
	Model            string
	Calls            int
	PromptTokens     int
	CompletionTokens int
	// CostUSD is meaningful only when CostKnown is true.
	CostUSD   float64
	CostKnown bool
	Columns   []insight.Plan
}

func (p *Pipeline) estimate(t *table.Table, columns []string, opts insight.Options) *Estimate {
	a := insight.New(p.rt, opts, p.logger)
	est := &Estimate{Model: a.Model()}
	for _, name := range columns {
		col, ok := t.Column(name)
		if !ok {
			continue
		}
		plan := a.PlanColumn(col)
		est.Columns = append(est.Columns, plan)
		est.Calls += len(plan.Rows)
		est.PromptTokens += plan.PromptTokens
	}
	est.CompletionTokens = est.Calls * completionTokensPerCall
	if opts.MaxTokens > 0 && opts.MaxTokens < completionTokensPerCall {
		est.CompletionTokens = est.Calls * opts.MaxTokens
	}
	est.CostUSD, est.CostKnown = ai.EstimateCostUSD(est.Model, est.PromptTokens, est.CompletionTokens)
	return est
}
