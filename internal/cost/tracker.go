package cost

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrBudgetExceeded is returned by Begin when admitting the estimated call
// would push committed plus reserved spend over the ceiling. Callers treat
// it as a halt signal, not a transient failure.
var ErrBudgetExceeded = errors.New("cost: budget ceiling exceeded")

// estimate heuristics: roughly 4 characters per token for English prose,
// plus a safety buffer so reservations err on the high side.
const (
	charsPerToken  = 4
	estimateBuffer = 1.10
)

// Tracker enforces a hard spend ceiling across concurrent LLM calls.
//
// The check and the reservation are one atomic step: Begin admits a call
// only if committed + reserved + estimate fits under the ceiling, so the
// ceiling cannot be overshot no matter how many goroutines call in.
type Tracker struct {
	mu       sync.Mutex
	calc     *Calculator
	model    string
	ceiling  float64
	spent    float64
	reserved float64
	halted   bool

	calls     int
	tokensIn  int
	tokensOut int
	failures  map[string]int
}

// NewTracker creates a Tracker with the given ceiling in USD.
func NewTracker(calc *Calculator, model string, ceilingUSD float64) *Tracker {
	return &Tracker{
		calc:     calc,
		model:    model,
		ceiling:  ceilingUSD,
		failures: make(map[string]int),
	}
}

// EstimateCall predicts the cost of a call from prompt size and an expected
// output token count, with a safety buffer.
func (t *Tracker) EstimateCall(inputChars, estOutputTokens int) float64 {
	estInputTokens := inputChars / charsPerToken
	return t.calc.Claude(t.model, estInputTokens, estOutputTokens) * estimateBuffer
}

// Begin reserves budget for a call. On success the caller must resolve the
// reservation with Commit or Release. Returns ErrBudgetExceeded when the
// estimate does not fit; once that happens the tracker stays halted and all
// further Begin calls fail the same way.
func (t *Tracker) Begin(estimate float64) (*Reservation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.halted || t.spent+t.reserved+estimate > t.ceiling {
		t.halted = true
		return nil, ErrBudgetExceeded
	}
	t.reserved += estimate
	return &Reservation{tracker: t, estimate: estimate}, nil
}

// Halted reports whether the ceiling has been hit.
func (t *Tracker) Halted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.halted
}

// RecordFailure increments the failure counter for a pipeline stage.
func (t *Tracker) RecordFailure(stage string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[stage]++
}

// Spent returns committed spend so far.
func (t *Tracker) Spent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spent
}

// SpendSummary is a point-in-time snapshot of tracker state.
type SpendSummary struct {
	SpentUSD     float64
	CeilingUSD   float64
	RemainingUSD float64
	Utilization  float64
	Calls        int
	TokensIn     int
	TokensOut    int
	Failures     map[string]int
}

// Summary returns a snapshot of spend and counters.
func (t *Tracker) Summary() SpendSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	failures := make(map[string]int, len(t.failures))
	for k, v := range t.failures {
		failures[k] = v
	}

	util := 0.0
	if t.ceiling > 0 {
		util = t.spent / t.ceiling
	}
	return SpendSummary{
		SpentUSD:     t.spent,
		CeilingUSD:   t.ceiling,
		RemainingUSD: t.ceiling - t.spent,
		Utilization:  util,
		Calls:        t.calls,
		TokensIn:     t.tokensIn,
		TokensOut:    t.tokensOut,
		Failures:     failures,
	}
}

// Reservation is an admitted-but-unresolved slice of budget.
type Reservation struct {
	tracker  *Tracker
	estimate float64
	done     bool
}

// Commit replaces the reservation with the actual cost of the completed call.
func (r *Reservation) Commit(actualUSD float64, tokensIn, tokensOut int) {
	t := r.tracker
	t.mu.Lock()
	defer t.mu.Unlock()
	if r.done {
		return
	}
	r.done = true
	t.reserved -= r.estimate
	t.spent += actualUSD
	t.calls++
	t.tokensIn += tokensIn
	t.tokensOut += tokensOut

	if actualUSD > r.estimate {
		zap.L().Warn("actual cost exceeded estimate",
			zap.Float64("estimate_usd", r.estimate),
			zap.Float64("actual_usd", actualUSD),
		)
	}
}

// Release returns the reserved budget without committing any spend. Used
// when the call failed before consuming tokens.
func (r *Reservation) Release() {
	t := r.tracker
	t.mu.Lock()
	defer t.mu.Unlock()
	if r.done {
		return
	}
	r.done = true
	t.reserved -= r.estimate
}
