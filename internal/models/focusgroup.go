package models

// Verdict is a persona's overall call on a draft.
type Verdict string

const (
	VerdictApproved        Verdict = "approved"
	VerdictRejected        Verdict = "rejected"
	VerdictNeedsAdjustment Verdict = "needs_adjustment"
)

// Valid reports whether v is a known verdict.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictApproved, VerdictRejected, VerdictNeedsAdjustment:
		return true
	}
	return false
}

// PersonaEvaluation is one simulated reviewer's assessment.
type PersonaEvaluation struct {
	PersonaName string   `json:"persona_name"`
	Score       int      `json:"score"`
	Positives   []string `json:"positives"`
	Negatives   []string `json:"negatives"`
	Suggestions []string `json:"suggestions"`
	Verdict     Verdict  `json:"verdict"`
}

// FocusGroupResult aggregates every persona evaluation of one run.
type FocusGroupResult struct {
	AverageScore float64             `json:"average_score"`
	Passed       bool                `json:"passed"`
	Evaluations  []PersonaEvaluation `json:"evaluations"`
}

// EvaluationContent is what the focus group reads: the edited copy plus the original
// visual prompt.
type EvaluationContent struct {
	Copy         string   `json:"copy"`
	Hashtags     []string `json:"hashtags"`
	CallToAction string   `json:"call_to_action,omitempty"`
	VisualPrompt string   `json:"visual_prompt,omitempty"`
}

// ReviewOutcome is either a skipped review or an evaluated one. A skip is never confused
// with a real score of zero.
type ReviewOutcome struct {
	Skipped bool              `json:"skipped"`
	Result  *FocusGroupResult `json:"result,omitempty"`
}

// SkippedReview returns the outcome of an explicit skip.
func SkippedReview() *ReviewOutcome {
	return &ReviewOutcome{Skipped: true}
}

// EvaluatedReview wraps an evaluator result.
func EvaluatedReview(result *FocusGroupResult) *ReviewOutcome {
	return &ReviewOutcome{Result: result}
}

// Passed reports whether the review lets the draft through.
func (o *ReviewOutcome) Passed() bool {
	if o == nil {
		return false
	}
	if o.Skipped {
		return true
	}
	return o.Result != nil && o.Result.Passed
}

// Summary flattens the outcome for API clients. A skip reads as {0, true, []}.
func (o *ReviewOutcome) Summary() FocusGroupResult {
	if o == nil || o.Skipped || o.Result == nil {
		return FocusGroupResult{AverageScore: 0, Passed: o != nil && o.Skipped, Evaluations: []PersonaEvaluation{}}
	}
	return *o.Result
}

// Persona is one simulated reviewer of the focus group panel.
type Persona struct {
	Name        string   `json:"name" yaml:"name"`
	Profile     string   `json:"profile" yaml:"profile"`
	Priorities  []string `json:"priorities,omitempty" yaml:"priorities"`
	Skepticisms []string `json:"skepticisms,omitempty" yaml:"skepticisms"`
}
