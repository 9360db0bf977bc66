// Package policy provides purchase guardrails.
// Evaluates configured limits against a purchase before it is issued.
package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/footley/eos-bot/config"
)

// PolicyType defines the type of policy
type PolicyType string

const (
	PolicyTypeMaxNormalizedPrice PolicyType = "max_normalized_price"
	PolicyTypeMinQuality         PolicyType = "min_quality"
	PolicyTypeRunBudget          PolicyType = "run_budget"
	PolicyTypeRego               PolicyType = "rego"
)

// Severity defines policy violation severity
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Decision is the policy evaluation outcome
type Decision string

const (
	DecisionPass Decision = "pass"
	DecisionWarn Decision = "warn"
	DecisionDeny Decision = "deny"
)

// Policy defines a purchase guardrail
type Policy struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Type      PolicyType `json:"type"`
	Severity  Severity   `json:"severity"`
	Threshold float64    `json:"threshold"`
	Enabled   bool       `json:"enabled"`
}

// Violation represents a policy violation
type Violation struct {
	PolicyID   string `json:"policy_id"`
	PolicyName string `json:"policy_name"`
	Message    string `json:"message"`
	Severity   string `json:"severity"`
}

// Purchase is the order about to be placed.
type Purchase struct {
	Product    string
	Channel    string
	Quality    float64
	Normalized float64
	UnitPrice  decimal.Decimal
	Quantity   int
}

// Cost is the total price of the order.
func (p Purchase) Cost() decimal.Decimal {
	return p.UnitPrice.Mul(decimal.NewFromInt(int64(p.Quantity)))
}

// EvaluationResult contains the policy evaluation outcome
type EvaluationResult struct {
	Decision    Decision    `json:"decision"`
	Violations  []Violation `json:"violations"`
	PoliciesRan int         `json:"policies_ran"`
	EvaluatedAt time.Time   `json:"evaluated_at"`
}

// Denied reports whether the purchase must not be placed.
func (r *EvaluationResult) Denied() bool {
	return r.Decision == DecisionDeny
}

// Engine evaluates policies against purchases. It tracks the spend committed
// during the run for the run_budget policy. Not safe for concurrent use.
type Engine struct {
	policies []Policy
	rego     *RegoEvaluator
	spent    decimal.Decimal
}

// NewEngine creates an engine with no policies; every purchase passes.
func NewEngine() *Engine {
	return &Engine{spent: decimal.Zero}
}

// FromConfig creates an engine with the configured policies.
func FromConfig(policies []config.Policy) (*Engine, error) {
	e := NewEngine()
	for _, p := range policies {
		pol := Policy{
			ID:        p.ID,
			Name:      p.Name,
			Type:      PolicyType(p.Type),
			Severity:  Severity(p.Severity),
			Threshold: p.Threshold,
			Enabled:   p.Enabled,
		}
		if pol.Severity == "" {
			pol.Severity = SeverityError
		}
		if err := pol.validate(); err != nil {
			return nil, err
		}
		e.AddPolicy(pol)
	}
	return e, nil
}

func (p Policy) validate() error {
	switch p.Type {
	case PolicyTypeMaxNormalizedPrice, PolicyTypeMinQuality, PolicyTypeRunBudget:
	default:
		return fmt.Errorf("policy %q: unknown type %q", p.ID, p.Type)
	}
	switch p.Severity {
	case SeverityError, SeverityWarning:
	default:
		return fmt.Errorf("policy %q: unknown severity %q", p.ID, p.Severity)
	}
	if p.Threshold < 0 {
		return fmt.Errorf("policy %q: negative threshold", p.ID)
	}
	return nil
}

// WithRego adds compiled Rego guardrails. A nil evaluator is ignored.
func (e *Engine) WithRego(r *RegoEvaluator) *Engine {
	e.rego = r
	return e
}

// AddPolicy adds a policy
func (e *Engine) AddPolicy(p Policy) {
	e.policies = append(e.policies, p)
}

// Spent is the total committed so far.
func (e *Engine) Spent() decimal.Decimal {
	return e.spent
}

// Commit adds a placed purchase to the run's spend.
func (e *Engine) Commit(p Purchase) {
	e.spent = e.spent.Add(p.Cost())
}

// Evaluate runs all enabled policies against the purchase
func (e *Engine) Evaluate(ctx context.Context, p Purchase) *EvaluationResult {
	result := &EvaluationResult{
		Decision:    DecisionPass,
		Violations:  make([]Violation, 0),
		EvaluatedAt: time.Now(),
	}

	for _, policy := range e.policies {
		if !policy.Enabled {
			continue
		}

		result.PoliciesRan++
		violation := e.evaluatePolicy(policy, p)
		if violation == nil {
			continue
		}
		result.Violations = append(result.Violations, *violation)
		result.escalate(policy.Severity)
	}

	if e.rego != nil {
		e.evaluateRego(ctx, p, result)
	}

	return result
}

func (r *EvaluationResult) escalate(s Severity) {
	if s == SeverityError {
		r.Decision = DecisionDeny
	} else if r.Decision != DecisionDeny {
		r.Decision = DecisionWarn
	}
}

// evaluateRego folds Rego messages into the result. A policy that fails to
// evaluate denies the purchase.
func (e *Engine) evaluateRego(ctx context.Context, p Purchase, result *EvaluationResult) {
	result.PoliciesRan++
	spent, _ := e.spent.Float64()
	denials, warnings, err := e.rego.Evaluate(ctx, p, spent)
	if err != nil {
		denials = []string{err.Error()}
	}

	add := func(msg string, s Severity) {
		result.Violations = append(result.Violations, Violation{
			PolicyID:   string(PolicyTypeRego),
			PolicyName: "rego",
			Message:    msg,
			Severity:   string(s),
		})
		result.escalate(s)
	}
	for _, msg := range denials {
		add(msg, SeverityError)
	}
	for _, msg := range warnings {
		add(msg, SeverityWarning)
	}
}

func (e *Engine) evaluatePolicy(pol Policy, p Purchase) *Violation {
	violation := func(format string, args ...any) *Violation {
		return &Violation{
			PolicyID:   pol.ID,
			PolicyName: pol.Name,
			Message:    fmt.Sprintf(format, args...),
			Severity:   string(pol.Severity),
		}
	}

	switch pol.Type {
	case PolicyTypeMaxNormalizedPrice:
		if p.Normalized > pol.Threshold {
			return violation("Normalized price ($%.2f) of %s exceeds limit ($%.2f)", p.Normalized, p.Product, pol.Threshold)
		}

	case PolicyTypeMinQuality:
		if p.Quality < pol.Threshold {
			return violation("Quality %gQ of %s below minimum %gQ", p.Quality, p.Product, pol.Threshold)
		}

	case PolicyTypeRunBudget:
		limit := decimal.NewFromFloat(pol.Threshold)
		total := e.spent.Add(p.Cost())
		if total.GreaterThan(limit) {
			return violation("Run spend ($%s) would exceed budget ($%s)", total.StringFixed(2), limit.StringFixed(2))
		}
	}

	return nil
}
