package policy

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/open-policy-agent/opa/rego"
)

// Rego queries evaluated against every purchase. Each must produce a set of
// message strings.
const (
	DenyQuery = "data.eosbot.deny"
	WarnQuery = "data.eosbot.warn"
)

// RegoEvaluator runs user-supplied Rego guardrails. Modules are compiled
// once; every purchase is evaluated against both prepared queries.
type RegoEvaluator struct {
	files []string
	deny  rego.PreparedEvalQuery
	warn  rego.PreparedEvalQuery
}

// LoadRegoDir compiles every *.rego file in dir. A directory without
// policies yields a nil evaluator and no error.
func LoadRegoDir(ctx context.Context, dir string) (*RegoEvaluator, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.rego"))
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	if len(files) == 0 {
		return nil, nil
	}
	sort.Strings(files)

	modules := make(map[string]string, len(files))
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
		modules[file] = string(content)
	}
	return NewRegoEvaluator(ctx, modules)
}

// NewRegoEvaluator compiles the given modules, keyed by file name.
func NewRegoEvaluator(ctx context.Context, modules map[string]string) (*RegoEvaluator, error) {
	e := &RegoEvaluator{}
	for name := range modules {
		e.files = append(e.files, name)
	}
	sort.Strings(e.files)

	prepare := func(query string) (rego.PreparedEvalQuery, error) {
		opts := []func(*rego.Rego){rego.Query(query)}
		for _, name := range e.files {
			opts = append(opts, rego.Module(name, modules[name]))
		}
		pq, err := rego.New(opts...).PrepareForEval(ctx)
		if err != nil {
			return rego.PreparedEvalQuery{}, fmt.Errorf("invalid policy for %s: %w", query, err)
		}
		return pq, nil
	}

	var err error
	if e.deny, err = prepare(DenyQuery); err != nil {
		return nil, err
	}
	if e.warn, err = prepare(WarnQuery); err != nil {
		return nil, err
	}
	return e, nil
}

// Files lists the compiled policy files.
func (e *RegoEvaluator) Files() []string {
	return e.files
}

// Evaluate returns the deny and warn messages for a purchase. spent is the
// run's spend before this purchase.
func (e *RegoEvaluator) Evaluate(ctx context.Context, p Purchase, spent float64) (denials, warnings []string, err error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("policy evaluation cancelled: %w", err)
	}
	input := regoInput(p, spent)

	denials, err = evalMessages(ctx, e.deny, input)
	if err != nil {
		return nil, nil, err
	}
	warnings, err = evalMessages(ctx, e.warn, input)
	if err != nil {
		return nil, nil, err
	}
	return denials, warnings, nil
}

func regoInput(p Purchase, spent float64) map[string]any {
	unit, _ := p.UnitPrice.Float64()
	cost, _ := p.Cost().Float64()

	// JSON has no infinity; generic-quality offers carry a null price.
	var normalized any
	if !math.IsInf(p.Normalized, 0) && !math.IsNaN(p.Normalized) {
		normalized = p.Normalized
	}
	return map[string]any{
		"product":    p.Product,
		"channel":    p.Channel,
		"quality":    p.Quality,
		"normalized": normalized,
		"unit_price": unit,
		"quantity":   p.Quantity,
		"cost":       cost,
		"spent":      spent,
	}
}

func evalMessages(ctx context.Context, pq rego.PreparedEvalQuery, input map[string]any) ([]string, error) {
	rs, err := pq.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	var messages []string
	for _, result := range rs {
		for _, expr := range result.Expressions {
			set, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, v := range set {
				if msg, ok := v.(string); ok {
					messages = append(messages, msg)
				}
			}
		}
	}
	sort.Strings(messages)
	return messages, nil
}
