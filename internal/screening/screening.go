// Package screening provides the CEL based transaction screening engine.
//
// Screening rules are operator-configured expressions evaluated alongside
// the weighted risk scorer. A matching rule escalates the assessment's
// action; it never changes the numeric risk score.
package screening

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/shikra/internal/domain"
)

// Engine compiles and evaluates screening rules.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string]*compiledRule
}

type compiledRule struct {
	rule    *domain.ScreenRule
	program cel.Program
}

// NewEngine creates a screening engine with no rules loaded.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("tx_type", cel.StringType),
		cel.Variable("recipient", cel.StringType),
		cel.Variable("platform", cel.StringType),
		cel.Variable("description", cel.StringType),
		cel.Variable("hour", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:      env,
		compiled: make(map[string]*compiledRule),
	}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *Engine) ValidateRule(rule *domain.ScreenRule) error {
	if rule == nil {
		return fmt.Errorf("screen rule is required")
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, err := e.compile(rule)
	return err
}

// LoadRule compiles and loads a single rule.
func (e *Engine) LoadRule(rule *domain.ScreenRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.compile(rule)
	if err != nil {
		return err
	}
	e.compiled[rule.ID] = c
	return nil
}

// LoadRules compiles and loads every enabled rule.
func (e *Engine) LoadRules(rules []*domain.ScreenRule) error {
	for _, r := range rules {
		if r.Enabled {
			if err := e.LoadRule(r); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules atomically replaces the loaded rule set. Enables hot reload
// from the repository without a restart.
func (e *Engine) ReloadRules(rules []*domain.ScreenRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]*compiledRule)
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		c, err := e.compile(r)
		if err != nil {
			return err
		}
		next[r.ID] = c
	}
	e.compiled = next
	return nil
}

// Evaluate runs every loaded rule against the transaction and returns the
// hits. Rules that error are skipped; screening must never fail an
// assessment.
func (e *Engine) Evaluate(tx domain.Transaction, now time.Time) []domain.ScreenHit {
	e.mu.RLock()
	rules := make([]*compiledRule, 0, len(e.compiled))
	for _, c := range e.compiled {
		rules = append(rules, c)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil
	}

	activation := map[string]any{
		"amount":      tx.Amount,
		"tx_type":     string(tx.Type),
		"recipient":   tx.Recipient,
		"platform":    tx.Platform,
		"description": tx.Description,
		"hour":        int64(now.Hour()),
	}

	var hits []domain.ScreenHit
	for _, c := range rules {
		out, _, err := c.program.Eval(activation)
		if err != nil {
			continue
		}
		matched, ok := out.(types.Bool)
		if !ok || !bool(matched) {
			continue
		}
		hits = append(hits, domain.ScreenHit{
			RuleID: c.rule.ID,
			Name:   c.rule.Name,
			Action: c.rule.Action,
			Detail: c.rule.Description,
		})
	}
	return hits
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []*domain.ScreenRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.ScreenRule, 0, len(e.compiled))
	for _, c := range e.compiled {
		rules = append(rules, c.rule)
	}
	return rules
}

// Close drops all loaded rules.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = make(map[string]*compiledRule)
	return nil
}

func (e *Engine) compile(rule *domain.ScreenRule) (*compiledRule, error) {
	if rule.Expression == "" {
		return nil, fmt.Errorf("rule %s: expression is required", rule.ID)
	}

	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", rule.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.ID, err)
	}

	return &compiledRule{rule: rule, program: program}, nil
}
