package params

import (
	"errors"
	"fmt"
	"strings"
)

// RuleError captures rule-engine metadata alongside the originating error.
type RuleError struct {
	Engine string
	Expr   string
	Param  string
	Err    error
}

func (e *RuleError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("params: %s rule %s param=%s: %v", e.Engine, describeExpression(e.Expr), e.Param, e.Err)
}

func (e *RuleError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeExpression(expr string) string {
	if expr == "" {
		return "expr=<empty>"
	}
	return fmt.Sprintf("expr=%q", expr)
}

func wrapEngineError(engine string, err error) error {
	if err == nil {
		return nil
	}

	var ruleErr *RuleError
	if errors.As(err, &ruleErr) {
		return err
	}

	if strings.HasPrefix(err.Error(), "params:") {
		return err
	}
	return fmt.Errorf("params: %s rule engine: %w", engine, err)
}

func wrapRuleError(engine, expr, param string, err error) error {
	if err == nil {
		return nil
	}

	var ruleErr *RuleError
	if errors.As(err, &ruleErr) {
		if ruleErr.Engine == "" {
			ruleErr.Engine = engine
		}
		if ruleErr.Expr == "" {
			ruleErr.Expr = expr
		}
		if ruleErr.Param == "" {
			ruleErr.Param = param
		}
		return ruleErr
	}

	return &RuleError{
		Engine: engine,
		Expr:   expr,
		Param:  param,
		Err:    err,
	}
}
