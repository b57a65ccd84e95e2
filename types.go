package params

import (
	"io"
	"time"

	"github.com/policysim/go-params/pkg/activity"
)

// RuleContext carries the inputs available to a rule expression: the proposed
// cell and its position, plus caller-supplied args and metadata.
type RuleContext struct {
	Param    string
	Period   int
	Labels   map[string]Scalar
	Value    any
	Now      *time.Time
	Args     map[string]any
	Metadata map[string]any
}

func (ctx RuleContext) withDefaultNow() RuleContext {
	if ctx.Now != nil {
		return ctx
	}
	now := time.Now()
	ctx.Now = &now
	return ctx
}

func (ctx RuleContext) timestamp() time.Time {
	ctx = ctx.withDefaultNow()
	return *ctx.Now
}

func (ctx RuleContext) withDefaultMaps() RuleContext {
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	if ctx.Metadata == nil {
		ctx.Metadata = map[string]any{}
	}
	return ctx
}

// binding exposes the cell under evaluation to expression environments.
func (ctx RuleContext) binding() map[string]any {
	labels := make(map[string]any, len(ctx.Labels))
	for name, value := range ctx.Labels {
		labels[name] = value.Interface()
	}
	return map[string]any{
		"param":  ctx.Param,
		"period": ctx.Period,
		"labels": labels,
		"value":  ctx.Value,
	}
}

// Evaluator executes rule expressions against a rule context.
type Evaluator interface {
	Evaluate(ctx RuleContext, expr string) (any, error)
	Compile(expr string, opts ...CompileOption) (CompiledRule, error)
}

// CompiledRule represents a reusable expression program.
type CompiledRule interface {
	Evaluate(ctx RuleContext) (any, error)
}

// CompileOption configures evaluator compile behaviour.
type CompileOption interface {
	applyCompileOption(*compileConfig)
}

type compileConfig struct{}

type compileOptionFunc func(*compileConfig)

func (f compileOptionFunc) applyCompileOption(cfg *compileConfig) {
	if f != nil {
		f(cfg)
	}
}

// Option configures an engine at construction.
type Option func(*engineConfig)

type engineConfig struct {
	labelToExtend *string
	arrayFirst    *bool
	inflation     RateSeries
	wageGrowth    RateSeries
	wageIndexed   map[string]struct{}
	evaluator     Evaluator
	programCache  ProgramCache
	functions     *FunctionRegistry
	logger        RuleLogger
	activityHooks activity.Hooks
	warnWriter    io.Writer
	skipComplete  map[string]struct{}
}

func applyOptions(opts []Option) engineConfig {
	cfg := engineConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithLabelToExtend overrides the document's label_to_extend operator. The
// empty string disables automatic extension; the document-declared axis
// remains the only valid Extend target either way.
func WithLabelToExtend(label string) Option {
	return func(cfg *engineConfig) {
		cfg.labelToExtend = &label
	}
}

// WithArrayFirst overrides the document's array_first operator.
func WithArrayFirst(enabled bool) Option {
	return func(cfg *engineConfig) {
		cfg.arrayFirst = &enabled
	}
}

// WithInflationRates supplies the price-growth series consumed by extension.
func WithInflationRates(rates []float64) Option {
	return func(cfg *engineConfig) {
		cfg.inflation = RateSeries(rates).clone()
	}
}

// WithWageGrowthRates supplies the wage-growth series consumed by extension.
func WithWageGrowthRates(rates []float64) Option {
	return func(cfg *engineConfig) {
		cfg.wageGrowth = RateSeries(rates).clone()
	}
}

// WithWageIndexed marks parameters whose extension draws from the wage-growth
// series instead of the inflation series.
func WithWageIndexed(names ...string) Option {
	return func(cfg *engineConfig) {
		if cfg.wageIndexed == nil {
			cfg.wageIndexed = map[string]struct{}{}
		}
		for _, name := range names {
			cfg.wageIndexed[name] = struct{}{}
		}
	}
}

// WithRuleEvaluator configures the engine evaluating rule validators.
func WithRuleEvaluator(e Evaluator) Option {
	return func(cfg *engineConfig) {
		cfg.evaluator = e
	}
}

// WithCompletenessExclusions names indexed parameters CheckCompleteness skips.
func WithCompletenessExclusions(names ...string) Option {
	return func(cfg *engineConfig) {
		if cfg.skipComplete == nil {
			cfg.skipComplete = map[string]struct{}{}
		}
		for _, name := range names {
			cfg.skipComplete[name] = struct{}{}
		}
	}
}

// WithWarnWriter configures the destination for printed validation warnings.
func WithWarnWriter(w io.Writer) Option {
	return func(cfg *engineConfig) {
		cfg.warnWriter = w
	}
}
