package params

import (
	"context"

	"github.com/policysim/go-params/pkg/activity"
)

// WithActivityHooks attaches activity hooks to the engine configuration.
// Hooks are cloned and nil entries dropped to preserve immutability.
func WithActivityHooks(hooks activity.Hooks) Option {
	normalized := cloneActivityHooks(hooks)
	return func(cfg *engineConfig) {
		cfg.activityHooks = normalized
	}
}

// ActivityHooks returns a cloned slice of the activity hooks configured on
// the engine. The returned slice can be safely mutated by the caller.
func (p *Parameters) ActivityHooks() activity.Hooks {
	if p == nil {
		return nil
	}
	return cloneActivityHooks(p.cfg.activityHooks)
}

func cloneActivityHooks(hooks activity.Hooks) activity.Hooks {
	if len(hooks) == 0 {
		return nil
	}
	normalized := make([]activity.ActivityHook, 0, len(hooks))
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		normalized = append(normalized, hook)
	}
	if len(normalized) == 0 {
		return nil
	}
	return activity.Hooks(normalized)
}

// Emit helpers fan lifecycle events out to the configured hooks. Hook
// failures never undo applied state.

func (p *Parameters) emitUpdated(names []string, revisionID string) {
	if !p.cfg.activityHooks.Enabled() {
		return
	}
	event := activity.BuildParamsUpdatedEvent(activity.EngineEventInput{
		Params:     names,
		RevisionID: revisionID,
	})
	_ = p.cfg.activityHooks.Notify(context.Background(), event)
}

func (p *Parameters) emitExtended(names []string, label string, periods []int) {
	if !p.cfg.activityHooks.Enabled() {
		return
	}
	event := activity.BuildParamsExtendedEvent(activity.EngineEventInput{
		Params:  names,
		Label:   label,
		Periods: periods,
	})
	_ = p.cfg.activityHooks.Notify(context.Background(), event)
}

func (p *Parameters) emitYearAdvanced(period int) {
	if !p.cfg.activityHooks.Enabled() {
		return
	}
	event := activity.BuildYearAdvancedEvent(activity.EngineEventInput{
		Period: period,
	})
	_ = p.cfg.activityHooks.Notify(context.Background(), event)
}
