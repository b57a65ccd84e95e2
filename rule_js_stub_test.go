//go:build !js_eval

package params

import "testing"

const jsRuleDefaults = `{
	"schema": {
		"labels": {
			"year": {"type": "int", "validators": {"range": {"min": 2001, "max": 2010}}}
		},
		"operators": {"label_to_extend": "year"}
	},
	"scripted_param": {
		"type": "float",
		"value": 0.1,
		"validators": {"rule": {"expr": "value <= 0.6", "engine": "js"}}
	}
}`

func TestJSRuleEngineUnavailableWithoutTag(t *testing.T) {
	p := newRuleEngine(t, jsRuleDefaults)
	err := p.Adjust(Revision{"scripted_param": map[int]any{2003: 0.3}})
	wantErrorRow(t, err, "scripted_param", "params: js rule engine unavailable")
}
