package pipeline

import "fmt"

// RangeRule flags a reading whose field falls outside [Min, Max]. Bounds
// are inclusive.
type RangeRule struct {
	Field string
	Label string
	Unit  string
	Min   float64
	Max   float64
	value func(Reading) float64
}

// Name identifies the rule in logs and metrics, e.g. "brightness_range".
func (r RangeRule) Name() string {
	return r.Field + "_range"
}

// Check returns a warning and true when the reading is out of range.
func (r RangeRule) Check(reading Reading) (string, bool) {
	v := r.value(reading)
	if v < r.Min || v > r.Max {
		return fmt.Sprintf("%s outside %g-%g %s", r.Label, r.Min, r.Max, r.Unit), true
	}
	return "", false
}

// DefaultRules are the advisory ranges the classifier was trained around.
// Scan, track and confidence are never flagged.
func DefaultRules() []RangeRule {
	return []RangeRule{
		{Field: "brightness", Label: "Brightness", Unit: "K", Min: 300, Max: 450,
			value: func(r Reading) float64 { return r.Brightness }},
		{Field: "bright_t31", Label: "Brightness T31", Unit: "K", Min: 290, Max: 400,
			value: func(r Reading) float64 { return r.BrightT31 }},
		{Field: "frp", Label: "FRP", Unit: "MW", Min: 0, Max: 100,
			value: func(r Reading) float64 { return r.FRP }},
	}
}

// Issue is one advisory rule a reading breaks.
type Issue struct {
	Rule    string
	Message string
}

// Inspect runs every default rule against reading and returns the issues in
// rule order, or nil when everything is in range.
func Inspect(reading Reading) []Issue {
	var issues []Issue
	for _, rule := range DefaultRules() {
		if msg, ok := rule.Check(reading); ok {
			issues = append(issues, Issue{Rule: rule.Name(), Message: msg})
		}
	}
	return issues
}

// Validate returns advisory warnings for out-of-range fields. Warnings never
// stop a prediction; the returned slice is nil when everything is in range.
func Validate(reading Reading) []string {
	return messages(Inspect(reading))
}

func messages(issues []Issue) []string {
	if len(issues) == 0 {
		return nil
	}
	out := make([]string, len(issues))
	for i, issue := range issues {
		out[i] = issue.Message
	}
	return out
}

func ruleNames(issues []Issue) []string {
	if len(issues) == 0 {
		return nil
	}
	out := make([]string, len(issues))
	for i, issue := range issues {
		out[i] = issue.Rule
	}
	return out
}
