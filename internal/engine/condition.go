package engine

import (
	"fmt"
	"strings"
	"time"

	"clientdesk/orchestrator/pkg/models"
)

// evalCondition evaluates a condition step's predicate over the accumulated
// bindings and returns the outcome label. Supported operators:
//
//	exists:   the field is present
//	nonempty: the field is a non-empty string
//	eq / ne:  string comparison against config "value"
//
// An unknown operator evaluates false so a misconfigured predicate routes
// to the false edge (or the default edge) instead of crashing the walk.
func evalCondition(config map[string]interface{}, bindings map[string]interface{}) string {
	field, _ := config["field"].(string)
	op, _ := config["op"].(string)
	want, _ := config["value"].(string)

	got, present := bindings[field]

	var result bool
	switch op {
	case "exists":
		result = present
	case "nonempty", "":
		s, _ := got.(string)
		result = present && strings.TrimSpace(s) != ""
	case "eq":
		result = present && fmt.Sprintf("%v", got) == want
	case "ne":
		result = !present || fmt.Sprintf("%v", got) != want
	}

	if result {
		return models.OutcomeTrue
	}
	return models.OutcomeFalse
}

// delayDuration reads a delay step's duration, either a Go duration string
// ("1h30m") or a number of seconds.
func delayDuration(config map[string]interface{}) (time.Duration, error) {
	switch v := config["duration"].(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("parse delay duration %q: %w", v, err)
		}
		return d, nil
	case float64:
		return time.Duration(v) * time.Second, nil
	case int:
		return time.Duration(v) * time.Second, nil
	default:
		return 0, fmt.Errorf("delay step missing duration")
	}
}
