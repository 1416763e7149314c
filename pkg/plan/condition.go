package plan

import (
	"fmt"
	"os"
	"strings"
)

// evalCondition evaluates a step condition against the plan context.
// Supported forms, each negatable with a leading "!":
//
//	<step_id>.success            the step committed
//	<step_id>.skipped            the step was skipped
//	<step_id>.stdout contains "text"
//	exists <path>                the path exists on disk
//
// An empty condition is true. References to steps that have not run yet
// are an error, which the orchestrator treats as a step failure.
func evalCondition(expr string, ctx *Context) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true, nil
	}

	negate := false
	if strings.HasPrefix(expr, "!") {
		negate = true
		expr = strings.TrimSpace(expr[1:])
	}

	value, err := evalAtom(expr, ctx)
	if err != nil {
		return false, err
	}
	if negate {
		return !value, nil
	}
	return value, nil
}

func evalAtom(expr string, ctx *Context) (bool, error) {
	if path, ok := strings.CutPrefix(expr, "exists "); ok {
		_, err := os.Stat(strings.TrimSpace(path))
		return err == nil, nil
	}

	if before, after, ok := strings.Cut(expr, " contains "); ok {
		stepID, field, err := splitRef(before)
		if err != nil {
			return false, err
		}
		if field != "stdout" {
			return false, fmt.Errorf("contains applies to stdout, not %q", field)
		}
		res, found := ctx.Result(stepID)
		if !found {
			return false, fmt.Errorf("condition references step %q which has not run", stepID)
		}
		needle := strings.Trim(strings.TrimSpace(after), `"'`)
		return strings.Contains(res.Stdout, needle), nil
	}

	stepID, field, err := splitRef(expr)
	if err != nil {
		return false, err
	}
	res, found := ctx.Result(stepID)
	if !found {
		return false, fmt.Errorf("condition references step %q which has not run", stepID)
	}
	switch field {
	case "success":
		return res.Status == StepCommitted, nil
	case "skipped":
		return res.Status == StepSkipped, nil
	case "failed":
		return res.Status == StepFailed, nil
	default:
		return false, fmt.Errorf("unknown condition field %q", field)
	}
}

func splitRef(s string) (stepID, field string, err error) {
	s = strings.TrimSpace(s)
	idx := strings.LastIndex(s, ".")
	if idx <= 0 || idx == len(s)-1 {
		return "", "", fmt.Errorf("malformed condition %q", s)
	}
	return s[:idx], s[idx+1:], nil
}
