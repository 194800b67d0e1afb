package attributes

import (
	"fmt"
	"log"
	"reflect"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"go.opentelemetry.io/otel/attribute"

	"buildlogger/internal/config"
	"buildlogger/internal/record"
)

// exprEnv defines the evaluation environment for expression type checking:
// one captured invocation's view.
func exprEnv() map[string]interface{} {
	return map[string]interface{}{
		"env":     map[string]string{},
		"args":    []string{},
		"cmdline": "",
		"dir":     "",
		"pid":     0,
	}
}

// invocationEnv builds the evaluation environment for one invocation.
func invocationEnv(inv *record.Invocation) map[string]interface{} {
	env := inv.Env
	if env == nil {
		env = map[string]string{}
	}
	return map[string]interface{}{
		"env":     env,
		"args":    inv.Args,
		"cmdline": inv.Cmdline(),
		"dir":     inv.Dir,
		"pid":     inv.Pid,
	}
}

// Evaluator handles compilation and evaluation of custom attribute
// expressions.
type Evaluator struct {
	customAttrs   []config.CustomAttribute
	compiledExprs []*vm.Program
}

// NewEvaluator creates a new attribute evaluator.
// All expressions are pre-compiled so per-invocation evaluation stays cheap.
func NewEvaluator(customAttrs []config.CustomAttribute) (*Evaluator, error) {
	compiledExprs := make([]*vm.Program, len(customAttrs))
	for i, attr := range customAttrs {
		program, err := expr.Compile(attr.Expression, expr.Env(exprEnv()))
		if err != nil {
			return nil, fmt.Errorf("failed to compile expression for attribute %q: %w", attr.Name, err)
		}
		compiledExprs[i] = program
	}

	return &Evaluator{
		customAttrs:   customAttrs,
		compiledExprs: compiledExprs,
	}, nil
}

// EvaluateCustomAttributes evaluates the configured expressions for one
// captured invocation. Evaluation failures skip the attribute, not the
// invocation.
func (e *Evaluator) EvaluateCustomAttributes(inv *record.Invocation) []attribute.KeyValue {
	if len(e.customAttrs) == 0 || inv == nil {
		return nil
	}

	env := invocationEnv(inv)

	var attrs []attribute.KeyValue
	for i, customAttr := range e.customAttrs {
		output, err := expr.Run(e.compiledExprs[i], env)
		if err != nil {
			log.Printf("Warning: failed to evaluate expression for attribute %q: %v", customAttr.Name, err)
			continue
		}

		// Map results expand into one attribute per key, dot-joined.
		outputValue := reflect.ValueOf(output)
		if outputValue.Kind() == reflect.Map {
			for _, key := range outputValue.MapKeys() {
				name := customAttr.Name + "." + sanitizeAttributeName(fmt.Sprintf("%v", key.Interface()))
				attrs = append(attrs, attribute.String(name, fmt.Sprint(outputValue.MapIndex(key).Interface())))
			}
		} else {
			attrs = append(attrs, attribute.String(customAttr.Name, fmt.Sprint(output)))
		}
	}

	return attrs
}

// sanitizeAttributeName replaces non-alphanumeric characters with
// underscores so expanded map keys are safe attribute names.
func sanitizeAttributeName(name string) string {
	result := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			result[i] = c
		} else {
			result[i] = '_'
		}
	}
	return string(result)
}
