package expressions

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/jmespath/go-jmespath"
)

// Evaluator runs JMESPath expressions against account data. Compiled expressions are
// cached for the life of the evaluator.
type Evaluator struct {
	compiled sync.Map // string -> *jmespath.JMESPath
}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate returns the raw search result
func (e *Evaluator) Evaluate(expression string, data any) (any, error) {
	query, err := e.compile(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", expression, err)
	}

	result, err := query.Search(data)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression %q: %w", expression, err)
	}
	return result, nil
}

// EvaluateString renders the result as text. Missing values render empty and lists are
// concatenated.
func (e *Evaluator) EvaluateString(expression string, data any) (string, error) {
	result, err := e.Evaluate(expression, data)
	if err != nil {
		return "", err
	}
	return stringify(result), nil
}

func (e *Evaluator) Validate(expression string) error {
	_, err := e.compile(expression)
	return err
}

func (e *Evaluator) compile(expression string) (*jmespath.JMESPath, error) {
	if cached, ok := e.compiled.Load(expression); ok {
		return cached.(*jmespath.JMESPath), nil
	}

	query, err := jmespath.Compile(expression)
	if err != nil {
		return nil, err
	}
	actual, _ := e.compiled.LoadOrStore(expression, query)
	return actual.(*jmespath.JMESPath), nil
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		// numbers from decoded JSON are float64, integers render without a fraction
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	case []any:
		var b strings.Builder
		for _, item := range v {
			b.WriteString(stringify(item))
		}
		return b.String()
	}
	return fmt.Sprint(value)
}
