package trace

import (
	"fmt"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// Query evaluates a JSONPath expression against a raw trace document, e.g.
// `$.traceSegments..[?(@.type == 'unprotected')].id`.
func Query(doc []byte, expr string) ([]any, error) {
	x, err := jp.ParseString(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath '%s': %w", expr, err)
	}
	data, err := oj.Parse(doc)
	if err != nil {
		return nil, fmt.Errorf("parse trace document: %w", err)
	}
	return x.Get(data), nil
}
