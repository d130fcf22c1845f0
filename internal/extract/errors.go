package extract

import (
	"fmt"
	"strings"
)

// SchemaError means the model produced output that failed schema
// validation twice. Raw preserves the offending output for diagnosis.
type SchemaError struct {
	Raw     string
	Reasons []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("extract: schema validation failed: %s", strings.Join(e.Reasons, "; "))
}

// CallError wraps an LLM transport or API failure.
type CallError struct {
	Err error
}

func (e *CallError) Error() string {
	return "extract: llm call failed: " + e.Err.Error()
}

func (e *CallError) Unwrap() error {
	return e.Err
}
