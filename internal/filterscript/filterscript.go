// Package filterscript implements a dynamic Filter backed by a compiled
// JavaScript expression, letting operators ship filter logic as data instead
// of a recompiled binary.
package filterscript

import (
	"fmt"
	"sync"

	"github.com/dop251/goja"

	"github.com/coachpo/eventloop/internal/observability"
)

// ScriptFilter evaluates a boolean JavaScript expression against a payload.
// The expression is compiled once at construction into a callable; every
// ShouldProcess invocation reuses the same goja.Runtime under a mutex, since
// goja values are not safe for concurrent use even though the dispatch core
// only ever calls filters from the single dispatcher goroutine.
type ScriptFilter struct {
	mu       sync.Mutex
	rt       *goja.Runtime
	callable goja.Callable
	source   string
}

// New compiles expression, which must be a JavaScript expression referencing
// a single implicit variable named "payload", e.g. "payload.value >= 5".
func New(expression string) (*ScriptFilter, error) {
	wrapped := fmt.Sprintf("(function(payload) { return Boolean(%s); })", expression)

	rt := goja.New()
	value, err := rt.RunString(wrapped)
	if err != nil {
		return nil, fmt.Errorf("filterscript: compile: %w", err)
	}
	callable, ok := goja.AssertFunction(value)
	if !ok {
		return nil, fmt.Errorf("filterscript: expression did not produce a callable")
	}
	return &ScriptFilter{rt: rt, callable: callable, source: expression}, nil
}

// ShouldProcess evaluates the compiled expression against payload. Runtime
// errors fail closed (return false) and are logged, so a broken script
// silently drops events rather than panicking the dispatcher. Compile errors
// never reach here: New returns them.
func (f *ScriptFilter) ShouldProcess(payload any) bool {
	if f == nil {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	result, err := f.callable(goja.Undefined(), f.rt.ToValue(payload))
	if err != nil {
		observability.Log().Error("filterscript evaluation failed",
			observability.Field{Key: "expression", Value: f.source},
			observability.Field{Key: "error", Value: err.Error()},
		)
		return false
	}
	return result.ToBoolean()
}
