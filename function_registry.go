package cascade

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Function is a helper callable from entity rules.
type Function func(args ...any) (any, error)

// FunctionRegistry stores custom functions keyed by name.
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]Function
}

// NewFunctionRegistry constructs an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{
		functions: make(map[string]Function),
	}
}

// Register stores fn under name guarding against duplicates.
func (r *FunctionRegistry) Register(name string, fn Function) error {
	if fn == nil {
		return fmt.Errorf("cascade: function %q is nil", name)
	}
	if name == "" {
		return fmt.Errorf("cascade: function name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = make(map[string]Function)
	}
	key := strings.ToLower(name)
	if _, exists := r.functions[key]; exists {
		return fmt.Errorf("cascade: function %q already registered", name)
	}
	r.functions[key] = fn
	return nil
}

// Clone returns a shallow copy of the registry.
func (r *FunctionRegistry) Clone() *FunctionRegistry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := &FunctionRegistry{
		functions: make(map[string]Function, len(r.functions)),
	}
	for name, fn := range r.functions {
		clone.functions[name] = fn
	}
	return clone
}

// Call executes the function registered for name.
func (r *FunctionRegistry) Call(name string, args ...any) (any, error) {
	if r == nil {
		return nil, fmt.Errorf("cascade: function registry is nil")
	}
	r.mu.RLock()
	fn := r.functions[strings.ToLower(name)]
	r.mu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("cascade: function %q not registered", name)
	}
	return fn(args...)
}

// Names returns registered function names sorted alphabetically.
func (r *FunctionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultFunctionRegistry returns a registry with the built-in rule helpers:
//
//	fold(s)              accent and case folded form of s
//	includes(s, query)   folded s contains folded query
func DefaultFunctionRegistry() *FunctionRegistry {
	registry := NewFunctionRegistry()
	_ = registry.Register("fold", func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("cascade: fold expects 1 argument, got %d", len(args))
		}
		return NormalizeQuery(fmt.Sprint(args[0])), nil
	})
	_ = registry.Register("includes", func(args ...any) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("cascade: includes expects 2 arguments, got %d", len(args))
		}
		return strings.Contains(NormalizeQuery(fmt.Sprint(args[0])), NormalizeQuery(fmt.Sprint(args[1]))), nil
	})
	return registry
}
