package cascade

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoProvider indicates New was called without a lookup provider.
	ErrNoProvider = errors.New("cascade: provider not configured")
	// ErrUnknownLevel indicates a level outside the configured hierarchy.
	ErrUnknownLevel = errors.New("cascade: unknown level")
	// ErrParentRequired indicates a commit at a dependent level without a
	// committed parent.
	ErrParentRequired = errors.New("cascade: parent selection required")
	// ErrParentMismatch indicates an entity that does not belong to the
	// committed parent.
	ErrParentMismatch = errors.New("cascade: entity does not belong to committed parent")
	// ErrMalformedEntity indicates an entity without id or display name.
	ErrMalformedEntity = errors.New("cascade: entity requires id and display name")
	// ErrDependentLevel indicates a direct search at a level that needs a
	// committed parent.
	ErrDependentLevel = errors.New("cascade: level requires a committed parent")
	// ErrClosed indicates the resolver was closed.
	ErrClosed = errors.New("cascade: resolver closed")
)

// LookupError carries the lookup coordinates alongside a provider failure.
type LookupError struct {
	Level    Level
	Name     string
	ParentID *EntityID
	Query    string
	Err      error
}

func (e *LookupError) Error() string {
	if e == nil {
		return "<nil>"
	}
	parent := "<root>"
	if e.ParentID != nil {
		parent = string(*e.ParentID)
	}
	return fmt.Sprintf("cascade: lookup %s parent=%s %s: %v", e.Name, parent, describeQuery(e.Query), e.Err)
}

func (e *LookupError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// EvaluationError captures entity rule metadata alongside the originating
// error.
type EvaluationError struct {
	Engine string
	Expr   string
	Entity EntityID
	Err    error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("cascade: %s rule %s entity=%s: %v", e.Engine, describeExpression(e.Expr), e.Entity, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeQuery(query string) string {
	if query == "" {
		return "query=<empty>"
	}
	return fmt.Sprintf("query=%q", query)
}

func describeExpression(expr string) string {
	if expr == "" {
		return "expr=<empty>"
	}
	return fmt.Sprintf("expr=%q", expr)
}

func wrapLookupError(h Hierarchy, level Level, parent *EntityID, query string, err error) error {
	if err == nil {
		return nil
	}
	var lookupErr *LookupError
	if errors.As(err, &lookupErr) {
		return err
	}
	var copied *EntityID
	if parent != nil {
		copied = IDPtr(*parent)
	}
	return &LookupError{
		Level:    level,
		Name:     h.name(level),
		ParentID: copied,
		Query:    query,
		Err:      err,
	}
}

func wrapEvaluatorError(engine string, err error) error {
	if err == nil {
		return nil
	}

	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		return err
	}

	if strings.HasPrefix(err.Error(), "cascade:") {
		return err
	}
	return fmt.Errorf("cascade: %s rule: %w", engine, err)
}

func wrapEvaluationError(engine, expr string, entity EntityID, err error) error {
	if err == nil {
		return nil
	}

	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		if evalErr.Engine == "" {
			evalErr.Engine = engine
		}
		if evalErr.Expr == "" {
			evalErr.Expr = expr
		}
		if evalErr.Entity == "" {
			evalErr.Entity = entity
		}
		return evalErr
	}

	return &EvaluationError{
		Engine: engine,
		Expr:   expr,
		Entity: entity,
		Err:    err,
	}
}
