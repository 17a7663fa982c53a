package cascade

import (
	"fmt"
	"strings"
	"time"
)

// RuleContext carries the inputs an entity rule is evaluated against.
type RuleContext struct {
	Entity    Entity
	Level     Level
	LevelName string
	ParentID  *EntityID
	Query     string
	Now       *time.Time
	Args      map[string]any
}

func (ctx RuleContext) withDefaultNow() RuleContext {
	if ctx.Now != nil {
		return ctx
	}
	now := time.Now()
	ctx.Now = &now
	return ctx
}

func (ctx RuleContext) withDefaultMaps() RuleContext {
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	return ctx
}

func (ctx RuleContext) withDefaults() RuleContext {
	return ctx.withDefaultNow().withDefaultMaps()
}

func (ctx RuleContext) timestamp() time.Time {
	ctx = ctx.withDefaultNow()
	return *ctx.Now
}

// reservedBindings are always present and win over entity attributes of the
// same name.
var reservedBindings = []string{"id", "name", "code", "parent_id", "level", "level_name", "query", "attributes"}

// binding flattens the entity into the variables a rule can reference.
// Attributes are spread at the top level so `disabled == 0` works directly.
func (ctx RuleContext) binding() map[string]any {
	out := make(map[string]any, len(ctx.Entity.Attributes)+len(reservedBindings))
	for key, value := range ctx.Entity.Attributes {
		out[key] = value
	}
	attributes := copyAttributes(ctx.Entity.Attributes)
	if attributes == nil {
		attributes = map[string]any{}
	}
	out["id"] = string(ctx.Entity.ID)
	out["name"] = ctx.Entity.DisplayName
	out["code"] = ctx.Entity.Code
	out["parent_id"] = idString(ctx.Entity.ParentID)
	out["level"] = int(ctx.Level)
	out["level_name"] = ctx.LevelName
	out["query"] = ctx.Query
	out["attributes"] = attributes
	return out
}

// Evaluator executes rule expressions against a rule context.
type Evaluator interface {
	Evaluate(ctx RuleContext, expr string) (any, error)
	Compile(expr string) (CompiledRule, error)
}

// CompiledRule is a reusable rule program.
type CompiledRule interface {
	Evaluate(ctx RuleContext) (any, error)
}

// Rule engine names accepted by NewEvaluatorForEngine.
const (
	EngineExpr = "expr"
	EngineCEL  = "cel"
	EngineJS   = "js"
)

// NewEvaluatorForEngine builds an evaluator by engine name. The js engine is
// only available when built with the js_eval tag.
func NewEvaluatorForEngine(engine string, cache ProgramCache, registry *FunctionRegistry) (Evaluator, error) {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", EngineExpr:
		return NewExprEvaluator(ExprWithProgramCache(cache), ExprWithFunctionRegistry(registry)), nil
	case EngineCEL:
		return NewCELEvaluator(CELWithProgramCache(cache), CELWithFunctionRegistry(registry)), nil
	case EngineJS:
		evaluator := NewJSEvaluator(JSWithProgramCache(cache), JSWithFunctionRegistry(registry))
		if evaluator == nil {
			return nil, fmt.Errorf("cascade: js rules require the js_eval build tag")
		}
		return evaluator, nil
	default:
		return nil, fmt.Errorf("cascade: unknown rule engine %q", engine)
	}
}

func evaluatorEngineName(e Evaluator) string {
	if e == nil {
		return "unknown"
	}
	switch fmt.Sprintf("%T", e) {
	case "*cascade.exprEvaluator":
		return EngineExpr
	case "*cascade.celEvaluator":
		return EngineCEL
	case "*cascade.jsEvaluator":
		return EngineJS
	default:
		return "custom"
	}
}

// entityRule keeps entities for which the compiled expression yields true.
type entityRule struct {
	engine   string
	expr     string
	compiled CompiledRule
}

func compileEntityRule(evaluator Evaluator, expr string) (*entityRule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	if evaluator == nil {
		evaluator = NewExprEvaluator()
	}
	engine := evaluatorEngineName(evaluator)
	compiled, err := evaluator.Compile(expr)
	if err != nil {
		return nil, wrapEvaluationError(engine, expr, "", err)
	}
	return &entityRule{engine: engine, expr: expr, compiled: compiled}, nil
}

func (r *entityRule) accept(ctx RuleContext) (bool, error) {
	if r == nil {
		return true, nil
	}
	value, err := r.compiled.Evaluate(ctx)
	if err != nil {
		return false, wrapEvaluationError(r.engine, r.expr, ctx.Entity.ID, err)
	}
	keep, ok := value.(bool)
	if !ok {
		return false, wrapEvaluationError(r.engine, r.expr, ctx.Entity.ID, fmt.Errorf("rule must return bool, got %T", value))
	}
	return keep, nil
}

// WithEntityRule filters every fetched entity through expr before it is
// cached or shown, e.g. `disabled == 0`. A nil evaluator uses expr-lang.
func WithEntityRule(evaluator Evaluator, expr string) Option {
	return func(cfg *resolverConfig) {
		cfg.ruleEvaluator = evaluator
		cfg.ruleExpr = expr
	}
}

type jsEvaluatorConfig struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// JSEvaluatorOption configures the JS rule evaluator.
type JSEvaluatorOption func(*jsEvaluatorConfig)

// JSWithProgramCache applies a ProgramCache to the JS rule evaluator.
func JSWithProgramCache(cache ProgramCache) JSEvaluatorOption {
	return func(cfg *jsEvaluatorConfig) {
		cfg.cache = cache
	}
}

// JSWithFunctionRegistry applies a FunctionRegistry to the JS rule evaluator.
func JSWithFunctionRegistry(registry *FunctionRegistry) JSEvaluatorOption {
	return func(cfg *jsEvaluatorConfig) {
		if registry == nil {
			return
		}
		cfg.registry = registry.Clone()
	}
}

func applyJSEvaluatorOptions(opts []JSEvaluatorOption) jsEvaluatorConfig {
	cfg := jsEvaluatorConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}
