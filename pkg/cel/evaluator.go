package cel

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// Input is the data a condition sees. Signals carry the banked signal fields
// keyed by their wire names (bank_id, bank_source, banked_content_id,
// classifications).
type Input struct {
	ContentKey  string
	ContentHash string
	Signals     []map[string]interface{}
	Actions     []string
}

type Evaluator struct {
	env      *cel.Env
	programs sync.Map
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("content_key", cel.StringType),
		cel.Variable("content_hash", cel.StringType),
		cel.Variable("signals", cel.ListType(cel.MapType(cel.StringType, cel.DynType))),
		cel.Variable("actions", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

func (e *Evaluator) ValidateExpression(expression string) error {
	_, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}
	return nil
}

// ValidateCondition also requires the expression to be boolean.
func (e *Evaluator) ValidateCondition(expression string) error {
	_, err := e.compile(expression)
	return err
}

// EvaluateCondition compiles expression once and caches the program.
func (e *Evaluator) EvaluateCondition(ctx context.Context, expression string, in Input) (bool, error) {
	program, err := e.compile(expression)
	if err != nil {
		return false, err
	}

	signals := in.Signals
	if signals == nil {
		signals = []map[string]interface{}{}
	}
	actions := in.Actions
	if actions == nil {
		actions = []string{}
	}

	vars := map[string]interface{}{
		"content_key":  in.ContentKey,
		"content_hash": in.ContentHash,
		"signals":      signals,
		"actions":      actions,
	}

	result, _, err := program.ContextEval(ctx, vars)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}

func (e *Evaluator) compile(expression string) (cel.Program, error) {
	if p, ok := e.programs.Load(expression); ok {
		return p.(cel.Program), nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("condition must return bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	e.programs.Store(expression, program)
	return program, nil
}
