package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"eventrouter/pkg/models"
)

type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("source", cel.StringType),
		cel.Variable("detail_type", cel.StringType),
		cel.Variable("account", cel.StringType),
		cel.Variable("region", cel.StringType),
		cel.Variable("time", cel.TimestampType),
		cel.Variable("resources", cel.ListType(cel.StringType)),
		cel.Variable("detail", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

// Condition is a compiled boolean rule condition. It is safe for concurrent use.
type Condition struct {
	expression string
	program    cel.Program
}

func (c *Condition) Expression() string {
	return c.expression
}

func (e *Evaluator) ValidateCondition(expression string) error {
	_, err := e.Compile(expression)
	return err
}

func (e *Evaluator) Compile(expression string) (*Condition, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("condition expression must return bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &Condition{expression: expression, program: program}, nil
}

func (c *Condition) Evaluate(ctx context.Context, env models.Envelope) (bool, error) {
	resources := env.Resources
	if resources == nil {
		resources = []string{}
	}
	detail := env.Detail
	if detail == nil {
		detail = map[string]interface{}{}
	}

	vars := map[string]interface{}{
		"id":          env.ID,
		"source":      env.Source,
		"detail_type": env.DetailType,
		"account":     env.Account,
		"region":      env.Region,
		"time":        env.Time,
		"resources":   resources,
		"detail":      detail,
	}

	result, _, err := c.program.ContextEval(ctx, vars)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}
