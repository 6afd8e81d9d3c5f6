// Package validation evaluates the CEL rules attached to entity types
// against serialized documents.
package validation

import (
	"fmt"
	"sync"

	"firestore-odm/internal/odm/metadata"
	"firestore-odm/internal/odm/store"
	"firestore-odm/internal/shared/errors"
	"firestore-odm/internal/shared/logger"

	"github.com/google/cel-go/cel"
)

// Validator checks a document about to be written for an entity type
type Validator interface {
	Validate(entity *metadata.EntityType, doc store.Document) error
}

type compiledRule struct {
	rule    metadata.ValidationRule
	program cel.Program
}

// CELValidator compiles each entity type's rules once and evaluates them
// with the document bound to `self`
type CELValidator struct {
	env     *cel.Env
	options metadata.ValidatorOptions
	logger  logger.Logger

	mu       sync.RWMutex
	compiled map[*metadata.EntityType][]compiledRule
}

// NewCELValidator creates the CEL environment
func NewCELValidator(options metadata.ValidatorOptions, log logger.Logger) (*CELValidator, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	env, err := cel.NewEnv(
		cel.Variable("self", cel.DynType),
	)
	if err != nil {
		return nil, errors.NewInternalError("failed to create CEL environment").WithCause(err)
	}

	return &CELValidator{
		env:      env,
		options:  options,
		logger:   log.WithComponent("validator"),
		compiled: make(map[*metadata.EntityType][]compiledRule),
	}, nil
}

// Compile compiles the rules of entity ahead of the first write. A rule that
// does not compile is reported with its expression.
func (v *CELValidator) Compile(entity *metadata.EntityType) error {
	_, err := v.rulesFor(entity)
	return err
}

// Validate evaluates every rule of entity against doc. Failures are collected
// into a ValidationErrors unless StopAtFirstError is set.
func (v *CELValidator) Validate(entity *metadata.EntityType, doc store.Document) error {
	rules, err := v.rulesFor(entity)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}

	self := map[string]interface{}(doc)
	if self == nil {
		self = map[string]interface{}{}
	}

	verrs := errors.NewValidationErrors()
	for _, r := range rules {
		ok, reason := v.evaluate(r, self)
		if ok {
			continue
		}

		message := r.rule.Message
		if message == "" {
			message = reason
		}
		verrs.Add(r.rule.Field, message, self[r.rule.Field])

		if v.options.StopAtFirstError {
			break
		}
	}

	if !verrs.HasErrors() {
		return nil
	}

	v.logger.WithFields(map[string]interface{}{
		"entity": entity.Name(),
		"errors": len(verrs.Errors),
	}).Debug("Model validation failed")

	return verrs.ToAppError().
		WithDetail("entity", entity.Name()).
		WithCause(verrs)
}

func (v *CELValidator) evaluate(r compiledRule, self map[string]interface{}) (bool, string) {
	out, _, err := r.program.Eval(map[string]interface{}{"self": self})
	if err != nil {
		return false, fmt.Sprintf("%s: %v", r.rule.Expression, err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Sprintf("%s did not return a boolean", r.rule.Expression)
	}
	if !result {
		return false, fmt.Sprintf("%s is false", r.rule.Expression)
	}
	return true, ""
}

func (v *CELValidator) rulesFor(entity *metadata.EntityType) ([]compiledRule, error) {
	v.mu.RLock()
	rules, ok := v.compiled[entity]
	v.mu.RUnlock()
	if ok {
		return rules, nil
	}

	declared := entity.Rules()
	rules = make([]compiledRule, 0, len(declared))
	for _, rule := range declared {
		program, err := v.compile(rule.Expression)
		if err != nil {
			return nil, errors.NewValidationError("invalid validation rule").
				WithCode(errors.CodeInvalidInput).
				WithCause(err).
				WithDetail("entity", entity.Name()).
				WithDetail("expression", rule.Expression)
		}
		rules = append(rules, compiledRule{rule: rule, program: program})
	}

	v.mu.Lock()
	v.compiled[entity] = rules
	v.mu.Unlock()
	return rules, nil
}

func (v *CELValidator) compile(expression string) (cel.Program, error) {
	ast, issues := v.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compilation error: %w", issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("CEL expression must return a boolean, got %s", out)
	}

	program, err := v.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}
	return program, nil
}
