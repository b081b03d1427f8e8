// Package tools binds tool contracts to executors and validates calls against them.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/observability"
	"github.com/xeipuuv/gojsonschema"
)

// Result is the serializable envelope returned to the model.
type Result struct {
	Output     any            `json:"output"`
	Confidence float64        `json:"confidence"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Executor performs one tool call. Arguments have already been validated.
type Executor interface {
	Execute(ctx context.Context, args map[string]any) (Result, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, args map[string]any) (Result, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, args map[string]any) (Result, error) {
	return f(ctx, args)
}

type boundTool struct {
	def      domain.ToolDefinition
	schema   *gojsonschema.Schema
	executor Executor
}

// Registry maps tool ids to compiled contracts and executors.
// Registration happens at startup; lookups afterwards are read-only.
type Registry struct {
	tools map[string]*boundTool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*boundTool)}
}

// Register compiles def's contract and binds it to exec.
func (r *Registry) Register(def domain.ToolDefinition, exec Executor) error {
	if def.ID == "" {
		return fmt.Errorf("tool id cannot be empty")
	}
	if exec == nil {
		return fmt.Errorf("tool %s: nil executor", def.ID)
	}
	if err := validateDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def.JSONSchema()))
	if err != nil {
		return fmt.Errorf("failed to compile schema for %s: %w", def.ID, err)
	}

	r.tools[def.ID] = &boundTool{def: def, schema: schema, executor: exec}
	slog.Debug("Tool registered", "tool", def.ID)
	return nil
}

// Has reports whether id has a bound executor.
func (r *Registry) Has(id string) bool {
	_, ok := r.tools[id]
	return ok
}

// Validate checks args against the tool's contract.
func (r *Registry) Validate(id string, args map[string]any) error {
	bt, ok := r.tools[id]
	if !ok {
		return &domain.ValidationError{Field: "tool", Reason: fmt.Sprintf("%s: %v", id, domain.ErrUnknownTool)}
	}
	if args == nil {
		args = map[string]any{}
	}

	result, err := bt.schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return &domain.ValidationError{Field: id, Reason: err.Error()}
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		sort.Strings(msgs)
		return &domain.ValidationError{Field: id, Reason: strings.Join(msgs, "; ")}
	}
	return nil
}

// Invoke validates args and runs the executor synchronously.
// A validation failure never reaches the executor.
func (r *Registry) Invoke(ctx context.Context, id string, args map[string]any) (Result, error) {
	if err := r.Validate(id, args); err != nil {
		observability.RecordToolRejected(id, "validation")
		return Result{}, err
	}

	start := time.Now()
	res, err := r.tools[id].executor.Execute(ctx, args)
	observability.RecordToolExecution(id, time.Since(start), err == nil)
	if err != nil {
		return Result{}, fmt.Errorf("tool %s failed: %w", id, err)
	}
	if res.Timestamp.IsZero() {
		res.Timestamp = time.Now().UTC()
	}
	return res, nil
}

// Bind registers every definition whose id has a built-in executor.
// It fails when a definition has none.
func (r *Registry) Bind(defs []domain.ToolDefinition, builtins map[string]Executor) error {
	for _, def := range defs {
		exec, ok := builtins[def.ID]
		if !ok {
			return &domain.ConfigError{Op: "tools", Err: fmt.Errorf("%w: no executor for %q", domain.ErrUnknownTool, def.ID)}
		}
		if err := r.Register(def, exec); err != nil {
			return &domain.ConfigError{Op: "tools", Err: err}
		}
	}
	return nil
}

func validateDefinition(def domain.ToolDefinition) error {
	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}
	seen := make(map[string]bool, len(def.Parameters))
	for _, p := range def.Parameters {
		if p.Name == "" {
			return fmt.Errorf("tool %s: parameter with empty name", def.ID)
		}
		if seen[p.Name] {
			return fmt.Errorf("tool %s: duplicate parameter %s", def.ID, p.Name)
		}
		seen[p.Name] = true
		if !validTypes[p.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", p.Type, p.Name)
		}
	}
	return nil
}
