package appmodel

import (
	"context"
	"fmt"
)

// EnvironmentValues runs the environment callbacks of r and returns the raw
// values (strings or ValueProviders).
func EnvironmentValues(ctx context.Context, exec ExecutionContext, r Resource) (map[string]any, error) {
	ec := &EnvironmentCallbackContext{
		Context:          ctx,
		ExecutionContext: exec,
		Resource:         r,
		Env:              make(map[string]any),
	}
	for _, a := range AnnotationsOf[*EnvironmentCallbackAnnotation](r) {
		if err := a.Callback(ec); err != nil {
			return nil, fmt.Errorf("environment of %s: %w", r.Name(), err)
		}
	}
	return ec.Env, nil
}

// ArgValues runs the argument callbacks of r and returns the raw values.
func ArgValues(ctx context.Context, exec ExecutionContext, r Resource) ([]any, error) {
	ac := &CommandLineArgsCallbackContext{
		Context:          ctx,
		ExecutionContext: exec,
		Resource:         r,
	}
	for _, a := range AnnotationsOf[*CommandLineArgsCallbackAnnotation](r) {
		if err := a.Callback(ac); err != nil {
			return nil, fmt.Errorf("arguments of %s: %w", r.Name(), err)
		}
	}
	return ac.Args, nil
}

// ResolveEnvironment runs the callbacks in run mode and resolves every value.
// Callers resolving for a container pass a ctx from WithContainerNetwork.
func ResolveEnvironment(ctx context.Context, r Resource) (map[string]string, error) {
	raw, err := EnvironmentValues(ctx, ExecutionContext{Operation: OperationRun}, r)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		s, err := resolveValue(ctx, v)
		if err != nil {
			return nil, fmt.Errorf("environment of %s: %s: %w", r.Name(), k, err)
		}
		out[k] = s
	}
	return out, nil
}

// ResolveArgs runs the argument callbacks in run mode and resolves every value.
func ResolveArgs(ctx context.Context, r Resource) ([]string, error) {
	raw, err := ArgValues(ctx, ExecutionContext{Operation: OperationRun}, r)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(raw))
	for i, v := range raw {
		s, err := resolveValue(ctx, v)
		if err != nil {
			return nil, fmt.Errorf("arguments of %s: #%d: %w", r.Name(), i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func resolveValue(ctx context.Context, v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case ValueProvider:
		return t.GetValue(ctx)
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

func renderValue(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case ValueProvider:
		return manifestExpression(t), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}
