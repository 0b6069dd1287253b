package appmodel

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// ValueProvider produces a value once the application is running.
type ValueProvider interface {
	GetValue(ctx context.Context) (string, error)
}

// ManifestExpressionProvider renders a value as a manifest expression.
type ManifestExpressionProvider interface {
	ValueExpression() string
}

// FormatURI percent-encodes a value so it can be placed in a URI.
const FormatURI = "uri"

// Formatted applies a format to a value inside an expression.
type Formatted struct {
	Value  ValueProvider
	Format string
}

type segment struct {
	literal string
	value   ValueProvider
	format  string
}

// ReferenceExpression is a deferred string template over literals and
// value providers, such as a connection string.
type ReferenceExpression struct {
	segments []segment
}

// Expr builds an expression from strings, ValueProviders and Formatted values.
// Any other part type is a programming error and panics.
func Expr(parts ...any) *ReferenceExpression {
	e := &ReferenceExpression{}
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			e.segments = append(e.segments, segment{literal: v})
		case Formatted:
			e.segments = append(e.segments, segment{value: v.Value, format: v.Format})
		case ValueProvider:
			e.segments = append(e.segments, segment{value: v})
		default:
			panic(fmt.Sprintf("appmodel: unsupported expression part %T", p))
		}
	}
	return e
}

// Append returns a new expression made of e followed by parts.
func (e *ReferenceExpression) Append(parts ...any) *ReferenceExpression {
	out := &ReferenceExpression{segments: append([]segment(nil), e.segments...)}
	out.segments = append(out.segments, Expr(parts...).segments...)
	return out
}

// ValueProviders returns the providers referenced by the expression.
func (e *ReferenceExpression) ValueProviders() []ValueProvider {
	var out []ValueProvider
	for _, s := range e.segments {
		if s.value != nil {
			out = append(out, s.value)
		}
	}
	return out
}

// GetValue resolves every provider. The first failing provider aborts.
func (e *ReferenceExpression) GetValue(ctx context.Context) (string, error) {
	var sb strings.Builder
	for _, s := range e.segments {
		if s.value == nil {
			sb.WriteString(s.literal)
			continue
		}
		v, err := s.value.GetValue(ctx)
		if err != nil {
			return "", err
		}
		formatted, err := applyFormat(v, s.format)
		if err != nil {
			return "", err
		}
		sb.WriteString(formatted)
	}
	return sb.String(), nil
}

// ValueExpression renders the manifest form, e.g.
// "Host={pg.bindings.tcp.host};Password={pg-password.value}".
func (e *ReferenceExpression) ValueExpression() string {
	var sb strings.Builder
	for _, s := range e.segments {
		if s.value == nil {
			sb.WriteString(s.literal)
			continue
		}
		expr := manifestExpression(s.value)
		if s.format != "" && strings.HasSuffix(expr, "}") {
			expr = strings.TrimSuffix(expr, "}") + ":" + s.format + "}"
		}
		sb.WriteString(expr)
	}
	return sb.String()
}

func (e *ReferenceExpression) String() string {
	return e.ValueExpression()
}

func manifestExpression(v ValueProvider) string {
	if m, ok := v.(ManifestExpressionProvider); ok {
		return m.ValueExpression()
	}
	return fmt.Sprintf("{%T}", v)
}

func applyFormat(v, format string) (string, error) {
	switch format {
	case "":
		return v, nil
	case FormatURI:
		return strings.ReplaceAll(url.QueryEscape(v), "+", "%20"), nil
	default:
		return "", fmt.Errorf("unknown value format %q", format)
	}
}

// Literal is a constant ValueProvider. Its manifest form is the value itself.
type Literal string

func (l Literal) GetValue(context.Context) (string, error) { return string(l), nil }

func (l Literal) ValueExpression() string { return string(l) }
