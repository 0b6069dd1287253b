package appmodel

import (
	"context"
	"sync"
)

// Resource is a named node of the application graph.
type Resource interface {
	Name() string
	Annotations() *Annotations
}

// ResourceWithConnectionString is a resource clients connect to.
type ResourceWithConnectionString interface {
	Resource
	ConnectionStringExpression() *ReferenceExpression
}

// ResourceWithParent is a resource that only exists inside another one,
// e.g. a database inside a server container.
type ResourceWithParent interface {
	Resource
	Parent() Resource
}

// Annotations is an ordered, concurrency-safe list of annotation values.
type Annotations struct {
	mu    sync.RWMutex
	items []any
}

// Add appends an annotation
func (a *Annotations) Add(annotation any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items = append(a.items, annotation)
}

// All returns a copy of the annotations in insertion order
func (a *Annotations) All() []any {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]any, len(a.items))
	copy(out, a.items)
	return out
}

// removeIf drops every annotation matching fn
func (a *Annotations) removeIf(fn func(any) bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	kept := a.items[:0]
	for _, item := range a.items {
		if !fn(item) {
			kept = append(kept, item)
		}
	}
	a.items = kept
}

// AnnotationsOf returns all annotations of type T on r, in insertion order.
func AnnotationsOf[T any](r Resource) []T {
	var out []T
	for _, item := range r.Annotations().All() {
		if v, ok := item.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// LastAnnotation returns the most recently added annotation of type T.
func LastAnnotation[T any](r Resource) (T, bool) {
	all := AnnotationsOf[T](r)
	if len(all) == 0 {
		var zero T
		return zero, false
	}
	return all[len(all)-1], true
}

// HasAnnotation reports whether r carries an annotation of type T.
func HasAnnotation[T any](r Resource) bool {
	_, ok := LastAnnotation[T](r)
	return ok
}

// ContainerResource is the base of every resource that runs as a container.
// Hosting packages embed it.
type ContainerResource struct {
	name        string
	annotations Annotations
}

// NewContainerResource creates a bare container resource. The image is
// supplied through a ContainerImageAnnotation.
func NewContainerResource(name string) *ContainerResource {
	return &ContainerResource{name: name}
}

func (c *ContainerResource) Name() string { return c.name }

func (c *ContainerResource) Annotations() *Annotations { return &c.annotations }

// IsContainer reports whether r runs as a container.
func IsContainer(r Resource) bool {
	return HasAnnotation[*ContainerImageAnnotation](r)
}

// ChildResource is the base of resources that live inside a parent, such as
// databases. Hosting packages embed it.
type ChildResource struct {
	name        string
	parent      Resource
	annotations Annotations
}

// NewChildResource creates a child of parent.
func NewChildResource(name string, parent Resource) *ChildResource {
	return &ChildResource{name: name, parent: parent}
}

func (c *ChildResource) Name() string { return c.name }

func (c *ChildResource) Annotations() *Annotations { return &c.annotations }

func (c *ChildResource) Parent() Resource { return c.parent }

// ConnectionStringReference refers to the connection string of another
// resource. In a manifest it renders as "{name.connectionString}".
type ConnectionStringReference struct {
	Resource ResourceWithConnectionString
}

// ConnectionStringOf returns a value provider for r's connection string
func ConnectionStringOf(r ResourceWithConnectionString) ConnectionStringReference {
	return ConnectionStringReference{Resource: r}
}

func (c ConnectionStringReference) GetValue(ctx context.Context) (string, error) {
	return c.Resource.ConnectionStringExpression().GetValue(ctx)
}

func (c ConnectionStringReference) ValueExpression() string {
	return "{" + c.Resource.Name() + ".connectionString}"
}
