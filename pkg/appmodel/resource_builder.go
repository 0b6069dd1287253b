package appmodel

import (
	"context"
	"fmt"
	"path/filepath"
)

// ResourceBuilder configures one resource fluently.
type ResourceBuilder[T Resource] struct {
	builder  *Builder
	resource T
}

// NewResourceBuilder wraps an already registered resource.
func NewResourceBuilder[T Resource](b *Builder, r T) *ResourceBuilder[T] {
	return &ResourceBuilder[T]{builder: b, resource: r}
}

func (rb *ResourceBuilder[T]) Resource() T { return rb.resource }

func (rb *ResourceBuilder[T]) Builder() *Builder { return rb.builder }

func (rb *ResourceBuilder[T]) fail(format string, args ...interface{}) *ResourceBuilder[T] {
	rb.builder.AddError(fmt.Errorf("resource %s: %s", rb.resource.Name(), fmt.Sprintf(format, args...)))
	return rb
}

// WithAnnotation adds an arbitrary annotation.
func (rb *ResourceBuilder[T]) WithAnnotation(annotation any) *ResourceBuilder[T] {
	rb.resource.Annotations().Add(annotation)
	return rb
}

// WithEnvironment sets a variable to a string or a ValueProvider.
func (rb *ResourceBuilder[T]) WithEnvironment(name string, value any) *ResourceBuilder[T] {
	switch value.(type) {
	case string, ValueProvider:
	default:
		return rb.fail("environment variable %s has unsupported value type %T", name, value)
	}
	return rb.WithEnvironmentCallback(func(ec *EnvironmentCallbackContext) error {
		ec.Env[name] = value
		return nil
	})
}

// WithEnvironmentCallback contributes variables computed at start time.
func (rb *ResourceBuilder[T]) WithEnvironmentCallback(fn func(*EnvironmentCallbackContext) error) *ResourceBuilder[T] {
	rb.resource.Annotations().Add(&EnvironmentCallbackAnnotation{Callback: fn})
	return rb
}

// WithArgs appends container arguments (strings or ValueProviders).
func (rb *ResourceBuilder[T]) WithArgs(args ...any) *ResourceBuilder[T] {
	for _, a := range args {
		switch a.(type) {
		case string, ValueProvider:
		default:
			return rb.fail("argument has unsupported type %T", a)
		}
	}
	return rb.WithArgsCallback(func(ac *CommandLineArgsCallbackContext) error {
		ac.Args = append(ac.Args, args...)
		return nil
	})
}

// WithArgsCallback contributes arguments computed at start time.
func (rb *ResourceBuilder[T]) WithArgsCallback(fn func(*CommandLineArgsCallbackContext) error) *ResourceBuilder[T] {
	rb.resource.Annotations().Add(&CommandLineArgsCallbackAnnotation{Callback: fn})
	return rb
}

// WithEntrypoint overrides the image entrypoint.
func (rb *ResourceBuilder[T]) WithEntrypoint(entrypoint string) *ResourceBuilder[T] {
	rb.resource.Annotations().removeIf(func(a any) bool {
		_, ok := a.(*EntrypointAnnotation)
		return ok
	})
	rb.resource.Annotations().Add(&EntrypointAnnotation{Entrypoint: entrypoint})
	return rb
}

func (rb *ResourceBuilder[T]) image() (*ContainerImageAnnotation, bool) {
	return LastAnnotation[*ContainerImageAnnotation](rb.resource)
}

// WithImage replaces the image and, when tag is not empty, the tag.
func (rb *ResourceBuilder[T]) WithImage(image, tag string) *ResourceBuilder[T] {
	ann, ok := rb.image()
	if !ok {
		rb.resource.Annotations().Add(&ContainerImageAnnotation{Image: image, Tag: tag})
		return rb
	}
	ann.Image = image
	if tag != "" {
		ann.Tag = tag
	}
	return rb
}

// WithImageTag replaces the image tag.
func (rb *ResourceBuilder[T]) WithImageTag(tag string) *ResourceBuilder[T] {
	ann, ok := rb.image()
	if !ok {
		return rb.fail("cannot set image tag on a resource without an image")
	}
	ann.Tag = tag
	return rb
}

// WithImageRegistry replaces the image registry.
func (rb *ResourceBuilder[T]) WithImageRegistry(registry string) *ResourceBuilder[T] {
	ann, ok := rb.image()
	if !ok {
		return rb.fail("cannot set image registry on a resource without an image")
	}
	ann.Registry = registry
	return rb
}

// WithEndpoint declares a TCP endpoint. port 0 lets the orchestrator pick a
// host port.
func (rb *ResourceBuilder[T]) WithEndpoint(name string, targetPort, port int, scheme string) *ResourceBuilder[T] {
	if scheme == "" {
		scheme = "tcp"
	}
	return rb.addEndpoint(&EndpointAnnotation{
		Name:       name,
		Scheme:     scheme,
		Transport:  "tcp",
		TargetPort: targetPort,
		Port:       port,
		IsProxied:  true,
	})
}

// WithHTTPEndpoint declares an HTTP endpoint.
func (rb *ResourceBuilder[T]) WithHTTPEndpoint(name string, targetPort, port int) *ResourceBuilder[T] {
	if name == "" {
		name = "http"
	}
	return rb.addEndpoint(&EndpointAnnotation{
		Name:       name,
		Scheme:     "http",
		Transport:  "http",
		TargetPort: targetPort,
		Port:       port,
		IsProxied:  true,
	})
}

func (rb *ResourceBuilder[T]) addEndpoint(e *EndpointAnnotation) *ResourceBuilder[T] {
	if e.TargetPort <= 0 || e.TargetPort > 65535 {
		return rb.fail("endpoint %s has invalid target port %d", e.Name, e.TargetPort)
	}
	if e.Port < 0 || e.Port > 65535 {
		return rb.fail("endpoint %s has invalid port %d", e.Name, e.Port)
	}
	if NewEndpointReference(rb.resource, e.Name).Exists() {
		return rb.fail("endpoint with name %q already exists", e.Name)
	}
	rb.resource.Annotations().Add(e)
	return rb
}

// WithEndpointPort changes the host port of an existing endpoint.
func (rb *ResourceBuilder[T]) WithEndpointPort(name string, port int) *ResourceBuilder[T] {
	ann, ok := NewEndpointReference(rb.resource, name).Annotation()
	if !ok {
		return rb.fail("no endpoint named %q", name)
	}
	if port < 0 || port > 65535 {
		return rb.fail("endpoint %s has invalid port %d", name, port)
	}
	ann.Port = port
	return rb
}

// GetEndpoint returns a reference to a named endpoint.
func (rb *ResourceBuilder[T]) GetEndpoint(name string) *EndpointReference {
	return NewEndpointReference(rb.resource, name)
}

// WithVolume mounts a named volume.
func (rb *ResourceBuilder[T]) WithVolume(name, target string, readOnly bool) *ResourceBuilder[T] {
	if target == "" {
		return rb.fail("volume target must not be empty")
	}
	rb.resource.Annotations().Add(&ContainerMountAnnotation{
		Type:     MountTypeVolume,
		Source:   name,
		Target:   target,
		ReadOnly: readOnly,
	})
	return rb
}

// WithBindMount mounts a host path. Relative sources are made absolute.
func (rb *ResourceBuilder[T]) WithBindMount(source, target string, readOnly bool) *ResourceBuilder[T] {
	if source == "" || target == "" {
		return rb.fail("bind mount source and target must not be empty")
	}
	abs, err := filepath.Abs(source)
	if err != nil {
		return rb.fail("bind mount source %s: %v", source, err)
	}
	rb.resource.Annotations().Add(&ContainerMountAnnotation{
		Type:     MountTypeBind,
		Source:   abs,
		Target:   target,
		ReadOnly: readOnly,
	})
	return rb
}

// WithHealthCheck links the resource to a check registered under key.
func (rb *ResourceBuilder[T]) WithHealthCheck(key string) *ResourceBuilder[T] {
	for _, h := range AnnotationsOf[*HealthCheckAnnotation](rb.resource) {
		if h.Key == key {
			return rb
		}
	}
	rb.resource.Annotations().Add(&HealthCheckAnnotation{Key: key})
	return rb
}

// WaitFor delays the start until dependency is healthy.
func (rb *ResourceBuilder[T]) WaitFor(dependency Resource) *ResourceBuilder[T] {
	return rb.wait(dependency, WaitUntilHealthy)
}

// WaitForStart delays the start until dependency is running.
func (rb *ResourceBuilder[T]) WaitForStart(dependency Resource) *ResourceBuilder[T] {
	return rb.wait(dependency, WaitUntilStarted)
}

func (rb *ResourceBuilder[T]) wait(dependency Resource, behavior WaitBehavior) *ResourceBuilder[T] {
	if Resource(rb.resource) == dependency {
		return rb.fail("cannot wait for itself")
	}
	if p, ok := dependency.(ResourceWithParent); ok && p.Parent() == Resource(rb.resource) {
		return rb.fail("cannot wait for child resource %s", dependency.Name())
	}
	for _, w := range AnnotationsOf[*WaitAnnotation](rb.resource) {
		if w.Resource == dependency && w.Behavior == behavior {
			return rb
		}
	}
	rb.resource.Annotations().Add(&WaitAnnotation{Resource: dependency, Behavior: behavior})
	return rb
}

// WithReference injects "ConnectionStrings__<name>" resolved the way the
// container sees the source, and records a reference relationship.
func (rb *ResourceBuilder[T]) WithReference(source ResourceWithConnectionString) *ResourceBuilder[T] {
	return rb.WithReferenceNamed(source, source.Name())
}

// WithReferenceNamed is WithReference with an explicit connection name.
func (rb *ResourceBuilder[T]) WithReferenceNamed(source ResourceWithConnectionString, connectionName string) *ResourceBuilder[T] {
	rb.resource.Annotations().Add(&RelationshipAnnotation{Resource: source, Type: RelationshipReference})
	return rb.WithEnvironment("ConnectionStrings__"+connectionName, ConnectionStringOf(source))
}

// WithParentRelationship records that the resource belongs to parent.
func (rb *ResourceBuilder[T]) WithParentRelationship(parent Resource) *ResourceBuilder[T] {
	rb.resource.Annotations().Add(&RelationshipAnnotation{Resource: parent, Type: RelationshipParent})
	return rb
}

// WithContainerName fixes the runtime container name.
func (rb *ResourceBuilder[T]) WithContainerName(name string) *ResourceBuilder[T] {
	if err := ValidateResourceName(name); err != nil {
		return rb.fail("container name: %v", err)
	}
	rb.resource.Annotations().Add(&ContainerNameAnnotation{Name: name})
	return rb
}

// WithLifetime sets the container lifetime.
func (rb *ResourceBuilder[T]) WithLifetime(lifetime ContainerLifetime) *ResourceBuilder[T] {
	rb.resource.Annotations().Add(&ContainerLifetimeAnnotation{Lifetime: lifetime})
	return rb
}

// WithPrivileged runs the container privileged.
func (rb *ResourceBuilder[T]) WithPrivileged() *ResourceBuilder[T] {
	if !HasAnnotation[*PrivilegedAnnotation](rb.resource) {
		rb.resource.Annotations().Add(&PrivilegedAnnotation{})
	}
	return rb
}

// OnBeforeStart registers a callback run right before the resource starts.
func (rb *ResourceBuilder[T]) OnBeforeStart(fn func(ctx context.Context, ev BeforeStartEvent) error) *ResourceBuilder[T] {
	rb.resource.Annotations().Add(&BeforeStartAnnotation{Callback: fn})
	return rb
}

// ExcludeFromManifest hides the resource from the published manifest.
func (rb *ResourceBuilder[T]) ExcludeFromManifest() *ResourceBuilder[T] {
	if !HasAnnotation[*ExcludeFromManifestAnnotation](rb.resource) {
		rb.resource.Annotations().Add(&ExcludeFromManifestAnnotation{})
	}
	return rb
}

// GetLifetime returns the configured container lifetime.
func GetLifetime(r Resource) ContainerLifetime {
	if l, ok := LastAnnotation[*ContainerLifetimeAnnotation](r); ok {
		return l.Lifetime
	}
	return LifetimeSession
}
