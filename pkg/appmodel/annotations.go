package appmodel

import (
	"context"
)

// ContainerImageAnnotation names the image a container resource runs.
type ContainerImageAnnotation struct {
	Registry string
	Image    string
	Tag      string
}

// Reference returns registry/image:tag, omitting empty parts.
func (a *ContainerImageAnnotation) Reference() string {
	ref := a.Image
	if a.Tag != "" {
		ref += ":" + a.Tag
	}
	if a.Registry != "" {
		ref = a.Registry + "/" + ref
	}
	return ref
}

// EnvironmentCallbackContext is passed to environment callbacks. Values
// stored in Env are strings or ValueProviders.
type EnvironmentCallbackContext struct {
	Context          context.Context
	ExecutionContext ExecutionContext
	Resource         Resource
	Env              map[string]any
}

// EnvironmentCallbackAnnotation contributes environment variables.
type EnvironmentCallbackAnnotation struct {
	Callback func(*EnvironmentCallbackContext) error
}

// CommandLineArgsCallbackContext is passed to argument callbacks. Values
// appended to Args are strings or ValueProviders.
type CommandLineArgsCallbackContext struct {
	Context          context.Context
	ExecutionContext ExecutionContext
	Resource         Resource
	Args             []any
}

// CommandLineArgsCallbackAnnotation contributes container arguments.
type CommandLineArgsCallbackAnnotation struct {
	Callback func(*CommandLineArgsCallbackContext) error
}

// EntrypointAnnotation overrides the image entrypoint.
type EntrypointAnnotation struct {
	Entrypoint string
}

// MountType is the kind of a container mount.
type MountType string

const (
	MountTypeVolume MountType = "volume"
	MountTypeBind   MountType = "bind"
)

// ContainerMountAnnotation mounts a named volume or a host path.
type ContainerMountAnnotation struct {
	Type     MountType
	Source   string
	Target   string
	ReadOnly bool
}

// HealthCheckAnnotation links a resource to a registered health check.
type HealthCheckAnnotation struct {
	Key string
}

// WaitBehavior is the state a waiter needs its dependency to reach.
type WaitBehavior string

const (
	WaitUntilHealthy WaitBehavior = "healthy"
	WaitUntilStarted WaitBehavior = "started"
)

// WaitAnnotation delays the start of a resource until Resource reaches Behavior.
type WaitAnnotation struct {
	Resource Resource
	Behavior WaitBehavior
}

// Relationship types
const (
	RelationshipParent    = "Parent"
	RelationshipReference = "Reference"
)

// RelationshipAnnotation records a link to another resource.
type RelationshipAnnotation struct {
	Resource Resource
	Type     string
}

// ContainerNameAnnotation fixes the container name used by the runtime.
type ContainerNameAnnotation struct {
	Name string
}

// ContainerLifetime controls whether a container outlives the app host run.
type ContainerLifetime string

const (
	LifetimeSession    ContainerLifetime = "session"
	LifetimePersistent ContainerLifetime = "persistent"
)

// ContainerLifetimeAnnotation sets the lifetime of a container.
type ContainerLifetimeAnnotation struct {
	Lifetime ContainerLifetime
}

// PrivilegedAnnotation runs the container in privileged mode.
type PrivilegedAnnotation struct{}

// BeforeStartEvent is delivered right before a resource is started.
type BeforeStartEvent struct {
	Application *Application
	Resource    Resource
	// WorkDir is a run-scoped directory for generated files.
	WorkDir string
}

// BeforeStartAnnotation runs a callback before the resource starts.
type BeforeStartAnnotation struct {
	Callback func(ctx context.Context, ev BeforeStartEvent) error
}

// ExcludeFromManifestAnnotation hides a resource from the manifest.
type ExcludeFromManifestAnnotation struct{}
