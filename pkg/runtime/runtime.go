// Package runtime abstracts the container engine the orchestrator drives.
package runtime

import (
	"context"
	"sort"
	"time"
)

// Labels put on every object created for a run
const (
	LabelRun      = "redb.apphost.run"
	LabelApp      = "redb.apphost.app"
	LabelResource = "redb.apphost.resource"
)

// MountType mirrors the mount kinds of the application model
type MountType string

const (
	MountVolume MountType = "volume"
	MountBind   MountType = "bind"
)

// PortBinding publishes a container port on the host.
type PortBinding struct {
	HostIP        string
	HostPort      int
	ContainerPort int
	Protocol      string
}

// Mount attaches a volume or host path to a container.
type Mount struct {
	Type     MountType
	Source   string
	Target   string
	ReadOnly bool
}

// ContainerSpec is everything needed to create and start a container.
type ContainerSpec struct {
	Name       string
	Image      string
	Env        map[string]string
	Entrypoint []string
	Args       []string
	Ports      []PortBinding
	Mounts     []Mount
	Network    string
	Aliases    []string
	Privileged bool
	Labels     map[string]string
	// Reuse keeps an existing container with the same name instead of
	// replacing it.
	Reuse bool
}

// EnvList returns the environment as sorted KEY=VALUE pairs.
func (s ContainerSpec) EnvList() []string {
	out := make([]string, 0, len(s.Env))
	for k, v := range s.Env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// ContainerStatus is the observed state of a container.
type ContainerStatus struct {
	Running  bool
	ExitCode int
	Status   string
	// Ports are the host bindings the engine actually published.
	Ports []PortBinding
}

// PublishedPort returns the host port bound to containerPort, if any.
func (s ContainerStatus) PublishedPort(containerPort int) (int, bool) {
	for _, p := range s.Ports {
		if p.ContainerPort == containerPort && p.HostPort > 0 {
			return p.HostPort, true
		}
	}
	return 0, false
}

// Runtime creates and manages containers.
type Runtime interface {
	EnsureImage(ctx context.Context, image string) error
	CreateNetwork(ctx context.Context, name string, labels map[string]string) (string, error)
	RemoveNetwork(ctx context.Context, id string) error
	StartContainer(ctx context.Context, spec ContainerSpec) (string, error)
	StopContainer(ctx context.Context, id string, timeout time.Duration) error
	RemoveContainer(ctx context.Context, id string) error
	InspectContainer(ctx context.Context, id string) (ContainerStatus, error)
	Close() error
}
