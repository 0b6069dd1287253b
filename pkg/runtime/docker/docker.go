// Package docker implements runtime.Runtime on top of the Docker engine API.
package docker

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/docker/distribution/reference"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"

	"github.com/redbco/redb-apphost/pkg/logger"
	"github.com/redbco/redb-apphost/pkg/runtime"
)

// Runtime talks to the Docker daemon configured by the DOCKER_* environment.
type Runtime struct {
	cli    *client.Client
	logger *logger.Logger
}

// New connects to the daemon and negotiates the API version.
func New(log *logger.Logger) (*Runtime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Runtime{cli: cli, logger: log}, nil
}

// Ping verifies the daemon is reachable.
func (r *Runtime) Ping(ctx context.Context) error {
	if _, err := r.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon is not reachable: %w", err)
	}
	return nil
}

func (r *Runtime) Close() error {
	return r.cli.Close()
}

// NormalizeImage expands short references, e.g. "mongo" becomes
// "docker.io/library/mongo:latest".
func NormalizeImage(ref string) (string, error) {
	named, err := reference.ParseNormalizedNamed(ref)
	if err != nil {
		return "", fmt.Errorf("invalid image reference %q: %w", ref, err)
	}
	return reference.TagNameOnly(named).String(), nil
}

// EnsureImage pulls the image unless it is already present.
func (r *Runtime) EnsureImage(ctx context.Context, ref string) error {
	normalized, err := NormalizeImage(ref)
	if err != nil {
		return err
	}

	if _, _, err := r.cli.ImageInspectWithRaw(ctx, normalized); err == nil {
		return nil
	} else if !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to inspect image %s: %w", normalized, err)
	}

	r.logger.Infof("Pulling image %s", normalized)
	rc, err := r.cli.ImagePull(ctx, normalized, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", normalized, err)
	}
	defer rc.Close()

	// the pull only completes once the progress stream is drained
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", normalized, err)
	}
	r.logger.Infof("Pulled image %s", normalized)
	return nil
}

// CreateNetwork creates a bridge network, or returns the existing one with
// the same name.
func (r *Runtime) CreateNetwork(ctx context.Context, name string, labels map[string]string) (string, error) {
	if existing, err := r.cli.NetworkInspect(ctx, name, network.InspectOptions{}); err == nil {
		return existing.ID, nil
	} else if !errdefs.IsNotFound(err) {
		return "", fmt.Errorf("failed to inspect network %s: %w", name, err)
	}

	resp, err := r.cli.NetworkCreate(ctx, name, network.CreateOptions{
		Driver: "bridge",
		Labels: labels,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create network %s: %w", name, err)
	}
	if resp.Warning != "" {
		r.logger.Warnf("Network %s: %s", name, resp.Warning)
	}
	return resp.ID, nil
}

func (r *Runtime) RemoveNetwork(ctx context.Context, id string) error {
	if err := r.cli.NetworkRemove(ctx, id); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to remove network %s: %w", id, err)
	}
	return nil
}

// StartContainer creates and starts a container. An existing container with
// the same name is reused when spec.Reuse is set and replaced otherwise.
func (r *Runtime) StartContainer(ctx context.Context, spec runtime.ContainerSpec) (string, error) {
	existing, err := r.cli.ContainerInspect(ctx, spec.Name)
	switch {
	case err == nil && spec.Reuse:
		if existing.State != nil && existing.State.Running {
			r.logger.Infof("Reusing running container %s", spec.Name)
			return existing.ID, nil
		}
		if err := r.cli.ContainerStart(ctx, existing.ID, container.StartOptions{}); err != nil {
			return "", fmt.Errorf("failed to start container %s: %w", spec.Name, err)
		}
		return existing.ID, nil
	case err == nil:
		r.logger.Debugf("Removing stale container %s", spec.Name)
		if err := r.RemoveContainer(ctx, existing.ID); err != nil {
			return "", err
		}
	case !errdefs.IsNotFound(err):
		return "", fmt.Errorf("failed to inspect container %s: %w", spec.Name, err)
	}

	cfg, hostCfg, netCfg, err := buildConfigs(spec)
	if err != nil {
		return "", err
	}

	created, err := r.cli.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container %s: %w", spec.Name, err)
	}
	for _, w := range created.Warnings {
		r.logger.Warnf("Container %s: %s", spec.Name, w)
	}

	if err := r.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start container %s: %w", spec.Name, err)
	}
	return created.ID, nil
}

func (r *Runtime) StopContainer(ctx context.Context, id string, timeout time.Duration) error {
	secs := int(timeout.Seconds())
	if err := r.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &secs}); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to stop container %s: %w", id, err)
	}
	return nil
}

func (r *Runtime) RemoveContainer(ctx context.Context, id string) error {
	err := r.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to remove container %s: %w", id, err)
	}
	return nil
}

func (r *Runtime) InspectContainer(ctx context.Context, id string) (runtime.ContainerStatus, error) {
	info, err := r.cli.ContainerInspect(ctx, id)
	if err != nil {
		return runtime.ContainerStatus{}, fmt.Errorf("failed to inspect container %s: %w", id, err)
	}
	var ports []runtime.PortBinding
	if info.NetworkSettings != nil {
		ports = publishedPorts(info.NetworkSettings.Ports)
	}
	if info.State == nil {
		return runtime.ContainerStatus{Status: "unknown", Ports: ports}, nil
	}
	return runtime.ContainerStatus{
		Running:  info.State.Running,
		ExitCode: info.State.ExitCode,
		Status:   info.State.Status,
		Ports:    ports,
	}, nil
}

// publishedPorts flattens the engine's port map, skipping unbound ports.
func publishedPorts(pm nat.PortMap) []runtime.PortBinding {
	var out []runtime.PortBinding
	for port, bindings := range pm {
		for _, b := range bindings {
			hostPort, err := strconv.Atoi(b.HostPort)
			if err != nil || hostPort == 0 {
				continue
			}
			out = append(out, runtime.PortBinding{
				HostIP:        b.HostIP,
				HostPort:      hostPort,
				ContainerPort: port.Int(),
				Protocol:      port.Proto(),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ContainerPort != out[j].ContainerPort {
			return out[i].ContainerPort < out[j].ContainerPort
		}
		return out[i].HostIP < out[j].HostIP
	})
	return out
}

func buildConfigs(spec runtime.ContainerSpec) (*container.Config, *container.HostConfig, *network.NetworkingConfig, error) {
	img, err := NormalizeImage(spec.Image)
	if err != nil {
		return nil, nil, nil, err
	}

	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for _, p := range spec.Ports {
		proto := p.Protocol
		if proto == "" {
			proto = "tcp"
		}
		port, err := nat.NewPort(proto, strconv.Itoa(p.ContainerPort))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("invalid port %d/%s: %w", p.ContainerPort, proto, err)
		}
		exposed[port] = struct{}{}
		hostIP := p.HostIP
		if hostIP == "" {
			hostIP = "127.0.0.1"
		}
		binding := nat.PortBinding{HostIP: hostIP}
		if p.HostPort > 0 {
			binding.HostPort = strconv.Itoa(p.HostPort)
		}
		bindings[port] = append(bindings[port], binding)
	}

	cfg := &container.Config{
		Image:        img,
		Env:          spec.EnvList(),
		ExposedPorts: exposed,
		Labels:       spec.Labels,
	}
	if len(spec.Entrypoint) > 0 {
		cfg.Entrypoint = spec.Entrypoint
	}
	if len(spec.Args) > 0 {
		cfg.Cmd = spec.Args
	}

	hostCfg := &container.HostConfig{
		PortBindings: bindings,
		Privileged:   spec.Privileged,
	}
	for _, m := range spec.Mounts {
		mt := mount.TypeVolume
		if m.Type == runtime.MountBind {
			mt = mount.TypeBind
		}
		hostCfg.Mounts = append(hostCfg.Mounts, mount.Mount{
			Type:     mt,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	var netCfg *network.NetworkingConfig
	if spec.Network != "" {
		hostCfg.NetworkMode = container.NetworkMode(spec.Network)
		netCfg = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				spec.Network: {Aliases: spec.Aliases},
			},
		}
	}
	return cfg, hostCfg, netCfg, nil
}
