// Package orchestrator runs an application model against a container runtime:
// it allocates ports, starts resources in dependency order, gates waiters on
// readiness, monitors health and tears everything down again.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/redbco/redb-apphost/pkg/appmodel"
	"github.com/redbco/redb-apphost/pkg/logger"
	"github.com/redbco/redb-apphost/pkg/runtime"
)

// Default option values
const (
	DefaultHealthCheckInterval = 2 * time.Second
	DefaultStartupTimeout      = 5 * time.Minute
	DefaultStopTimeout         = 10 * time.Second
)

// Options tunes an Orchestrator
type Options struct {
	HealthCheckInterval time.Duration
	StartupTimeout      time.Duration
	StopTimeout         time.Duration
	// StatusAddress enables the gRPC health server when not empty.
	StatusAddress string
	// WorkDir holds generated files; a temporary directory when empty.
	WorkDir string
}

type entry struct {
	resource appmodel.Resource
	snap     ResourceSnapshot
	changed  chan struct{}
}

type startedContainer struct {
	name       string
	id         string
	persistent bool
}

// Orchestrator runs one application.
type Orchestrator struct {
	app    *appmodel.Application
	rt     runtime.Runtime
	logger *logger.Logger
	opts   Options

	runID       string
	networkName string
	networkID   string
	workDir     string

	mu      sync.RWMutex
	entries map[string]*entry

	startedMu sync.Mutex
	started   []startedContainer

	subsMu      sync.Mutex
	subscribers []chan ResourceEvent
	closed      bool

	monitorCtx    context.Context
	cancelMonitor context.CancelFunc
	monitors      sync.WaitGroup

	status *statusServer
}

// New creates an orchestrator for app. Nothing is started until Start.
func New(app *appmodel.Application, rt runtime.Runtime, log *logger.Logger, opts Options) *Orchestrator {
	if opts.HealthCheckInterval <= 0 {
		opts.HealthCheckInterval = DefaultHealthCheckInterval
	}
	if opts.StartupTimeout <= 0 {
		opts.StartupTimeout = DefaultStartupTimeout
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if log == nil {
		log = app.Logger()
	}

	runID := uuid.New().String()
	o := &Orchestrator{
		app:         app,
		rt:          rt,
		logger:      log,
		opts:        opts,
		runID:       runID,
		networkName: appmodel.VolumeName("redb-apphost", app.Name(), ""),
		entries:     make(map[string]*entry),
	}
	for _, r := range app.Resources() {
		o.entries[key(r.Name())] = &entry{
			resource: r,
			snap: ResourceSnapshot{
				Name:   r.Name(),
				State:  StateNotStarted,
				Health: HealthUnknown,
			},
			changed: make(chan struct{}),
		}
	}
	return o
}

func key(name string) string { return strings.ToLower(name) }

// RunID identifies this run in container labels and names.
func (o *Orchestrator) RunID() string { return o.runID }

// StatusAddr returns the address of the status server, if running.
func (o *Orchestrator) StatusAddr() string {
	if o.status == nil {
		return ""
	}
	return o.status.addr().String()
}

// Run starts the application, blocks until ctx is done and then stops it.
func (o *Orchestrator) Run(ctx context.Context) error {
	startErr := o.Start(ctx)
	if startErr == nil {
		<-ctx.Done()
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), o.opts.StopTimeout*time.Duration(len(o.entries)+1))
	defer cancel()
	return errors.Join(startErr, o.Stop(stopCtx))
}

// Start allocates endpoints and starts every resource in dependency order.
// Resources in one level start concurrently. It returns the joined errors of
// every resource that failed to start.
func (o *Orchestrator) Start(ctx context.Context) error {
	resources := o.app.Resources()

	order, err := levels(resources)
	if err != nil {
		return err
	}
	if err := allocateEndpoints(resources); err != nil {
		return err
	}

	o.workDir = o.opts.WorkDir
	if o.workDir == "" {
		o.workDir = filepath.Join(os.TempDir(), "redb-apphost", appmodel.VolumeName(o.app.Name(), o.runID[:8], ""))
	}
	if err := os.MkdirAll(o.workDir, 0o700); err != nil {
		return fmt.Errorf("failed to create work directory: %w", err)
	}

	if o.opts.StatusAddress != "" {
		s, err := startStatusServer(o.opts.StatusAddress, o.logger)
		if err != nil {
			return err
		}
		o.status = s
	}

	o.monitorCtx, o.cancelMonitor = context.WithCancel(context.Background())

	if o.needsNetwork(resources) {
		id, err := o.rt.CreateNetwork(ctx, o.networkName, map[string]string{
			runtime.LabelApp: o.app.Name(),
		})
		if err != nil {
			return err
		}
		o.networkID = id
	}

	o.logger.Infof("Starting application %s (run %s, %d resources)", o.app.Name(), o.runID, len(resources))

	var (
		failMu   sync.Mutex
		failures []error
	)
	for _, level := range order {
		g, gctx := errgroup.WithContext(ctx)
		for _, r := range level {
			r := r
			g.Go(func() error {
				if err := o.startResource(gctx, r); err != nil {
					o.fail(r, err)
					failMu.Lock()
					failures = append(failures, fmt.Errorf("%s: %w", r.Name(), err))
					failMu.Unlock()
				}
				return gctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	if len(failures) > 0 {
		return errors.Join(failures...)
	}
	o.logger.Infof("Application %s started", o.app.Name())
	return nil
}

func (o *Orchestrator) needsNetwork(resources []appmodel.Resource) bool {
	for _, r := range resources {
		if appmodel.IsContainer(r) {
			return true
		}
	}
	return false
}

func (o *Orchestrator) startResource(ctx context.Context, r appmodel.Resource) error {
	switch {
	case appmodel.IsContainer(r):
		return o.startContainer(ctx, r)
	default:
		if p, ok := r.(*appmodel.ParameterResource); ok {
			if _, err := p.GetValue(ctx); err != nil {
				return err
			}
			o.update(r, func(s *ResourceSnapshot) {
				s.State = StateRunning
				s.Health = HealthHealthy
				s.StartedAt = time.Now()
			})
			return nil
		}
		if c, ok := r.(appmodel.ResourceWithParent); ok {
			if err := o.waitFor(ctx, r, c.Parent(), appmodel.WaitUntilStarted); err != nil {
				return err
			}
		}
		if err := o.waitDependencies(ctx, r); err != nil {
			return err
		}
		o.update(r, func(s *ResourceSnapshot) {
			s.State = StateRunning
			s.StartedAt = time.Now()
		})
		o.startMonitor(r)
		return nil
	}
}

func (o *Orchestrator) waitDependencies(ctx context.Context, r appmodel.Resource) error {
	waits := appmodel.AnnotationsOf[*appmodel.WaitAnnotation](r)
	if len(waits) == 0 {
		return nil
	}
	o.update(r, func(s *ResourceSnapshot) { s.State = StateWaiting })
	for _, w := range waits {
		if err := o.waitFor(ctx, r, w.Resource, w.Behavior); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) startContainer(ctx context.Context, r appmodel.Resource) error {
	if err := o.waitDependencies(ctx, r); err != nil {
		return err
	}
	o.update(r, func(s *ResourceSnapshot) { s.State = StateStarting })

	for _, a := range appmodel.AnnotationsOf[*appmodel.BeforeStartAnnotation](r) {
		ev := appmodel.BeforeStartEvent{Application: o.app, Resource: r, WorkDir: o.workDir}
		if err := a.Callback(ctx, ev); err != nil {
			return fmt.Errorf("before start: %w", err)
		}
	}

	spec, err := o.containerSpec(ctx, r)
	if err != nil {
		return err
	}

	if err := o.rt.EnsureImage(ctx, spec.Image); err != nil {
		return err
	}

	log := o.logger.Named(r.Name())
	log.Infof("Starting container %s (%s)", spec.Name, spec.Image)
	id, err := o.rt.StartContainer(ctx, spec)
	if err != nil {
		return err
	}

	o.startedMu.Lock()
	o.started = append(o.started, startedContainer{name: spec.Name, id: id, persistent: spec.Reuse})
	o.startedMu.Unlock()

	if spec.Reuse {
		st, err := o.rt.InspectContainer(ctx, id)
		if err != nil {
			return err
		}
		adoptPublishedPorts(r, st, log)
	}

	endpoints := make(map[string]string)
	for _, e := range appmodel.AnnotationsOf[*appmodel.EndpointAnnotation](r) {
		if url, err := appmodel.NewEndpointReference(r, e.Name).GetValue(ctx); err == nil {
			endpoints[e.Name] = url
		}
	}

	o.update(r, func(s *ResourceSnapshot) {
		s.State = StateRunning
		s.ContainerID = id
		s.ContainerName = spec.Name
		s.Endpoints = endpoints
		s.StartedAt = time.Now()
	})
	log.Infof("Container %s started", spec.Name)
	o.startMonitor(r)
	return nil
}

// containerSpec resolves everything about r the way a container on the run
// network sees it.
func (o *Orchestrator) containerSpec(ctx context.Context, r appmodel.Resource) (runtime.ContainerSpec, error) {
	img, _ := appmodel.LastAnnotation[*appmodel.ContainerImageAnnotation](r)

	netCtx := appmodel.WithContainerNetwork(ctx)
	env, err := appmodel.ResolveEnvironment(netCtx, r)
	if err != nil {
		return runtime.ContainerSpec{}, err
	}
	args, err := appmodel.ResolveArgs(netCtx, r)
	if err != nil {
		return runtime.ContainerSpec{}, err
	}

	persistent := appmodel.GetLifetime(r) == appmodel.LifetimePersistent
	spec := runtime.ContainerSpec{
		Name:       o.containerName(r, persistent),
		Image:      img.Reference(),
		Env:        env,
		Args:       args,
		Network:    o.networkName,
		Aliases:    []string{appmodel.ContainerHostName(r)},
		Privileged: appmodel.HasAnnotation[*appmodel.PrivilegedAnnotation](r),
		Reuse:      persistent,
		Labels: map[string]string{
			runtime.LabelApp:      o.app.Name(),
			runtime.LabelResource: r.Name(),
		},
	}
	if !persistent {
		spec.Labels[runtime.LabelRun] = o.runID
	}

	if ep, ok := appmodel.LastAnnotation[*appmodel.EntrypointAnnotation](r); ok {
		spec.Entrypoint = []string{ep.Entrypoint}
	}

	for _, e := range appmodel.AnnotationsOf[*appmodel.EndpointAnnotation](r) {
		alloc, ok := e.Allocated()
		if !ok {
			return spec, fmt.Errorf("endpoint %s: %w", e.Name, appmodel.ErrEndpointNotAllocated)
		}
		spec.Ports = append(spec.Ports, runtime.PortBinding{
			HostIP:        "127.0.0.1",
			HostPort:      alloc.Port,
			ContainerPort: e.TargetPort,
			Protocol:      "tcp",
		})
	}

	for _, m := range appmodel.AnnotationsOf[*appmodel.ContainerMountAnnotation](r) {
		mt := runtime.MountVolume
		if m.Type == appmodel.MountTypeBind {
			mt = runtime.MountBind
		}
		spec.Mounts = append(spec.Mounts, runtime.Mount{
			Type:     mt,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}
	return spec, nil
}

func (o *Orchestrator) containerName(r appmodel.Resource, persistent bool) string {
	if n, ok := appmodel.LastAnnotation[*appmodel.ContainerNameAnnotation](r); ok {
		return n.Name
	}
	if persistent {
		return appmodel.VolumeName(o.app.Name(), r.Name(), "")
	}
	return appmodel.VolumeName(o.app.Name(), r.Name(), o.runID[:8])
}

// waitFor blocks until dep reaches behavior, fails, or StartupTimeout passes.
func (o *Orchestrator) waitFor(ctx context.Context, waiter, dep appmodel.Resource, behavior appmodel.WaitBehavior) error {
	ctx, cancel := context.WithTimeout(ctx, o.opts.StartupTimeout)
	defer cancel()

	logged := false
	for {
		snap, changed, ok := o.watch(dep.Name())
		if !ok {
			return fmt.Errorf("%w: %s is not part of the application", ErrDependencyFailed, dep.Name())
		}

		switch {
		case snap.State.IsTerminal():
			return fmt.Errorf("%w: %s is %s", ErrDependencyFailed, dep.Name(), snap.State)
		case snap.State == StateRunning && behavior == appmodel.WaitUntilStarted:
			return nil
		case snap.State == StateRunning && snap.Health == HealthHealthy:
			return nil
		}

		if !logged {
			o.logger.Named(waiter.Name()).Infof("Waiting for %s to be %s", dep.Name(), behavior)
			logged = true
		}

		select {
		case <-changed:
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: %s did not become %s within %s", ErrDependencyFailed, dep.Name(), behavior, o.opts.StartupTimeout)
			}
			return ctx.Err()
		}
	}
}

func (o *Orchestrator) fail(r appmodel.Resource, err error) {
	o.logger.Named(r.Name()).Errorf("Failed to start: %v", err)
	o.update(r, func(s *ResourceSnapshot) {
		s.State = StateFailedToStart
		s.Health = HealthUnhealthy
		s.Error = err.Error()
	})
}

// Stop stops health monitoring, then stops and removes containers in reverse
// start order. Persistent containers are left running.
func (o *Orchestrator) Stop(ctx context.Context) error {
	if o.cancelMonitor != nil {
		o.cancelMonitor()
	}
	o.monitors.Wait()

	o.startedMu.Lock()
	started := append([]startedContainer(nil), o.started...)
	o.started = nil
	o.startedMu.Unlock()

	var (
		errs      []error
		keptAlive bool
	)
	for i := len(started) - 1; i >= 0; i-- {
		c := started[i]
		if c.persistent {
			o.logger.Infof("Leaving persistent container %s running", c.name)
			keptAlive = true
			continue
		}
		o.logger.Infof("Stopping container %s", c.name)
		if err := o.rt.StopContainer(ctx, c.id, o.opts.StopTimeout); err != nil {
			errs = append(errs, err)
		}
		if err := o.rt.RemoveContainer(ctx, c.id); err != nil {
			errs = append(errs, err)
		}
	}

	if o.networkID != "" && !keptAlive {
		if err := o.rt.RemoveNetwork(ctx, o.networkID); err != nil {
			errs = append(errs, err)
		}
		o.networkID = ""
	}

	if o.workDir != "" && o.opts.WorkDir == "" && !keptAlive {
		if err := os.RemoveAll(o.workDir); err != nil {
			o.logger.Warnf("Failed to remove work directory %s: %v", o.workDir, err)
		}
	}

	if o.status != nil {
		o.status.stop()
	}

	o.subsMu.Lock()
	if !o.closed {
		o.closed = true
		for _, ch := range o.subscribers {
			close(ch)
		}
		o.subscribers = nil
	}
	o.subsMu.Unlock()

	o.logger.Infof("Application %s stopped", o.app.Name())
	return errors.Join(errs...)
}

// Snapshot returns the current state of one resource.
func (o *Orchestrator) Snapshot(name string) (ResourceSnapshot, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.entries[key(name)]
	if !ok {
		return ResourceSnapshot{}, false
	}
	return e.snap, true
}

// Snapshots returns the state of every resource in application order.
func (o *Orchestrator) Snapshots() []ResourceSnapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]ResourceSnapshot, 0, len(o.entries))
	for _, r := range o.app.Resources() {
		out = append(out, o.entries[key(r.Name())].snap)
	}
	return out
}

// Subscribe returns a channel receiving every snapshot change. Slow
// subscribers miss events rather than blocking the orchestrator. The channel
// is closed by Stop.
func (o *Orchestrator) Subscribe() <-chan ResourceEvent {
	ch := make(chan ResourceEvent, 100)
	o.subsMu.Lock()
	defer o.subsMu.Unlock()
	if o.closed {
		close(ch)
		return ch
	}
	o.subscribers = append(o.subscribers, ch)
	return ch
}

func (o *Orchestrator) watch(name string) (ResourceSnapshot, <-chan struct{}, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.entries[key(name)]
	if !ok {
		return ResourceSnapshot{}, nil, false
	}
	return e.snap, e.changed, true
}

func (o *Orchestrator) update(r appmodel.Resource, fn func(*ResourceSnapshot)) {
	o.mu.Lock()
	e, ok := o.entries[key(r.Name())]
	if !ok {
		o.mu.Unlock()
		return
	}
	before := e.snap
	fn(&e.snap)
	after := e.snap
	if after.sameAs(before) {
		o.mu.Unlock()
		return
	}
	close(e.changed)
	e.changed = make(chan struct{})
	o.mu.Unlock()

	if after.State != before.State || after.Health != before.Health {
		o.logger.Named(r.Name()).Debugf("State %s, health %s", after.State, after.Health)
	}
	o.publish(ResourceEvent{Time: time.Now(), Snapshot: after})
	o.refreshStatus()
}

func (o *Orchestrator) publish(ev ResourceEvent) {
	o.subsMu.Lock()
	defer o.subsMu.Unlock()
	if o.closed {
		return
	}
	for _, ch := range o.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (o *Orchestrator) refreshStatus() {
	if o.status == nil {
		return
	}
	all := true
	for _, snap := range o.Snapshots() {
		serving := snap.State == StateRunning && snap.Health == HealthHealthy
		o.status.set(snap.Name, serving)
		all = all && serving
	}
	o.status.set("", all)
}
