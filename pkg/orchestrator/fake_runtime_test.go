package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redbco/redb-apphost/pkg/runtime"
)

// fakeRuntime records calls and keeps container state in memory.
type fakeRuntime struct {
	mu        sync.Mutex
	nextID    int
	images    []string
	networks  map[string]string
	specs     map[string]runtime.ContainerSpec
	startSeq  []string
	status    map[string]runtime.ContainerStatus
	names     map[string]string
	reused    []string
	stopped   []string
	removed   []string
	failStart map[string]error
	onStart   func(spec runtime.ContainerSpec)
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		networks:  make(map[string]string),
		specs:     make(map[string]runtime.ContainerSpec),
		status:    make(map[string]runtime.ContainerStatus),
		names:     make(map[string]string),
		failStart: make(map[string]error),
	}
}

func (f *fakeRuntime) EnsureImage(_ context.Context, image string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images = append(f.images, image)
	return nil
}

func (f *fakeRuntime) CreateNetwork(_ context.Context, name string, _ map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := "net-" + name
	f.networks[id] = name
	return id, nil
}

func (f *fakeRuntime) RemoveNetwork(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.networks, id)
	return nil
}

func (f *fakeRuntime) StartContainer(_ context.Context, spec runtime.ContainerSpec) (string, error) {
	f.mu.Lock()
	alias := spec.Aliases[0]
	if err := f.failStart[alias]; err != nil {
		f.mu.Unlock()
		return "", err
	}
	// A reused container keeps the ports it was created with.
	if id, ok := f.names[spec.Name]; ok && spec.Reuse {
		if st, ok := f.status[id]; ok {
			st.Running, st.Status = true, "running"
			f.status[id] = st
			f.reused = append(f.reused, spec.Name)
			f.mu.Unlock()
			return id, nil
		}
	}
	f.nextID++
	id := fmt.Sprintf("c%d", f.nextID)
	f.specs[alias] = spec
	f.names[spec.Name] = id
	f.startSeq = append(f.startSeq, alias)
	f.status[id] = runtime.ContainerStatus{
		Running: true,
		Status:  "running",
		Ports:   append([]runtime.PortBinding(nil), spec.Ports...),
	}
	hook := f.onStart
	f.mu.Unlock()

	if hook != nil {
		hook(spec)
	}
	return id, nil
}

func (f *fakeRuntime) StopContainer(_ context.Context, id string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, id)
	st := f.status[id]
	st.Running, st.Status = false, "exited"
	f.status[id] = st
	return nil
}

func (f *fakeRuntime) RemoveContainer(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	delete(f.status, id)
	return nil
}

func (f *fakeRuntime) InspectContainer(_ context.Context, id string) (runtime.ContainerStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.status[id]
	if !ok {
		return runtime.ContainerStatus{}, fmt.Errorf("no such container %s", id)
	}
	return st, nil
}

func (f *fakeRuntime) Close() error { return nil }

func (f *fakeRuntime) exit(id string, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.status[id]
	st.Running, st.ExitCode, st.Status = false, code, "exited"
	f.status[id] = st
}

func (f *fakeRuntime) spec(alias string) (runtime.ContainerSpec, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.specs[alias]
	return s, ok
}

func (f *fakeRuntime) sequence() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.startSeq...)
}

func (f *fakeRuntime) removedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removed...)
}

func (f *fakeRuntime) networkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.networks)
}

func (f *fakeRuntime) reusedNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.reused...)
}
