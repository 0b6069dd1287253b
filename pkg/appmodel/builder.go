package appmodel

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/redbco/redb-apphost/pkg/config"
	"github.com/redbco/redb-apphost/pkg/health"
	"github.com/redbco/redb-apphost/pkg/logger"
)

// Operation is what the app host is doing with the model.
type Operation int

const (
	// OperationRun executes the model against a container runtime.
	OperationRun Operation = iota
	// OperationPublish renders the model to a deployment manifest.
	OperationPublish
)

func (o Operation) String() string {
	if o == OperationPublish {
		return "publish"
	}
	return "run"
}

// ExecutionContext tells resources how the model is being used.
type ExecutionContext struct {
	Operation Operation
}

func (e ExecutionContext) IsRunMode() bool { return e.Operation == OperationRun }

func (e ExecutionContext) IsPublishMode() bool { return e.Operation == OperationPublish }

// BuilderOptions configures a Builder
type BuilderOptions struct {
	AppName   string
	Operation Operation
	Config    *config.Config
	Secrets   SecretStore
	Logger    *logger.Logger
}

// Builder collects resources. Configuration mistakes are recorded rather than
// panicking and are returned together from Build.
type Builder struct {
	appName string
	exec    ExecutionContext
	config  *config.Config
	secrets SecretStore
	log     *logger.Logger
	health  *health.Checker

	mu        sync.Mutex
	resources []Resource
	byName    map[string]Resource
	errs      []error
}

// NewBuilder creates an empty application builder
func NewBuilder(opts BuilderOptions) *Builder {
	if opts.AppName == "" {
		opts.AppName = "apphost"
	}
	if opts.Config == nil {
		opts.Config = config.New()
	}
	if opts.Logger == nil {
		opts.Logger = logger.New("apphost", "")
	}
	return &Builder{
		appName: opts.AppName,
		exec:    ExecutionContext{Operation: opts.Operation},
		config:  opts.Config,
		secrets: opts.Secrets,
		log:     opts.Logger,
		health:  health.NewChecker(),
		byName:  make(map[string]Resource),
	}
}

func (b *Builder) AppName() string { return b.appName }

func (b *Builder) ExecutionContext() ExecutionContext { return b.exec }

func (b *Builder) Config() *config.Config { return b.config }

func (b *Builder) Logger() *logger.Logger { return b.log }

// HealthChecks is the registry hosting packages add their probes to.
func (b *Builder) HealthChecks() *health.Checker { return b.health }

// AddError records a configuration error reported by Build.
func (b *Builder) AddError(err error) {
	if err == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errs = append(b.errs, err)
}

// Errors returns the errors recorded so far.
func (b *Builder) Errors() []error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]error(nil), b.errs...)
}

// Resources returns the resources in the order they were added.
func (b *Builder) Resources() []Resource {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Resource(nil), b.resources...)
}

// FindResource looks a resource up by name, ignoring case.
func (b *Builder) FindResource(name string) (Resource, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.byName[strings.ToLower(name)]
	return r, ok
}

// AddResource validates and registers r and returns a builder for it. An
// invalid or duplicate name is recorded and the resource is not registered.
func AddResource[T Resource](b *Builder, r T) *ResourceBuilder[T] {
	rb := &ResourceBuilder[T]{builder: b, resource: r}

	name := r.Name()
	if err := ValidateResourceName(name); err != nil {
		b.AddError(err)
		return rb
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	key := strings.ToLower(name)
	if _, exists := b.byName[key]; exists {
		b.errs = append(b.errs, fmt.Errorf("%w: cannot add resource %q, a resource with that name already exists", ErrDuplicateResource, name))
		return rb
	}
	b.byName[key] = r
	b.resources = append(b.resources, r)
	return rb
}

// AddParameter adds a parameter whose value comes from configuration.
func (b *Builder) AddParameter(name string, secret bool) *ResourceBuilder[*ParameterResource] {
	return AddResource(b, b.newParameter(name, secret))
}

// AddParameterWithValue adds a parameter with a fixed value.
func (b *Builder) AddParameterWithValue(name, value string, secret bool) *ResourceBuilder[*ParameterResource] {
	p := b.newParameter(name, secret)
	p.explicit = &value
	return AddResource(b, p)
}

// CreateDefaultPasswordParameter adds "<name>-password", a secret parameter
// generated on first use and persisted in the secret store.
func CreateDefaultPasswordParameter(b *Builder, name string, special bool) *ParameterResource {
	p := b.newParameter(name+"-password", true)
	p.Default = PasswordDefault(special)
	return AddResource(b, p).Resource()
}

// CreateGeneratedParameter adds a parameter generated with the given policy.
func CreateGeneratedParameter(b *Builder, name string, secret bool, def *GenerateParameterDefault) *ParameterResource {
	p := b.newParameter(name, secret)
	p.Default = def
	return AddResource(b, p).Resource()
}

func (b *Builder) newParameter(name string, secret bool) *ParameterResource {
	return &ParameterResource{
		name:    name,
		Secret:  secret,
		config:  b.config,
		secrets: b.secrets,
		log:     b.log,
	}
}

// AddContainer adds a plain container resource.
func (b *Builder) AddContainer(name, image, tag string) *ResourceBuilder[*ContainerResource] {
	c := NewContainerResource(name)
	c.Annotations().Add(&ContainerImageAnnotation{Image: image, Tag: tag})
	return AddResource(b, c)
}

// Build validates the model and returns the application.
func (b *Builder) Build() (*Application, error) {
	b.mu.Lock()
	errs := append([]error(nil), b.errs...)
	resources := append([]Resource(nil), b.resources...)
	b.mu.Unlock()

	for _, r := range resources {
		for _, w := range AnnotationsOf[*WaitAnnotation](r) {
			if _, ok := b.FindResource(w.Resource.Name()); !ok {
				errs = append(errs, fmt.Errorf("resource %s waits for %s which is not part of the application", r.Name(), w.Resource.Name()))
			}
		}
		for _, h := range AnnotationsOf[*HealthCheckAnnotation](r) {
			if !b.health.IsRegistered(h.Key) {
				errs = append(errs, fmt.Errorf("resource %s references unknown health check %q", r.Name(), h.Key))
			}
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return &Application{
		name:      b.appName,
		exec:      b.exec,
		config:    b.config,
		log:       b.log,
		health:    b.health,
		resources: resources,
	}, nil
}

// Application is a built, immutable set of resources.
type Application struct {
	name      string
	exec      ExecutionContext
	config    *config.Config
	log       *logger.Logger
	health    *health.Checker
	resources []Resource
}

func (a *Application) Name() string { return a.name }

func (a *Application) ExecutionContext() ExecutionContext { return a.exec }

func (a *Application) Config() *config.Config { return a.config }

func (a *Application) Logger() *logger.Logger { return a.log }

func (a *Application) HealthChecks() *health.Checker { return a.health }

// Resources returns the resources in the order they were added.
func (a *Application) Resources() []Resource {
	return append([]Resource(nil), a.resources...)
}

// Resource looks a resource up by name, ignoring case.
func (a *Application) Resource(name string) (Resource, bool) {
	for _, r := range a.resources {
		if strings.EqualFold(r.Name(), name) {
			return r, true
		}
	}
	return nil, false
}

// Children returns resources whose parent is r.
func (a *Application) Children(r Resource) []Resource {
	var out []Resource
	for _, c := range a.resources {
		if p, ok := c.(ResourceWithParent); ok && p.Parent() == r {
			out = append(out, c)
		}
	}
	return out
}
