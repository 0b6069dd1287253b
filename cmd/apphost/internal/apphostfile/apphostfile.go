// Package apphostfile loads the YAML description of an application and turns
// it into an application model.
package apphostfile

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/redbco/redb-apphost/pkg/appmodel"
	"github.com/redbco/redb-apphost/pkg/dbcapabilities"
)

// KindContainer is a plain container resource.
const KindContainer = "container"

type File struct {
	Name         string               `yaml:"name"`
	Orchestrator OrchestratorConfig   `yaml:"orchestrator"`
	Parameters   map[string]Parameter `yaml:"parameters"`
	Resources    []Resource           `yaml:"resources"`
}

type OrchestratorConfig struct {
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	StartupTimeout      time.Duration `yaml:"startup_timeout"`
	StopTimeout         time.Duration `yaml:"stop_timeout"`
	StatusAddress       string        `yaml:"status_address"`
	WorkDir             string        `yaml:"work_dir"`
}

type Parameter struct {
	Value    *string   `yaml:"value"`
	Secret   bool      `yaml:"secret"`
	Generate *Generate `yaml:"generate"`
}

type Generate struct {
	MinLength int  `yaml:"min_length"`
	Special   bool `yaml:"special"`
}

type Resource struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`

	// Database servers
	Port              int               `yaml:"port"`
	UserParameter     string            `yaml:"user_parameter"`
	PasswordParameter string            `yaml:"password_parameter"`
	DataVolume        string            `yaml:"data_volume"`
	DataBindMount     string            `yaml:"data_bind_mount"`
	InitBindMount     string            `yaml:"init_bind_mount"`
	Databases         []Database        `yaml:"databases"`
	PgAdmin           bool              `yaml:"pgadmin"`
	PgWeb             bool              `yaml:"pgweb"`
	Mode              string            `yaml:"mode"`
	ReplicaSet        string            `yaml:"replica_set"`
	MongoExpress      bool              `yaml:"mongo_express"`
	InitParameters    map[string]string `yaml:"init_parameters"`

	// Containers
	Image     string            `yaml:"image"`
	Tag       string            `yaml:"tag"`
	Env       map[string]string `yaml:"env"`
	Args      []string          `yaml:"args"`
	Endpoints []Endpoint        `yaml:"endpoints"`

	// Any resource
	ContainerName string   `yaml:"container_name"`
	Lifetime      string   `yaml:"lifetime"`
	References    []string `yaml:"references"`
	WaitFor       []string `yaml:"wait_for"`
	WaitForStart  []string `yaml:"wait_for_start"`
}

type Database struct {
	Name     string `yaml:"name"`
	Database string `yaml:"database"`
}

type Endpoint struct {
	Name       string `yaml:"name"`
	TargetPort int    `yaml:"target_port"`
	Port       int    `yaml:"port"`
	Scheme     string `yaml:"scheme"`
}

// Load reads, defaults and validates an application file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read application file: %w", err)
	}
	return Parse(data)
}

// Parse is Load for an in-memory document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse application file: %w", err)
	}

	// Set defaults
	if f.Name == "" {
		f.Name = "apphost"
	}
	if f.Orchestrator.HealthCheckInterval == 0 {
		f.Orchestrator.HealthCheckInterval = 2 * time.Second
	}
	if f.Orchestrator.StartupTimeout == 0 {
		f.Orchestrator.StartupTimeout = 5 * time.Minute
	}
	if f.Orchestrator.StopTimeout == 0 {
		f.Orchestrator.StopTimeout = 10 * time.Second
	}
	for i := range f.Resources {
		r := &f.Resources[i]
		r.Kind = strings.ToLower(strings.TrimSpace(r.Kind))
		if r.Kind == "" {
			r.Kind = KindContainer
		}
		if id, ok := dbcapabilities.ParseID(r.Kind); ok {
			r.Kind = string(id)
		}
		for j := range r.Databases {
			if r.Databases[j].Database == "" {
				r.Databases[j].Database = r.Databases[j].Name
			}
		}
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks names, kinds and cross references.
func (f *File) Validate() error {
	names := make(map[string]string)
	claim := func(name, what string) error {
		if err := appmodel.ValidateResourceName(name); err != nil {
			return fmt.Errorf("%s: %w", what, err)
		}
		key := strings.ToLower(name)
		if prev, ok := names[key]; ok {
			return fmt.Errorf("%s: name %q is already used by %s", what, name, prev)
		}
		names[key] = what
		return nil
	}

	paramNames := make([]string, 0, len(f.Parameters))
	for name := range f.Parameters {
		paramNames = append(paramNames, name)
	}
	sort.Strings(paramNames)
	for _, name := range paramNames {
		if err := claim(name, "parameter "+name); err != nil {
			return err
		}
	}

	connectable := make(map[string]bool)
	for _, r := range f.Resources {
		what := "resource " + r.Name
		if err := claim(r.Name, what); err != nil {
			return err
		}
		id, isDatabase := dbcapabilities.ParseID(r.Kind)
		switch {
		case r.Kind == KindContainer:
			if r.Image == "" {
				return fmt.Errorf("%s: image is required", what)
			}
			if len(r.Databases) > 0 {
				return fmt.Errorf("%s: containers cannot declare databases", what)
			}
		case isDatabase:
			connectable[strings.ToLower(r.Name)] = true
			if r.Mode != "" && id != dbcapabilities.KingbaseES {
				return fmt.Errorf("%s: mode is only supported by %s", what, dbcapabilities.KingbaseES)
			}
			if (r.ReplicaSet != "" || r.MongoExpress) && id != dbcapabilities.MongoDB {
				return fmt.Errorf("%s: replica_set and mongo_express are only supported by %s", what, dbcapabilities.MongoDB)
			}
			if (r.PgAdmin || r.PgWeb) && !dbcapabilities.IsPostgresCompatible(id) {
				return fmt.Errorf("%s: pgadmin and pgweb need a PostgreSQL compatible server", what)
			}
			if len(r.InitParameters) > 0 && id != dbcapabilities.Dameng {
				return fmt.Errorf("%s: init_parameters are only supported by %s", what, dbcapabilities.Dameng)
			}
			if r.UserParameter != "" && id == dbcapabilities.Dameng {
				return fmt.Errorf("%s: the %s user cannot be changed", what, dbcapabilities.Dameng)
			}
		default:
			return fmt.Errorf("%s: unknown kind %q", what, r.Kind)
		}
		for _, db := range r.Databases {
			if err := claim(db.Name, "database "+db.Name); err != nil {
				return err
			}
			if strings.TrimSpace(db.Database) == "" {
				return fmt.Errorf("database %s: database name must not be empty", db.Name)
			}
			connectable[strings.ToLower(db.Name)] = true
		}
		switch appmodel.ContainerLifetime(r.Lifetime) {
		case "", appmodel.LifetimeSession, appmodel.LifetimePersistent:
		default:
			return fmt.Errorf("%s: unknown lifetime %q", what, r.Lifetime)
		}
	}

	for _, r := range f.Resources {
		what := "resource " + r.Name
		for _, p := range []string{r.UserParameter, r.PasswordParameter} {
			if p == "" {
				continue
			}
			if _, ok := f.Parameters[p]; !ok {
				return fmt.Errorf("%s: unknown parameter %q", what, p)
			}
		}
		for _, ref := range r.References {
			if !connectable[strings.ToLower(ref)] {
				return fmt.Errorf("%s: reference %q is not a database server or database", what, ref)
			}
		}
		for _, w := range append(append([]string(nil), r.WaitFor...), r.WaitForStart...) {
			if _, ok := names[strings.ToLower(w)]; !ok {
				return fmt.Errorf("%s: wait target %q does not exist", what, w)
			}
			if strings.EqualFold(w, r.Name) {
				return fmt.Errorf("%s: cannot wait for itself", what)
			}
		}
	}

	_, err := f.StartupOrder()
	return err
}

// StartupOrder returns resource names so that every resource follows the
// resources it waits for or references. Ties keep declaration order.
func (f *File) StartupOrder() ([]string, error) {
	owner := make(map[string]string)
	for _, r := range f.Resources {
		owner[strings.ToLower(r.Name)] = r.Name
		for _, db := range r.Databases {
			owner[strings.ToLower(db.Name)] = r.Name
		}
	}

	deps := make(map[string][]string)
	for _, r := range f.Resources {
		for _, d := range append(append(append([]string(nil), r.WaitFor...), r.WaitForStart...), r.References...) {
			if o, ok := owner[strings.ToLower(d)]; ok && o != r.Name {
				deps[r.Name] = append(deps[r.Name], o)
			}
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int)
	order := []string{}

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("dependency cycle: %s", strings.Join(append(path, name), " -> "))
		}
		state[name] = visiting
		for _, dep := range deps[name] {
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = done
		order = append(order, name)
		return nil
	}

	for _, r := range f.Resources {
		if err := visit(r.Name, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}
