package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Status is the outcome of a health check
type Status int

const (
	StatusUnhealthy Status = iota
	StatusDegraded
	StatusHealthy
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "Healthy"
	case StatusDegraded:
		return "Degraded"
	default:
		return "Unhealthy"
	}
}

// Result is returned by a single health check invocation
type Result struct {
	Status      Status
	Description string
	Err         error
}

// Healthy builds a healthy result
func Healthy(description string) Result {
	return Result{Status: StatusHealthy, Description: description}
}

// Unhealthy builds an unhealthy result
func Unhealthy(description string, err error) Result {
	return Result{Status: StatusUnhealthy, Description: description, Err: err}
}

// Message returns a single line describing the result
func (r Result) Message() string {
	switch {
	case r.Err != nil && r.Description != "":
		return fmt.Sprintf("%s: %v", r.Description, r.Err)
	case r.Err != nil:
		return r.Err.Error()
	case r.Description != "":
		return r.Description
	default:
		return r.Status.String()
	}
}

// CheckFunc is a function that performs a health check
type CheckFunc func(ctx context.Context) Result

// DefaultTimeout bounds a check registered without a timeout
const DefaultTimeout = 10 * time.Second

type registration struct {
	check   CheckFunc
	timeout time.Duration
}

// Check represents the latest result of a named health check
type Check struct {
	Name        string
	Status      Status
	Message     string
	LastChecked time.Time
}

// Checker holds health check registrations and their latest results
type Checker struct {
	mu            sync.RWMutex
	registrations map[string]registration
	checks        map[string]*Check
	lastHealthy   time.Time
}

// NewChecker creates a new health checker
func NewChecker() *Checker {
	return &Checker{
		registrations: make(map[string]registration),
		checks:        make(map[string]*Check),
		lastHealthy:   time.Now(),
	}
}

// Register adds a named check. A second registration under the same name
// replaces the first.
func (c *Checker) Register(name string, check CheckFunc, timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.registrations[name] = registration{check: check, timeout: timeout}
}

// IsRegistered reports whether a check with this name exists
func (c *Checker) IsRegistered(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.registrations[name]
	return ok
}

// Names returns the registered check names, sorted
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.registrations))
	for name := range c.registrations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunCheck executes a registered check and records the result
func (c *Checker) RunCheck(ctx context.Context, name string) Result {
	c.mu.RLock()
	reg, ok := c.registrations[name]
	c.mu.RUnlock()

	var result Result
	if !ok {
		result = Unhealthy(fmt.Sprintf("health check %s is not registered", name), nil)
	} else {
		result = invoke(ctx, reg)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.checks[name] = &Check{
		Name:        name,
		Status:      result.Status,
		Message:     result.Message(),
		LastChecked: time.Now(),
	}

	if c.isHealthy() {
		c.lastHealthy = time.Now()
	}
	return result
}

func invoke(ctx context.Context, reg registration) (result Result) {
	ctx, cancel := context.WithTimeout(ctx, reg.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			result = Unhealthy("health check panicked", fmt.Errorf("%v", r))
		}
	}()

	result = reg.check(ctx)
	if result.Status != StatusHealthy && result.Err == nil && ctx.Err() != nil {
		result.Err = ctx.Err()
	}
	return result
}

// RunChecks runs the named checks in order and aggregates them: all healthy
// is Healthy, none healthy is Unhealthy, anything else is Degraded.
func (c *Checker) RunChecks(ctx context.Context, names ...string) (Status, []Result) {
	results := make([]Result, 0, len(names))
	healthy := 0
	for _, name := range names {
		r := c.RunCheck(ctx, name)
		if r.Status == StatusHealthy {
			healthy++
		}
		results = append(results, r)
	}
	return aggregate(healthy, len(names)), results
}

func aggregate(healthy, total int) Status {
	switch {
	case healthy == total:
		return StatusHealthy
	case healthy == 0:
		return StatusUnhealthy
	default:
		return StatusDegraded
	}
}

// GetOverallStatus returns the overall health status of the recorded results
func (c *Checker) GetOverallStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.checks) == 0 {
		return StatusHealthy
	}

	unhealthy := 0
	for _, check := range c.checks {
		if check.Status != StatusHealthy {
			unhealthy++
		}
	}

	if unhealthy == 0 {
		return StatusHealthy
	} else if unhealthy < len(c.checks) {
		return StatusDegraded
	}
	return StatusUnhealthy
}

// GetCheck returns the latest result of one check
func (c *Checker) GetCheck(name string) (Check, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	check, ok := c.checks[name]
	if !ok {
		return Check{}, false
	}
	return *check, true
}

// GetAllChecks returns all health check results sorted by name
func (c *Checker) GetAllChecks() []*Check {
	c.mu.RLock()
	defer c.mu.RUnlock()

	checks := make([]*Check, 0, len(c.checks))
	for _, check := range c.checks {
		checkCopy := *check
		checks = append(checks, &checkCopy)
	}
	sort.Slice(checks, func(i, j int) bool { return checks[i].Name < checks[j].Name })
	return checks
}

// GetLastHealthyTime returns the last time all checks were healthy
func (c *Checker) GetLastHealthyTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastHealthy
}

func (c *Checker) isHealthy() bool {
	for _, check := range c.checks {
		if check.Status != StatusHealthy {
			return false
		}
	}
	return true
}
