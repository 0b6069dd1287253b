package appmodel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
)

// ErrEndpointNotAllocated is returned when an endpoint is resolved on the
// host network before the orchestrator assigned it an address.
var ErrEndpointNotAllocated = errors.New("endpoint not allocated")

// AllocatedEndpoint is the host-side address of an endpoint.
type AllocatedEndpoint struct {
	Address string
	Port    int
}

// EndpointAnnotation declares a network endpoint of a container.
type EndpointAnnotation struct {
	Name       string
	Scheme     string
	Transport  string
	TargetPort int
	// Port is a fixed host port; 0 lets the orchestrator pick one.
	Port      int
	IsProxied bool

	mu        sync.RWMutex
	allocated *AllocatedEndpoint
}

// Allocate records the host-side address of the endpoint.
func (e *EndpointAnnotation) Allocate(address string, port int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.allocated = &AllocatedEndpoint{Address: address, Port: port}
}

// Allocated returns the host-side address, if any.
func (e *EndpointAnnotation) Allocated() (AllocatedEndpoint, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.allocated == nil {
		return AllocatedEndpoint{}, false
	}
	return *e.allocated, true
}

// EndpointProperty selects a part of an endpoint.
type EndpointProperty string

const (
	PropertyURL         EndpointProperty = "url"
	PropertyHost        EndpointProperty = "host"
	PropertyPort        EndpointProperty = "port"
	PropertyTargetPort  EndpointProperty = "targetPort"
	PropertyHostAndPort EndpointProperty = "hostAndPort"
	PropertyScheme      EndpointProperty = "scheme"
)

// EndpointReference points at a named endpoint of a resource. It is usable
// before the endpoint exists and is looked up on resolution.
type EndpointReference struct {
	owner Resource
	name  string
}

// NewEndpointReference refers to endpoint name on owner.
func NewEndpointReference(owner Resource, name string) *EndpointReference {
	return &EndpointReference{owner: owner, name: name}
}

func (r *EndpointReference) Resource() Resource { return r.owner }

func (r *EndpointReference) EndpointName() string { return r.name }

// Annotation returns the endpoint annotation, if declared.
func (r *EndpointReference) Annotation() (*EndpointAnnotation, bool) {
	for _, e := range AnnotationsOf[*EndpointAnnotation](r.owner) {
		if e.Name == r.name {
			return e, true
		}
	}
	return nil, false
}

// Exists reports whether the endpoint is declared on the resource.
func (r *EndpointReference) Exists() bool {
	_, ok := r.Annotation()
	return ok
}

// Property returns a value provider for one part of the endpoint.
func (r *EndpointReference) Property(p EndpointProperty) *EndpointReferenceExpression {
	return &EndpointReferenceExpression{Endpoint: r, Property: p}
}

// GetValue resolves the endpoint URL.
func (r *EndpointReference) GetValue(ctx context.Context) (string, error) {
	return r.Property(PropertyURL).GetValue(ctx)
}

func (r *EndpointReference) ValueExpression() string {
	return r.Property(PropertyURL).ValueExpression()
}

// EndpointReferenceExpression is a ValueProvider for one endpoint property.
type EndpointReferenceExpression struct {
	Endpoint *EndpointReference
	Property EndpointProperty
}

func (e *EndpointReferenceExpression) GetValue(ctx context.Context) (string, error) {
	ann, ok := e.Endpoint.Annotation()
	if !ok {
		return "", fmt.Errorf("resource %s has no endpoint %q", e.Endpoint.owner.Name(), e.Endpoint.name)
	}

	var (
		host string
		port int
	)
	if IsContainerNetwork(ctx) {
		host = ContainerHostName(e.Endpoint.owner)
		port = ann.TargetPort
	} else {
		alloc, ok := ann.Allocated()
		if !ok {
			return "", fmt.Errorf("%s/%s: %w", e.Endpoint.owner.Name(), e.Endpoint.name, ErrEndpointNotAllocated)
		}
		host = alloc.Address
		port = alloc.Port
	}

	switch e.Property {
	case PropertyHost:
		return host, nil
	case PropertyPort:
		return strconv.Itoa(port), nil
	case PropertyTargetPort:
		return strconv.Itoa(ann.TargetPort), nil
	case PropertyHostAndPort:
		return net.JoinHostPort(host, strconv.Itoa(port)), nil
	case PropertyScheme:
		return ann.Scheme, nil
	case PropertyURL:
		return ann.Scheme + "://" + net.JoinHostPort(host, strconv.Itoa(port)), nil
	default:
		return "", fmt.Errorf("unknown endpoint property %q", e.Property)
	}
}

func (e *EndpointReferenceExpression) ValueExpression() string {
	return fmt.Sprintf("{%s.bindings.%s.%s}", e.Endpoint.owner.Name(), e.Endpoint.name, e.Property)
}

// ContainerHostName is the name other containers use to reach r.
func ContainerHostName(r Resource) string {
	if n, ok := LastAnnotation[*ContainerNameAnnotation](r); ok && n.Name != "" {
		return n.Name
	}
	return r.Name()
}

type containerNetworkKey struct{}

// WithContainerNetwork marks ctx so endpoints resolve the way another
// container on the run network sees them.
func WithContainerNetwork(ctx context.Context) context.Context {
	return context.WithValue(ctx, containerNetworkKey{}, true)
}

// IsContainerNetwork reports whether ctx resolves on the container network.
func IsContainerNetwork(ctx context.Context) bool {
	v, _ := ctx.Value(containerNetworkKey{}).(bool)
	return v
}
