package orchestrator

import (
	"fmt"
	"net"

	"github.com/redbco/redb-apphost/pkg/appmodel"
	"github.com/redbco/redb-apphost/pkg/logger"
	"github.com/redbco/redb-apphost/pkg/runtime"
)

// HostAddress is the address allocated endpoints are published on. It is an
// IPv4 literal because containers publish on the IPv4 loopback only.
const HostAddress = "127.0.0.1"

// portAllocator hands out free loopback ports, never the same one twice in a run.
type portAllocator struct {
	used map[int]bool
}

func newPortAllocator() *portAllocator {
	return &portAllocator{used: make(map[int]bool)}
}

func (p *portAllocator) reserve(port int) error {
	if p.used[port] {
		return fmt.Errorf("host port %d is used by more than one endpoint", port)
	}
	p.used[port] = true
	return nil
}

func (p *portAllocator) next() (int, error) {
	for attempt := 0; attempt < 16; attempt++ {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return 0, fmt.Errorf("failed to find a free port: %w", err)
		}
		port := l.Addr().(*net.TCPAddr).Port
		l.Close()
		if !p.used[port] {
			p.used[port] = true
			return port, nil
		}
	}
	return 0, fmt.Errorf("failed to find a free port")
}

// allocateEndpoints assigns a host port to every container endpoint: fixed
// ports are kept, endpoints that are not proxied publish their target port
// and the rest get a free port.
func allocateEndpoints(resources []appmodel.Resource) error {
	alloc := newPortAllocator()

	var pending []*appmodel.EndpointAnnotation
	for _, r := range resources {
		if !appmodel.IsContainer(r) {
			continue
		}
		for _, e := range appmodel.AnnotationsOf[*appmodel.EndpointAnnotation](r) {
			port := e.Port
			if port == 0 && !e.IsProxied {
				port = e.TargetPort
			}
			if port == 0 {
				pending = append(pending, e)
				continue
			}
			if err := alloc.reserve(port); err != nil {
				return fmt.Errorf("%s/%s: %w", r.Name(), e.Name, err)
			}
			e.Allocate(HostAddress, port)
		}
	}

	for _, e := range pending {
		port, err := alloc.next()
		if err != nil {
			return err
		}
		e.Allocate(HostAddress, port)
	}
	return nil
}

// adoptPublishedPorts points the endpoints of r at the host ports a reused
// container was created with in an earlier run.
func adoptPublishedPorts(r appmodel.Resource, st runtime.ContainerStatus, log *logger.Logger) {
	for _, e := range appmodel.AnnotationsOf[*appmodel.EndpointAnnotation](r) {
		port, ok := st.PublishedPort(e.TargetPort)
		if !ok {
			log.Warnf("Reused container does not publish port %d for endpoint %s", e.TargetPort, e.Name)
			continue
		}
		if alloc, ok := e.Allocated(); ok && alloc.Port == port {
			continue
		}
		log.Infof("Endpoint %s uses host port %d of the reused container", e.Name, port)
		e.Allocate(HostAddress, port)
	}
}
