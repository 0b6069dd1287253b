// Package grpc is the client side of the app host status server.
package grpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// ClientOptions contains options for creating a status client
type ClientOptions struct {
	// Keepalive parameters
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration

	// Per-call timeout
	CallTimeout time.Duration

	// Additional dial options
	DialOptions []grpc.DialOption
}

// DefaultClientOptions returns default client options
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		KeepaliveTime:    10 * time.Second,
		KeepaliveTimeout: 3 * time.Second,
		CallTimeout:      5 * time.Second,
	}
}

// Status is the serving status of one resource as seen by the status server.
type Status struct {
	Resource string
	Serving  bool
	Known    bool
}

// StatusClient queries grpc.health.v1 on a running app host.
type StatusClient struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
	opts   ClientOptions
}

// NewStatusClient creates a client for the status server at addr. The
// connection is established lazily on the first call.
func NewStatusClient(addr string, opts ClientOptions) (*StatusClient, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                opts.KeepaliveTime,
			Timeout:             opts.KeepaliveTimeout,
			PermitWithoutStream: true,
		}),
	}
	dialOpts = append(dialOpts, opts.DialOptions...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create status client for %s: %w", addr, err)
	}
	return &StatusClient{conn: conn, health: healthpb.NewHealthClient(conn), opts: opts}, nil
}

// Check returns the status of one resource. The empty name is the whole
// application.
func (c *StatusClient) Check(ctx context.Context, resource string) (Status, error) {
	if c.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.CallTimeout)
		defer cancel()
	}

	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: resource})
	if err != nil {
		if isNotFound(err) {
			return Status{Resource: resource}, nil
		}
		return Status{}, fmt.Errorf("failed to check %q: %w", resource, err)
	}
	return Status{
		Resource: resource,
		Known:    true,
		Serving:  resp.GetStatus() == healthpb.HealthCheckResponse_SERVING,
	}, nil
}

// CheckAll checks the application and then every named resource in order.
func (c *StatusClient) CheckAll(ctx context.Context, resources []string) ([]Status, error) {
	out := make([]Status, 0, len(resources)+1)
	for _, name := range append([]string{""}, resources...) {
		st, err := c.Check(ctx, name)
		if err != nil {
			return out, err
		}
		out = append(out, st)
	}
	return out, nil
}

// Close closes the underlying connection.
func (c *StatusClient) Close() error {
	return c.conn.Close()
}
