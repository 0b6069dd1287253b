package orchestrator

import (
	"context"
	"time"

	"github.com/redbco/redb-apphost/pkg/appmodel"
	"github.com/redbco/redb-apphost/pkg/health"
)

func (o *Orchestrator) startMonitor(r appmodel.Resource) {
	o.monitors.Add(1)
	go func() {
		defer o.monitors.Done()
		o.monitor(o.monitorCtx, r)
	}()
}

// monitor checks r immediately and then every HealthCheckInterval until the
// resource stops or monitoring is cancelled.
func (o *Orchestrator) monitor(ctx context.Context, r appmodel.Resource) {
	ticker := time.NewTicker(o.opts.HealthCheckInterval)
	defer ticker.Stop()

	for {
		if !o.checkOnce(ctx, r) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// checkOnce refreshes state and health of r. It returns false once r is no
// longer running.
func (o *Orchestrator) checkOnce(ctx context.Context, r appmodel.Resource) bool {
	log := o.logger.Named(r.Name())
	snap, _ := o.Snapshot(r.Name())

	if appmodel.IsContainer(r) && snap.ContainerID != "" {
		st, err := o.rt.InspectContainer(ctx, snap.ContainerID)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			log.Debugf("Inspect failed: %v", err)
		} else if !st.Running {
			state := StateExited
			if st.ExitCode == 0 {
				state = StateFinished
			}
			log.Warnf("Container exited with code %d", st.ExitCode)
			o.update(r, func(s *ResourceSnapshot) {
				s.State = state
				s.Health = HealthUnhealthy
				s.ExitCode = st.ExitCode
			})
			return false
		}
	}

	if c, ok := r.(appmodel.ResourceWithParent); ok {
		parent, _ := o.Snapshot(c.Parent().Name())
		if parent.State.IsTerminal() {
			o.update(r, func(s *ResourceSnapshot) {
				s.State = StateExited
				s.Health = HealthUnhealthy
			})
			return false
		}
	}

	keys := make([]string, 0)
	for _, h := range appmodel.AnnotationsOf[*appmodel.HealthCheckAnnotation](r) {
		keys = append(keys, h.Key)
	}

	state := HealthHealthy
	message := ""
	if len(keys) > 0 {
		status, results := o.app.HealthChecks().RunChecks(ctx, keys...)
		if ctx.Err() != nil {
			return false
		}
		state = healthStateOf(status)
		for _, res := range results {
			if res.Status != health.StatusHealthy {
				message = res.Message()
				break
			}
		}
	}

	if state != snap.Health {
		if state == HealthHealthy {
			log.Info("Resource is healthy")
		} else if snap.Health == HealthHealthy {
			log.Warnf("Resource is %s: %s", state, message)
		}
	}

	o.update(r, func(s *ResourceSnapshot) {
		s.Health = state
		s.HealthMessage = message
	})
	return true
}
