package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/redbco/redb-apphost/pkg/appmodel"
	"github.com/redbco/redb-apphost/pkg/orchestrator"
	"github.com/redbco/redb-apphost/pkg/runtime/docker"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the application with Docker",
	Long: `Start every resource of the application file in dependency order and
keep them running until interrupted. Session containers are removed on exit,
persistent ones are left running and reused by the next run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		statusAddress, _ := cmd.Flags().GetString("status-address")
		return runApplication(statusAddress)
	},
}

func runApplication(statusAddress string) error {
	log := newLogger()

	f, app, err := loadApplication(appmodel.OperationRun, log)
	if err != nil {
		return err
	}
	if statusAddress == "" {
		statusAddress = f.Orchestrator.StatusAddress
	}

	rt, err := docker.New(log.Named("docker"))
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rt.Ping(ctx); err != nil {
		return fmt.Errorf("docker is not available: %w", err)
	}

	o := orchestrator.New(app, rt, log, orchestrator.Options{
		HealthCheckInterval: f.Orchestrator.HealthCheckInterval,
		StartupTimeout:      f.Orchestrator.StartupTimeout,
		StopTimeout:         f.Orchestrator.StopTimeout,
		StatusAddress:       statusAddress,
		WorkDir:             f.Orchestrator.WorkDir,
	})

	go reportReady(o.Subscribe())

	log.Infof("Starting application %s (run %s)", app.Name(), o.RunID())
	return o.Run(ctx)
}

// reportReady prints the endpoints of each resource the first time it is
// healthy. It returns when the orchestrator stops.
func reportReady(events <-chan orchestrator.ResourceEvent) {
	ready := make(map[string]bool)
	for ev := range events {
		s := ev.Snapshot
		if s.State != orchestrator.StateRunning || s.Health != orchestrator.HealthHealthy || ready[s.Name] {
			continue
		}
		ready[s.Name] = true

		names := make([]string, 0, len(s.Endpoints))
		for name := range s.Endpoints {
			names = append(names, name)
		}
		sort.Strings(names)
		urls := make([]string, 0, len(names))
		for _, name := range names {
			urls = append(urls, s.Endpoints[name])
		}
		if len(urls) > 0 {
			fmt.Printf("✅ %s is ready at %s\n", s.Name, strings.Join(urls, ", "))
		} else {
			fmt.Printf("✅ %s is ready\n", s.Name)
		}
	}
}
