package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/redbco/redb-apphost/cmd/apphost/internal/apphostfile"
	"github.com/redbco/redb-apphost/pkg/appmodel"
	"github.com/redbco/redb-apphost/pkg/config"
	"github.com/redbco/redb-apphost/pkg/keyring"
	"github.com/redbco/redb-apphost/pkg/logger"
)

// setupCommands initializes all commands and their flags
func setupCommands() {
	for _, cmd := range []*cobra.Command{runCmd, publishCmd, describeCmd, statusCmd} {
		cmd.Flags().StringVarP(&appFile, "file", "f", "apphost.yaml", "Path to the application file")
		cmd.Flags().StringVar(&envFile, "env-file", ".env", "Dotenv file with parameter values")
	}

	runCmd.Flags().String("status-address", "", "Serve gRPC health status on this address")
	publishCmd.Flags().StringP("output", "o", "", "Write the manifest to this file instead of stdout")

	probeCmd.Flags().String("kind", "", "Database kind (opengauss, dm, mongodb, kingbase)")
	probeCmd.Flags().String("connection-string", "", "Connection string of the server")
	probeCmd.Flags().String("replica-set", "", "MongoDB replica set to initiate")
	probeCmd.Flags().Int("member-port", 27017, "MongoDB port inside the container, used as replica set member address")
	_ = probeCmd.MarkFlagRequired("kind")
	_ = probeCmd.MarkFlagRequired("connection-string")

	statusCmd.Flags().String("address", "127.0.0.1:7070", "Address of the status server")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(describeCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(statusCmd)
}

func newLogger() *logger.Logger {
	log := logger.New("apphost", Version)
	log.SetLevel(logLevel)
	return log
}

// loadApplication reads the application file and builds the model.
func loadApplication(op appmodel.Operation, log *logger.Logger) (*apphostfile.File, *appmodel.Application, error) {
	f, err := apphostfile.Load(appFile)
	if err != nil {
		return nil, nil, err
	}

	cfg := config.New()
	if err := cfg.LoadEnvFile(envFile); err != nil {
		return nil, nil, err
	}

	opts := appmodel.BuilderOptions{
		AppName:   f.Name,
		Operation: op,
		Config:    cfg,
		Logger:    log,
	}
	if op == appmodel.OperationRun {
		opts.Secrets = keyring.NewDefaultSecretStore(f.Name)
	}

	app, err := apphostfile.Build(f, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid application %s: %w", f.Name, err)
	}
	return f, app, nil
}
