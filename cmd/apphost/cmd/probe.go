package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/redbco/redb-apphost/pkg/dbcapabilities"
	"github.com/redbco/redb-apphost/pkg/health"
	"github.com/redbco/redb-apphost/pkg/hosting/dm"
	"github.com/redbco/redb-apphost/pkg/hosting/kingbase"
	"github.com/redbco/redb-apphost/pkg/hosting/mongodb"
	"github.com/redbco/redb-apphost/pkg/hosting/opengauss"
)

// probeCmd represents the probe command
var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Run one health check against a running server",
	Long: `Run the same check the app host uses against an existing server. For MongoDB
with --replica-set the check initiates the replica set and reports whether the
member is primary.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		cs, _ := cmd.Flags().GetString("connection-string")
		rs, _ := cmd.Flags().GetString("replica-set")
		memberPort, _ := cmd.Flags().GetInt("member-port")
		return probe(kind, cs, rs, memberPort)
	},
}

func probe(kind, connectionString, replicaSet string, memberPort int) error {
	id, ok := dbcapabilities.ParseID(kind)
	if !ok {
		return fmt.Errorf("unknown database kind %q", kind)
	}

	ctx, cancel := context.WithTimeout(context.Background(), health.DefaultTimeout)
	defer cancel()

	start := time.Now()
	var err error
	switch id {
	case dbcapabilities.OpenGauss:
		err = opengauss.Ping(ctx, connectionString)
	case dbcapabilities.KingbaseES:
		err = kingbase.Ping(ctx, connectionString)
	case dbcapabilities.Dameng:
		err = dm.Ping(ctx, connectionString)
	case dbcapabilities.MongoDB:
		if replicaSet != "" {
			err = mongodb.InitiateReplicaSet(ctx, connectionString, replicaSet, memberPort)
		} else {
			err = mongodb.Ping(ctx, connectionString)
		}
	}

	result := health.Healthy(fmt.Sprintf("%s responded in %s", dbcapabilities.MustGet(id).Name, time.Since(start).Round(time.Millisecond)))
	if err != nil {
		result = health.Unhealthy(dbcapabilities.MustGet(id).Name+" probe failed", err)
	}

	fmt.Printf("%s: %s\n", result.Status, result.Message())
	if result.Status != health.StatusHealthy {
		return fmt.Errorf("server is %s", result.Status)
	}
	return nil
}
