package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/redbco/redb-apphost/cmd/apphost/internal/apphostfile"
	apphostgrpc "github.com/redbco/redb-apphost/pkg/grpc"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status [resource...]",
	Short: "Show health reported by a running app host",
	Long: `Query the status server of a running app host (started with run --status-address).
Without arguments every resource and database from the application file is listed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		address, _ := cmd.Flags().GetString("address")
		names := args
		if len(names) == 0 {
			f, err := apphostfile.Load(appFile)
			if err != nil {
				return err
			}
			names = resourceNames(f)
		}

		client, err := apphostgrpc.NewStatusClient(address, apphostgrpc.DefaultClientOptions())
		if err != nil {
			return err
		}
		defer client.Close()

		statuses, err := client.CheckAll(context.Background(), names)
		if err != nil {
			return err
		}
		printStatuses(statuses)
		return nil
	},
}

func resourceNames(f *apphostfile.File) []string {
	var names []string
	for _, r := range f.Resources {
		names = append(names, r.Name)
		for _, db := range r.Databases {
			names = append(names, db.Name)
		}
	}
	return names
}

func printStatuses(statuses []apphostgrpc.Status) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RESOURCE\tSTATUS")
	for _, st := range statuses {
		name := st.Resource
		if name == "" {
			name = "(application)"
		}
		fmt.Fprintf(w, "%s\t%s\n", name, statusText(st))
	}
	w.Flush()
}

func statusText(st apphostgrpc.Status) string {
	switch {
	case !st.Known:
		return "unknown"
	case st.Serving:
		return "serving"
	default:
		return "not serving"
	}
}
