package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/redbco/redb-apphost/pkg/appmodel"
)

// publishCmd represents the publish command
var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Write the deployment manifest",
	Long: `Render the application as a JSON deployment manifest. Values that are only
known at deployment time, such as hosts, ports and secrets, are written as
expressions like {gauss.bindings.tcp.host}.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		return publishApplication(output)
	},
}

func publishApplication(output string) error {
	_, app, err := loadApplication(appmodel.OperationPublish, newLogger())
	if err != nil {
		return err
	}

	if output == "" {
		return app.WriteManifest(context.Background(), os.Stdout)
	}

	out, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create %s: %v", output, err)
	}
	defer out.Close()

	if err := app.WriteManifest(context.Background(), out); err != nil {
		return err
	}
	fmt.Printf("✅ Manifest written to %s\n", output)
	return nil
}
