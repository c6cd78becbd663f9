package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// devicesCmd はプロビジョニング台帳の一覧表示コマンド。
func devicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List provisioned devices from the registry",
		Long:  "List devices recorded in the provisioning registry (requires DATABASE_URL)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			return withApp(ctx, func(ctx context.Context, app *app) error {
				devices, err := app.service.ListDevices(ctx)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
				fmt.Fprintln(w, "MAC\tHV\tSTATUS\tKEY_FINGERPRINT\tCREATED_AT")
				fmt.Fprintln(w, "---\t--\t------\t---------------\t----------")

				for _, d := range devices {
					fingerprint := "-"
					if d.KeyFingerprint != "" {
						fingerprint = d.KeyFingerprint[:12]
					}
					hv := d.HardwareVersion
					if hv == "" {
						hv = "-"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						d.MAC, hv, d.Status, fingerprint, d.CreatedAt.Format("2006-01-02 15:04:05"))
				}

				if err := w.Flush(); err != nil {
					return fmt.Errorf("failed to flush output: %w", err)
				}
				return nil
			})
		},
	}
}
