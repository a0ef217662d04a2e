package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/camunit/internal/devices"
)

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd() *cobra.Command {
	var flags logFlags
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List capture devices",
		Long:  `Scans V4L2 and IIDC capture devices and prints their stable ids.`,
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			logger := flags.setup("cli")
			ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
			defer cancel()

			found, err := NewRegistry().Refresh(ctx)
			if err != nil {
				logger.Warn("Discovery incomplete", "error", err)
			}
			if asJSON {
				return writeDevicesJSON(c.OutOrStdout(), found)
			}
			writeDevices(c.OutOrStdout(), found)
			return nil
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func writeDevices(w io.Writer, found []devices.DeviceInfo) {
	if len(found) == 0 {
		fmt.Fprintln(w, "No capture devices found")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tDRIVER\tTYPE\tPATH\tREADY")
	for _, d := range found {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\n", d.ID, d.Name, d.Driver, d.Type, d.Path, d.Ready)
	}
	_ = tw.Flush()
}

func writeDevicesJSON(w io.Writer, found []devices.DeviceInfo) error {
	if found == nil {
		found = []devices.DeviceInfo{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(found)
}

