package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/camunit/internal/capture"
	"github.com/smazurov/camunit/internal/logging"
)

// CreateProbeCmd creates the probe command.
func CreateProbeCmd() *cobra.Command {
	var flags logFlags

	cmd := &cobra.Command{
		Use:   "probe [device-id]",
		Short: "Show a device's formats and controls",
		Long: `Opens the device as a capture unit without streaming and prints its format ` +
			`catalog and control registry. The device id is one listed by "camunit devices".`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			flags.setup("cli")
			ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
			defer cancel()

			unit, name, err := openUnit(ctx, args[0])
			if err != nil {
				return err
			}
			defer unit.Close()

			out := c.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n\nFormats:\n", name, args[0])
			writeFormats(out, unit.Formats())
			fmt.Fprintln(out, "\nControls:")
			writeControls(out, unit.Controls())
			return nil
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

// openUnit opens id without a scheduler.
func openUnit(ctx context.Context, id string) (*capture.Unit, string, error) {
	dev, info, err := NewRegistry().Open(ctx, id)
	if err != nil {
		return nil, "", err
	}
	unit, err := capture.NewUnit(dev, capture.WithLogger(logging.GetLogger("capture")))
	if err != nil {
		_ = dev.Close()
		return nil, "", err
	}
	return unit, info.Name, nil
}

func writeFormats(w io.Writer, formats []capture.FormatDescriptor) {
	if len(formats) == 0 {
		fmt.Fprintln(w, "  none")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  #\tPIXEL\tSIZE\tSTRIDE\tBYTES\tNAME")
	for i, f := range formats {
		fmt.Fprintf(tw, "  %d\t%s\t%dx%d\t%d\t%d\t%s\n", i, f.Pixel, f.Width, f.Height, f.Stride, f.MaxBytes, f.Name)
	}
	_ = tw.Flush()
}

func writeControls(w io.Writer, controls []capture.ControlDescriptor) {
	if len(controls) == 0 {
		fmt.Fprintln(w, "  none")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  ID\tKIND\tVALUE\tRANGE\tSTATE")
	for _, d := range controls {
		state := "enabled"
		if !d.Enabled {
			state = "disabled"
		}
		if d.DependsOn >= 0 && d.DependsOn < len(controls) {
			state += " (" + controls[d.DependsOn].ID + ")"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n", d.ID, d.Kind, d.FormatValue(d.Value), controlRange(d), state)
	}
	_ = tw.Flush()
}

func controlRange(d capture.ControlDescriptor) string {
	switch d.Kind {
	case capture.KindInteger:
		return fmt.Sprintf("%d..%d/%d", d.Int.Min, d.Int.Max, d.Int.Step)
	case capture.KindFloat:
		return fmt.Sprintf("%g..%g", d.Float.Min, d.Float.Max)
	case capture.KindEnum:
		labels := make([]string, 0, len(d.Options))
		for _, o := range d.Options {
			if o.Enabled {
				labels = append(labels, o.Label)
			}
		}
		return strings.Join(labels, "|")
	case capture.KindButton:
		return "trigger"
	}
	return "on|off"
}
