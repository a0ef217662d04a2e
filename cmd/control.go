package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/camunit/internal/logging"
	"github.com/smazurov/camunit/internal/scheduler"
)

// CreateControlCmd creates the control command.
func CreateControlCmd() *cobra.Command {
	var flags logFlags

	cmd := &cobra.Command{
		Use:   "control [device-id] [control] [value]",
		Short: "Set a device control",
		Long: `Proposes a value for one control and prints the value the device settled on. ` +
			`Enum controls accept an option label or index, booleans accept on/off.`,
		Args: cobra.ExactArgs(3),
		RunE: func(c *cobra.Command, args []string) error {
			flags.setup("cli")
			ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
			defer cancel()
			return setControl(ctx, c.OutOrStdout(), scheduler.New(NewRegistry(),
				scheduler.WithLogger(logging.GetLogger("scheduler")),
				scheduler.WithUnitLogger(logging.GetLogger("capture")),
			), args[0], args[1], args[2])
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

func setControl(ctx context.Context, out io.Writer, units *scheduler.Scheduler, id, control, value string) error {
	if _, err := units.Open(ctx, id, scheduler.Idle); err != nil {
		return err
	}
	defer units.CloseAll()

	res, err := units.SetControl(ctx, id, control, value, scheduler.SourceAPI)
	if err != nil {
		return err
	}
	if !res.Actual {
		fmt.Fprintf(out, "%s: sent %s\n", control, value)
		return nil
	}
	fmt.Fprintf(out, "%s = %s\n", control, res.Control.FormatValue(res.Control.Value))
	return nil
}
