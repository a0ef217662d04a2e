package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/camunit/internal/capture"
	"github.com/smazurov/camunit/internal/config"
	"github.com/smazurov/camunit/internal/logging"
	"github.com/smazurov/camunit/internal/scheduler"
)

// captureOptions are the capture command's flags.
type captureOptions struct {
	format      int
	frames      uint64
	buffers     int
	presetsFile string
	interval    time.Duration
}

// CreateCaptureCmd creates the capture command.
func CreateCaptureCmd() *cobra.Command {
	var flags logFlags
	var opts captureOptions

	cmd := &cobra.Command{
		Use:   "capture [device-id]",
		Short: "Stream from a device and print capture statistics",
		Long: `Opens the device, commits the chosen catalog format and streams until the frame ` +
			`count is reached or the command is interrupted. Dequeue faults restart the stream.`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			logger := flags.setup("cli")
			ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err := runCapture(ctx, c.OutOrStdout(), args[0], opts)
			if errors.Is(err, context.Canceled) {
				logger.Info("Capture interrupted")
				return nil
			}
			return err
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().IntVarP(&opts.format, "format", "f", 0, "Catalog index to capture (see probe)")
	cmd.Flags().Uint64VarP(&opts.frames, "frames", "n", 0, "Stop after this many frames, 0 to run until interrupted")
	cmd.Flags().IntVarP(&opts.buffers, "buffers", "b", 0, "Buffer count, 0 for the device default")
	cmd.Flags().StringVar(&opts.presetsFile, "presets", "", "Control presets file to apply before streaming")
	cmd.Flags().DurationVar(&opts.interval, "interval", time.Second, "How often to print statistics")
	return cmd
}

func runCapture(ctx context.Context, out io.Writer, id string, opts captureOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var delivered atomic.Uint64
	counter := capture.HandlerFuncs{
		Frame: func(*capture.Frame) error {
			if n := delivered.Add(1); opts.frames > 0 && n >= opts.frames {
				cancel()
			}
			return nil
		},
		FormatChanged: func(f *capture.FormatDescriptor) {
			if f != nil {
				fmt.Fprintf(out, "format %s\n", f)
			}
		},
	}

	units := scheduler.New(NewRegistry(),
		scheduler.WithLogger(logging.GetLogger("scheduler")),
		scheduler.WithUnitLogger(logging.GetLogger("capture")),
		scheduler.WithFrameHandler(counter),
	)
	if opts.presetsFile != "" {
		presets, err := config.LoadPresets(opts.presetsFile)
		if err != nil {
			return err
		}
		units.SetPresets(presets)
	}

	info, err := units.Open(ctx, id, scheduler.FormatChoice{
		Index:   opts.format,
		Start:   true,
		Buffers: opts.buffers,
	})
	if err != nil {
		return err
	}
	defer units.CloseAll()
	fmt.Fprintf(out, "streaming %s (%s) as %s\n", info.Device.Name, id, info.Format)

	done := make(chan error, 1)
	go func() { done <- units.Run(ctx) }()

	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if u, err := units.Unit(id); err == nil {
				writeStats(out, u)
			}
		case err := <-done:
			// Run closed the unit; only the local count survives.
			fmt.Fprintf(out, "captured %d frames\n", delivered.Load())
			if err != nil {
				return err
			}
			if opts.frames > 0 && delivered.Load() >= opts.frames {
				return nil
			}
			return ctx.Err()
		}
	}
}

func writeStats(w io.Writer, u scheduler.UnitInfo) {
	fmt.Fprintf(w, "frames=%d fps=%.1f bytes=%d dropped=%d restarts=%d handler_errors=%d\n",
		u.Stats.Frames, u.FPS, u.Bytes, u.Stats.Dropped, u.Stats.Restarts, u.Stats.HandlerErrors)
}
