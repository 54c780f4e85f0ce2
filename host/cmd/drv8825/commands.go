package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"drv8825/console"
	"drv8825/core"
	"drv8825/host/serial"
	"drv8825/ui/status"
)

func timingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "timing",
		Short: "Show pulse timing for every stepping mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "MODE\tMICROSTEPS\tSTEPS/REV\tPULSE DELAY\tFREQUENCY\n")
			for _, m := range core.Modes() {
				t, err := core.ComputeTiming(m.Microsteps(), a.cfg.FullStepsPerRevolution, a.cfg.RevolutionTimeMS)
				if err != nil {
					fmt.Fprintf(w, "%s\t%d\t-\t%s\t-\n", m, m.Microsteps(), core.CodeOf(err))
					continue
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n", m, m.Microsteps(), t.StepsPerRevolution(), t.PulseDelay(), t.Frequency())
			}
			return w.Flush()
		},
	}
}

type dirFlag struct{ dir core.Direction }

func (f *dirFlag) String() string { return f.dir.String() }
func (f *dirFlag) Type() string   { return "cw|ccw" }
func (f *dirFlag) Set(s string) error {
	d, err := core.ParseDirection(s)
	if err != nil {
		return err
	}
	f.dir = d
	return nil
}

func runCmd(a *app) *cobra.Command {
	var (
		steps int
		revs  float64
		dir   dirFlag
	)
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Blocking run of a fixed number of steps or revolutions",
		Example: "  drv8825 run --steps 400 --dir ccw\n  drv8825 run --revs 2.5",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, done, err := a.driver(nil, nil)
			if err != nil {
				return err
			}
			defer done()

			start := time.Now()
			if cmd.Flags().Changed("revs") {
				err = d.RunBlockingRevolutions(revs, dir.dir)
			} else {
				err = d.RunBlocking(steps, dir.dir)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "done in %s\n", time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "Steps to run")
	cmd.Flags().Float64Var(&revs, "revs", 0, "Revolutions to run")
	cmd.Flags().Var(&dir, "dir", "Direction (default: leave DIR as is)")
	cmd.MarkFlagsMutuallyExclusive("steps", "revs")
	cmd.MarkFlagsOneRequired("steps", "revs")
	return cmd
}

func spinCmd(a *app) *cobra.Command {
	var (
		pulses   int
		steps    int
		seconds  float64
		interval time.Duration
		dir      dirFlag
	)
	cmd := &cobra.Command{
		Use:   "spin",
		Short: "Timer-driven run with live progress; Ctrl-C cancels",
		Example: "  drv8825 spin --steps 1600\n" +
			"  drv8825 spin --seconds 3 --dir cw",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			d, done, err := a.driver(core.NewTickerTimer(), nil)
			if err != nil {
				return err
			}
			defer done()

			var b core.Bound
			switch {
			case cmd.Flags().Changed("seconds"):
				deadline := time.Now().Add(time.Duration(seconds * float64(time.Second)))
				b = core.While(func() bool { return time.Now().Before(deadline) })
			case cmd.Flags().Changed("steps"):
				b = core.Steps(steps)
			default:
				b = core.Pulses(pulses)
			}
			req, err := core.NewRunRequest(b, dir.dir, func(r *core.RunResult[int]) int { return r.StepsDone() })
			if err != nil {
				return err
			}
			res, err := core.StartRun(d, req)
			if err != nil {
				return err
			}
			return follow(ctx, cmd, d, res, interval)
		},
	}
	cmd.Flags().IntVar(&pulses, "pulses", 0, "Pulses (toggles) to emit")
	cmd.Flags().IntVar(&steps, "steps", 0, "Steps to run")
	cmd.Flags().Float64Var(&seconds, "seconds", 0, "Run for this long")
	cmd.Flags().DurationVar(&interval, "interval", 250*time.Millisecond, "Progress report interval")
	cmd.Flags().Var(&dir, "dir", "Direction (default: leave DIR as is)")
	cmd.MarkFlagsMutuallyExclusive("pulses", "steps", "seconds")
	cmd.MarkFlagsOneRequired("pulses", "steps", "seconds")
	return cmd
}

// follow prints status rows until the run finishes, cancelling it when ctx
// ends.
func follow(ctx context.Context, cmd *cobra.Command, d *core.Driver, res *core.RunResult[int], interval time.Duration) error {
	out := cmd.OutOrStdout()
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-res.Finished():
			printRows(cmd, d, res)
			if res.Cancelled() {
				return errors.New("cancelled")
			}
			return nil
		case <-ctx.Done():
			d.Cancel()
			<-res.Finished()
			printRows(cmd, d, res)
			return ctx.Err()
		case <-tick.C:
			s := status.FromResult(d.Mode(), res, false)
			fmt.Fprintf(out, "%s\n", s.Rows()[1])
		}
	}
}

func printRows(cmd *cobra.Command, d *core.Driver, res *core.RunResult[int]) {
	fault, _ := d.Fault()
	for _, r := range status.FromResult(d.Mode(), res, fault).Rows() {
		warn := ""
		if r.Warn {
			warn = " !"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s%s\n", r, warn)
	}
}

func asyncCmd(a *app) *cobra.Command {
	var (
		steps int
		dir   dirFlag
	)
	cmd := &cobra.Command{
		Use:   "async",
		Short: "Cooperative async run; Ctrl-C cancels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			d, done, err := a.driver(nil, nil)
			if err != nil {
				return err
			}
			defer done()

			res, err := core.RunAsync(ctx, d, steps, dir.dir, func(r *core.RunResult[int]) int { return r.StepsDone() })
			if err != nil {
				return err
			}
			printRows(cmd, d, res)
			return ctx.Err()
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "Steps to run")
	cmd.Flags().Var(&dir, "dir", "Direction (default: leave DIR as is)")
	cmd.MarkFlagRequired("steps")
	return cmd
}

func simulateCmd(a *app) *cobra.Command {
	var (
		steps int
		dir   dirFlag
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the timer strategy in virtual time on simulated pins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cfg.GPIO = "sim"
			sched := core.NewScheduler()
			d, done, err := a.driver(sched.NewTimer(), sched)
			if err != nil {
				return err
			}
			defer done()

			res, err := core.RunNonBlocking(d, steps*core.PulsesPerStep, dir.dir, func(r *core.RunResult[int]) int { return r.StepsDone() })
			if err != nil {
				return err
			}
			limit := time.Duration(res.Target()+2) * d.PulseDelay()
			if !sched.RunUntil(res.Done, d.PulseDelay(), limit) {
				d.Cancel()
			}

			out := cmd.OutOrStdout()
			step, _ := a.bank.Lookup(a.cfg.Pins.Step)
			edges := 0
			if step != nil {
				edges = step.RisingEdges()
			}
			fmt.Fprintf(out, "virtual time %s, %d pulses, %d rising edges\n", sched.Elapsed(), res.PulsesDone(), edges)
			printRows(cmd, d, res)
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 200, "Steps to simulate")
	cmd.Flags().Var(&dir, "dir", "Direction (default: leave DIR as is)")
	return cmd
}

func consoleCmd(a *app) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Serve the line console on a serial port or stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			if port == "" {
				port = a.cfg.Console.Port
			}
			scfg := serial.DefaultConfig(port)
			scfg.Baud = a.cfg.Console.Baud
			p, err := serial.Open(scfg)
			if err != nil {
				return err
			}
			defer p.Close()

			d, done, err := a.driver(core.NewTickerTimer(), nil)
			if err != nil {
				return err
			}
			defer done()

			a.log.WithField("port", scfg.Device).Info("console ready")
			err = console.New(d, a.log).Serve(ctx, p)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&port, "port", "", `Serial device, "-" for stdin (default from config)`)
	return cmd
}
