// Command drv8825 drives a DRV8825 stepper driver from a Linux host, or
// simulates one.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"drv8825/config"
	"drv8825/core"
	"drv8825/host/gpio"
	"drv8825/host/sim"
)

// Set via ldflags at build time
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app holds what every subcommand shares: the loaded config and logger.
type app struct {
	configPath string
	logLevel   string
	backend    string

	cfg *config.File
	log *logrus.Logger

	// bank backs the sim GPIO backend so commands can report edges.
	bank *sim.Bank
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "drv8825",
		Short:         "Pulse a DRV8825 stepper driver",
		Long:          "Generate step pulses for a DRV8825 with the blocking, timer or async strategy, or simulate a run in virtual time.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML config file (default: simulated board)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override log_level from the config")
	root.PersistentFlags().StringVar(&a.backend, "gpio", "", "Override the gpio backend (sim, periph, rpio)")

	root.AddCommand(timingCmd(a))
	root.AddCommand(runCmd(a))
	root.AddCommand(spinCmd(a))
	root.AddCommand(asyncCmd(a))
	root.AddCommand(simulateCmd(a))
	root.AddCommand(consoleCmd(a))
	return root
}

func (a *app) load(logOut io.Writer) error {
	var err error
	if a.configPath == "" {
		a.cfg = config.Defaults()
	} else if a.cfg, err = config.Load(a.configPath); err != nil {
		return err
	}
	if a.logLevel != "" {
		a.cfg.LogLevel = a.logLevel
	}
	if a.backend != "" {
		a.cfg.GPIO = a.backend
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	a.log, err = a.cfg.NewLogger(logOut)
	return err
}

// driver opens the configured pins and builds a driver. timer and clock
// may be nil. The returned func releases the GPIO backend.
func (a *app) driver(timer core.PeriodicTimer, clock core.Clock) (*core.Driver, func(), error) {
	if a.bank == nil {
		a.bank = sim.NewBank()
	}
	pins, closer, err := gpio.Open(a.cfg.GPIO, a.cfg.Pins, a.bank)
	if err != nil {
		return nil, nil, err
	}
	cfg := a.cfg.DriverConfig(a.log)
	cfg.Pins = pins
	cfg.Timer = timer
	cfg.Clock = clock

	d, err := core.New(cfg)
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	a.log.WithFields(logrus.Fields{
		"gpio":  a.cfg.GPIO,
		"mode":  d.Mode(),
		"delay": d.PulseDelay(),
	}).Debug("driver ready")

	return d, func() {
		if err := d.Enable(false); err != nil {
			a.log.WithError(err).Debug("disable on exit")
		}
		if err := closer.Close(); err != nil {
			a.log.WithError(err).Warn("closing gpio")
		}
	}, nil
}
