// =================================================================================
//
//			split51 - rear-channel loopback router
//
//			Licensed under the Apache License, Version 2.0 (the "License");
//			you may not use this file except in compliance with the License.
//			You may obtain a copy of the License at
//
//			     http://www.apache.org/licenses/LICENSE-2.0
//
//			Unless required by applicable law or agreed to in writing, software
//			distributed under the License is distributed on an "AS IS" BASIS,
//			WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//			See the License for the specific language governing permissions and
//			limitations under the License.
//
// =================================================================================

// Package split51 wires the cobra root command: flag parsing, config
// load, logger setup, device listing, and the engine's run loop.
package split51

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tatsu-t/split51/internal/audio"
	"github.com/tatsu-t/split51/internal/config"
	"github.com/tatsu-t/split51/internal/engine"
	"github.com/tatsu-t/split51/internal/logging"
	"github.com/tatsu-t/split51/internal/signalctx"
)

// Exit codes per spec.md §6.
const (
	exitSuccess     = 0
	exitConfigError = 1
	exitDeviceError = 2
	exitFatalError  = 3
)

var (
	argList  bool
	argQuiet bool
	argDebug bool

	rootCmd = &cobra.Command{
		Use:     "split51",
		Short:   "Route a primary render device's rear-surround pair to a second stereo output",
		Version: "0.1.0",

		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
)

func init() {
	rootCmd.Flags().BoolVarP(&argList, "list", "l", false, "List render endpoints and exit")
	rootCmd.Flags().BoolVarP(&argQuiet, "quiet", "q", false, "Suppress tray notifications")
	rootCmd.Flags().BoolVarP(&argDebug, "debug", "", false, "Enable debug-level logging")
}

// Execute adds all child commands to the root command and runs it. It
// is called once from main.main and maps every failure mode to one of
// spec.md §6's exit codes rather than relying on cobra's own os.Exit(1).
func Execute() {
	exitCode := exitSuccess

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		exitCode = exitCodeFor(err)
	}

	os.Exit(exitCode)
}

func exitCodeFor(err error) int {
	perr, ok := err.(*engine.Error)
	if !ok {
		return exitFatalError
	}

	switch perr.Kind {
	case engine.KindConfigParseError, engine.KindCoefficientOutOfRange:
		return exitConfigError
	case engine.KindDeviceNotFound, engine.KindUnsupportedFormat, engine.KindDeviceBusy, engine.KindDeviceRemoved:
		return exitDeviceError
	default:
		return exitFatalError
	}
}

func run() error {
	logger, closeLog, err := logging.Init(logging.Options{Quiet: argQuiet, Debug: argDebug})
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	defer closeLog()

	backend := audio.NewWASAPIBackend()
	ctx := context.Background()

	if argList {
		return listDevices(ctx, backend)
	}

	cfgPath, err := config.DefaultPath()
	if err != nil {
		return fmt.Errorf("resolving config path: %w", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return engine.ErrConfigParseError(err)
	}
	e := engine.New(backend, logger, cfg)

	runCtx, cancel := context.WithCancel(ctx)
	signalctx.CatchInterrupt(func() {
		logger.Info("split51: shutdown signal received")
		e.Disable()
		cancel()
	})

	if err := e.Enable(runCtx); err != nil {
		return err
	}

	<-runCtx.Done()
	e.Disable()
	return nil
}

func listDevices(ctx context.Context, backend audio.Backend) error {
	endpoints, err := backend.Enumerate(ctx)
	if err != nil {
		return fmt.Errorf("enumerating devices: %w", err)
	}
	for i, ep := range endpoints {
		fmt.Printf("%d\t%s\t%d\t%d\n", i, ep.Name, ep.SampleRate, ep.Channels)
	}
	return nil
}
