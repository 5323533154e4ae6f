// Package cli builds the rtp2httpd root command: flag/config wiring via
// spf13/cobra + spf13/viper (grounded on nabbar-golib/cobra's
// configure.go, re-scoped from its multi-command/multi-format component
// registry down to one binary with one INI config file), and the
// supervisor-or-worker dispatch spec §6.4 describes.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stackia/rtp2httpd/internal/config"
	"github.com/stackia/rtp2httpd/internal/logger"
	"github.com/stackia/rtp2httpd/internal/supervisor"
	"github.com/stackia/rtp2httpd/internal/worker"
)

const (
	defaultBrokerReadyTimeout = 5 * time.Second
	statusPublishInterval     = 1 * time.Second
)

var configPath string

// Execute builds and runs the root command against os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand assembles the cobra.Command tree: one command, with a
// subset of the [global]/[bind] options mirrored as flags via
// config.BindFlags (the rest are set only from the config file).
func NewRootCommand() *cobra.Command {
	v := viper.New()
	config.Defaults(v)

	cmd := &cobra.Command{
		Use:   "rtp2httpd",
		Short: "Multicast/RTSP to HTTP gateway",
		Long: "rtp2httpd relays multicast RTP/UDP channels and RTSP streams to " +
			"plain HTTP byte streams, with optional FCC-accelerated channel " +
			"change and udpxy-compatible request routes.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v)
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the INI config file (default ~/.rtp2httpd/rtp2httpd.ini)")
	config.BindFlags(v, cmd.Flags())

	ctx, cancel := context.WithCancel(context.Background())
	cmd.SetContext(ctx)
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		cancel()
	}()

	return cmd
}

func run(ctx context.Context, v *viper.Viper) error {
	path := configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return err
		}
	}

	cfg, err := config.Load(v, path)
	if err != nil {
		return err
	}

	level, _ := logger.ParseLevel(cfg.Global.Verbosity)
	log := logger.New(logger.Options{Level: level, Colorize: true, Fields: logger.Fields{"pid": os.Getpid()}}).With(nil)

	if natsURL := os.Getenv(supervisor.WorkerEnvVar); natsURL != "" {
		return runWorker(ctx, cfg, log, natsURL, v)
	}
	return runSupervisor(ctx, cfg, log)
}

// runSupervisor starts the embedded NATS broker and forks cfg.Bind.Workers
// copies of the current executable, restarting any that exit (spec §6.4).
// Config reload is handled inside each worker process (runWorker), since
// the supervisor itself holds no client state to preserve across a
// reload.
func runSupervisor(ctx context.Context, cfg *config.Config, log *logger.Entry) error {
	broker, err := supervisor.StartBroker(log, defaultBrokerReadyTimeout)
	if err != nil {
		return fmt.Errorf("cli: starting control bus: %w", err)
	}
	defer broker.Shutdown()

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("cli: resolving executable path: %w", err)
	}

	sup := supervisor.New(broker, log, self, os.Args[1:], cfg.Bind.Workers)
	return sup.Run(ctx)
}

// runWorker runs a single worker process: it dials the control bus the
// parent passed via RTP2HTTPD_NATS_URL, starts the HTTP front end, and
// publishes status snapshots on a timer. Config changes picked up by
// fsnotify (spec §6.2) are applied via Worker.SetServices without
// dropping already-connected clients. Commands received on the control
// bus are only logged: force-disconnect does not tombstone the client and
// set-log-level does not change this worker's level.
func runWorker(ctx context.Context, cfg *config.Config, log *logger.Entry, natsURL string, v *viper.Viper) error {
	idx := 0
	if s := os.Getenv(supervisor.WorkerIndexEnvVar); s != "" {
		fmt.Sscanf(s, "%d", &idx)
	}

	wc, err := supervisor.DialWorker(natsURL, idx, log)
	if err != nil {
		return fmt.Errorf("cli: worker %d: dialing control bus: %w", idx, err)
	}
	defer wc.Close()

	w, err := worker.New(cfg, log)
	if err != nil {
		return err
	}

	config.Watch(v, log, func(next *config.Config) {
		w.SetServices(next.Services)
	})

	stop := make(chan struct{})
	defer close(stop)
	go wc.RunStatusLoop(statusPublishInterval, stop, w.Snapshot)

	sub, err := wc.OnCommand(func(cmd supervisor.Command) {
		log.Infof("worker %d: received command %s", idx, cmd.Kind)
	})
	if err == nil {
		defer sub.Unsubscribe()
	}

	return w.Run(ctx)
}
