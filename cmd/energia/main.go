// Command energia is a user-session power and idle manager for Linux
// desktops: it watches X11 inactivity, logind inhibitors, and upower
// power state, and drives a schedule of effects (dim, screen off, lock,
// suspend) as the user goes idle.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/energia-project/energia/internal/apperr"
	"github.com/energia-project/energia/internal/config"
	"github.com/energia-project/energia/internal/controller"
	energiadbus "github.com/energia-project/energia/internal/dbus"
	"github.com/energia-project/energia/internal/effect"
	"github.com/energia-project/energia/internal/power"
	"github.com/energia-project/energia/internal/schedule"
	"github.com/energia-project/energia/internal/selector"
	"github.com/energia-project/energia/internal/x11"
)

func main() {
	err := run()
	if err != nil {
		logrus.WithError(err).Error("energia exiting")
	}
	os.Exit(apperr.ExitCode(err))
}

func run() error {
	var (
		configPath   string
		logLevel     string
		logDirectory string
	)

	flags := pflag.NewFlagSet("energia", pflag.ContinueOnError)
	flags.StringVarP(&configPath, "config-file", "c", "", "path to energia.toml (default $HOME/.config/energia/energia.toml)")
	flags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error)")
	flags.StringVar(&logDirectory, "log-directory", "", "directory to write energia.log into, in addition to stderr")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return apperr.New(apperr.ConfigInvalid, "parse flags", err)
	}

	log, err := setupLogging(logLevel, logDirectory)
	if err != nil {
		return apperr.New(apperr.ConfigInvalid, "set up logging", err)
	}

	if configPath == "" {
		configPath = config.DefaultPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.WithField("signal", sig).Info("received shutdown signal")
		cancel()
	}()

	return wire(ctx, cfg, log)
}

func setupLogging(level, directory string) (*logrus.Entry, error) {
	base := logrus.New()
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log-level %q: %w", level, err)
	}
	base.SetLevel(parsed)

	out := io.Writer(os.Stderr)
	if directory != "" {
		if err := os.MkdirAll(directory, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(directory, "energia.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(os.Stderr, f)
	}
	base.SetOutput(out)

	return logrus.NewEntry(base), nil
}

// wire builds every component, connects the required system services, and
// runs the Environment Controller's event loop until ctx is cancelled.
func wire(ctx context.Context, cfg *config.Config, log *logrus.Entry) error {
	x11Source, err := x11.Connect(time.Second, log.WithField("component", "x11"))
	if err != nil {
		return err
	}
	defer x11Source.Close()

	systemConn, err := energiadbus.ConnectSystem()
	if err != nil {
		return apperr.New(apperr.SystemUnavailable, "connect system bus", err)
	}
	defer systemConn.Close()

	logindClient, err := energiadbus.NewLogind(systemConn)
	if err != nil {
		return apperr.New(apperr.SystemUnavailable, "connect logind", err)
	}

	upowerClient := energiadbus.NewUPower(systemConn)

	activeSet := schedule.ActiveSet{Steps: make(map[schedule.SetName]schedule.StepList)}
	for _, name := range []schedule.SetName{schedule.External, schedule.Battery, schedule.LowBattery} {
		if sched, ok := cfg.Schedules[name]; ok {
			activeSet.Steps[name] = schedule.Compile(sched)
		}
	}

	effectors := []effect.Effector{
		effect.NewSession(logindClient, log.WithField("effector", "session")),
		effect.NewSleep(logindClient, log.WithField("effector", "sleep")),
	}

	if usesEffect(cfg, schedule.ScreenOff) {
		dpmsBackend, err := x11.NewDPMS(x11Source)
		if err != nil {
			return apperr.New(apperr.SystemUnavailable, "init DPMS", err)
		}
		effectors = append(effectors, effect.NewDPMS(dpmsBackend, log.WithField("effector", "dpms")))
	}

	if usesEffect(cfg, schedule.ScreenDim) {
		brightnessBackend, err := x11.NewBrightness(x11Source)
		if err != nil {
			return apperr.New(apperr.SystemUnavailable, "init brightness backend", err)
		}
		effectors = append(effectors, effect.NewBrightness(brightnessBackend, cfg.DimPercentage, log.WithField("effector", "brightness")))
	}

	var lockEffector *effect.Lock
	if cfg.HasLock {
		lockEffector = effect.NewLock(effect.LockConfig{Command: cfg.LockCommand, Args: cfg.LockArgs}, logindClient, log.WithField("effector", "lock"))
		effectors = append(effectors, lockEffector)
	}

	registry, err := effect.NewRegistry(effectors...)
	if err != nil {
		return apperr.New(apperr.FatalInternal, "build effector registry", err)
	}

	_, hasBattery := cfg.Schedules[schedule.Battery]
	sel := selector.New(hasBattery, cfg.HasLowBattery, cfg.LowBatteryPercentage)

	ctrl := controller.New(
		x11Source,
		registry,
		lockEffector,
		activeSet,
		sel,
		func(what, who, why string) (*controller.InhibitorHandle, error) {
			inh, err := logindClient.TakeDelayInhibitor(what, who, why)
			if err != nil {
				return nil, err
			}
			return controller.NewInhibitorHandle(inh.Release), nil
		},
		log.WithField("component", "controller"),
	)

	monitor := power.NewMonitor(upowerClient, log.WithField("component", "power"))
	monitor.SetOnStateChange(ctrl.OnPowerStateChange)
	monitor.Start(ctx)

	if cfg.HasLock {
		if sessionConn := connectSessionBus(log); sessionConn != nil {
			if _, err := energiadbus.NewManagerEndpoint(sessionConn, lockEffector, log.WithField("component", "manager-endpoint")); err != nil {
				log.WithError(err).Warn("failed to export org.energia.Manager; explicit Lock() calls unavailable")
			}
		}
	}

	go func() {
		if err := x11Source.Run(ctx); err != nil {
			log.WithError(err).Warn("x11 idleness source stopped")
		}
	}()
	go func() {
		if err := logindClient.WatchBlockInhibited(ctx, ctrl.OnInhibitorChange); err != nil && ctx.Err() == nil {
			log.WithError(err).Warn("logind BlockInhibited watch stopped")
		}
	}()
	go func() {
		if err := logindClient.WatchPrepareForSleep(ctx, ctrl.OnPrepareForSleep); err != nil && ctx.Err() == nil {
			log.WithError(err).Warn("logind PrepareForSleep watch stopped")
		}
	}()

	return ctrl.Run(ctx, monitor.Current())
}

func usesEffect(cfg *config.Config, name schedule.Name) bool {
	for _, sched := range cfg.Schedules {
		if _, ok := sched[name]; ok {
			return true
		}
	}
	return false
}

// connectSessionBus connects to the session bus for the Lock Request
// Endpoint. A failure here is logged, not fatal: the Manager endpoint is
// a convenience, not a required system service.
func connectSessionBus(log *logrus.Entry) *energiadbus.Conn {
	conn, err := energiadbus.ConnectSession()
	if err != nil {
		log.WithError(err).Warn("failed to connect to session bus")
		return nil
	}
	return conn
}
