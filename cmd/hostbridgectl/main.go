package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gin-gonic/gin"
	"github.com/gopxl/beep/speaker"

	"github.com/danmuck/hostbridge/internal/admin"
	"github.com/danmuck/hostbridge/internal/bridge"
	"github.com/danmuck/hostbridge/internal/config"
	"github.com/danmuck/hostbridge/internal/deferred"
	"github.com/danmuck/hostbridge/internal/host"
	"github.com/danmuck/hostbridge/internal/hostthread"
	"github.com/danmuck/hostbridge/internal/logging"
	"github.com/danmuck/hostbridge/internal/logs"
	"github.com/danmuck/hostbridge/internal/notify"
	"github.com/danmuck/hostbridge/internal/observability"
	"github.com/danmuck/hostbridge/internal/relay"
	"github.com/danmuck/hostbridge/internal/termhost"
)

const (
	defaultConfigPath = "cmd/hostbridgectl/config.toml"
	version           = "0.1.0"
)

func init() {
	// The host thread is the main thread for the life of the process.
	runtime.LockOSThread()
}

func main() {
	configPath := flag.String("config", defaultConfigPath, "config path (defaults are used when missing)")
	headless := flag.Bool("headless", false, "run without drawing to the terminal")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hostbridgectl: %v\n", err)
		os.Exit(1)
	}
	logOut, closeLog, err := configureLogging(cfg, *headless)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hostbridgectl: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(cfg, *headless, logOut); err != nil {
		logs.Errf("hostbridgectl.run err=%v", err)
		closeLog()
		fmt.Fprintf(os.Stderr, "hostbridgectl: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config.Default(), nil
		}
		return config.Config{}, err
	}
	return config.Load(path)
}

func configureLogging(cfg config.Config, headless bool) (io.Writer, func(), error) {
	if headless || cfg.LogFile == "" {
		logging.Configure(logging.ProfileRuntime, logging.WithLevel(cfg.LogLevel))
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logging.Configure(logging.ProfileRuntime, logging.WithLevel(cfg.LogLevel), logging.WithOutput(f))
	var once sync.Once
	return f, func() { once.Do(func() { _ = f.Close() }) }, nil
}

func run(cfg config.Config, headless bool, logOut io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	guard := hostthread.NewGuard()
	if cfg.Host.Strict {
		guard.SetStrict(true)
	}
	queue := deferred.NewQueue(guard)
	sim := host.NewSim()

	screen, err := newScreen(headless)
	if err != nil {
		return err
	}
	finiScreen := sync.OnceFunc(screen.Fini)
	defer finiScreen()
	desktop := termhost.NewDesktop(screen, termhost.DefaultScale)

	player, closeAudio := newPlayer(cfg.Notify)
	defer closeAudio()

	plugin := bridge.NewPlugin(bridge.Options{
		Guard:          guard,
		Queue:          queue,
		Scheduler:      sim,
		Windows:        desktop,
		VR:             desktop,
		Player:         player,
		Interval:       cfg.Host.TickInterval,
		WindowConfigs:  cfg.Windows,
		StartupWindows: cfg.Host.StartupWindows,
	})
	worker, err := relay.NewWorker(cfg.Relay, queue, plugin)
	if err != nil {
		return err
	}
	plugin.SetRelay(worker)

	if err := plugin.Enable(ctx); err != nil {
		return fmt.Errorf("enable plugin: %w", err)
	}

	var wg sync.WaitGroup
	if cfg.Admin.Enabled {
		gin.SetMode(gin.ReleaseMode)
		srv := admin.New(admin.Options{
			Listen:      cfg.Admin.Listen,
			CorsOrigins: cfg.Admin.CorsOrigins,
			Logger:      observability.NewLogger(logOut, "hostbridge-admin"),
			Version:     version,
			Token:       cfg.Admin.Token,
		}, plugin)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx); err != nil {
				logs.Errf("hostbridgectl.admin err=%v", err)
			}
		}()
	}

	if !headless {
		ui := newUI(plugin, desktop, player, stop)
		ui.install(sim)
		wg.Add(1)
		go func() {
			defer wg.Done()
			desktop.Pump(ctx, queue)
		}()
	}

	logs.Infof("hostbridgectl.run session=%s relay=%s headless=%v", worker.SessionID(), cfg.Relay.Address, headless)
	runErr := sim.Run(ctx, cfg.Host.Frame)
	plugin.Disable()
	// Release the event pump before waiting on it.
	finiScreen()
	wg.Wait()
	return runErr
}

func newScreen(headless bool) (tcell.Screen, error) {
	if headless {
		s := tcell.NewSimulationScreen("UTF-8")
		if err := s.Init(); err != nil {
			return nil, err
		}
		s.SetSize(160, 50)
		return s, nil
	}
	s, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("open terminal: %w", err)
	}
	if err := s.Init(); err != nil {
		return nil, fmt.Errorf("init terminal: %w", err)
	}
	return s, nil
}

// newPlayer falls back to silence when chimes are off or no audio device opens.
func newPlayer(cfg config.NotifyConfig) (notify.Player, func()) {
	if !cfg.Enabled {
		return notify.Silent{}, func() {}
	}
	if err := speaker.Init(notify.SampleRate, notify.SampleRate.N(time.Second/10)); err != nil {
		logs.Warnf("hostbridgectl.newPlayer audio unavailable err=%v", err)
		return notify.Silent{}, func() {}
	}
	return notify.NewStreamPlayer(speaker.Play, notify.SampleRate, cfg.Volume), speaker.Clear
}
