package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"wristdisp/internal/config"
	appLog "wristdisp/internal/log"
)

// flagConfig holds CLI flag values; they override the config file.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	renderOnly bool
	dump       bool
	dumpPath   string
}

func main() {
	appLog.Info("wristdisp starting", "version", "0.1.0")

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("effective config",
		"listen", conf.Listen,
		"panel", conf.Panel.Driver,
		"size", conf.Panel.Width, "x", conf.Panel.Height,
		"total_lines", conf.Panel.TotalLines,
		"touch", conf.Touch.Driver,
		"scroll", conf.Scroll.Enabled,
		"transitions", len(conf.Transitions),
		"once", flags.once,
		"render_only", flags.renderOnly,
		"dump", flags.dump,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	a, err := newApp(conf, flags.renderOnly)
	if err != nil {
		appLog.Error("failed to start display pipeline", err)
		os.Exit(1)
	}
	defer a.Close()

	if flags.once {
		a.once(ctx)
	} else {
		a.run(ctx)
	}

	if flags.dump {
		if err := a.dump(flags.dumpPath); err != nil {
			appLog.Error("failed to write preview", err, "path", flags.dumpPath)
		} else {
			appLog.Info("preview written", "path", flags.dumpPath)
		}
	}
	appLog.Info("wristdisp exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/wristdisp/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Render one frame and exit")
	flag.BoolVar(&cfg.renderOnly, "render-only", false, "Render only; do not touch display or touch hardware")
	flag.BoolVar(&cfg.dump, "dump", false, "Write the preview PNG on exit")
	flag.StringVar(&cfg.dumpPath, "dump-path", "./cache/preview.png", "Where -dump writes the preview")

	flag.Parse()

	return cfg
}
