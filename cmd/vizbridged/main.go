package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"vizbridged/internal/bridge"
	"vizbridged/internal/common/fsutil"
	"vizbridged/internal/config"
	"vizbridged/internal/httpapi"
	"vizbridged/internal/protocol"
	"vizbridged/internal/registry"
	"vizbridged/internal/shader"
	"vizbridged/internal/supervisor"
	"vizbridged/internal/transport"
)

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// splitCSV splits a comma-separated flag value, trimming blanks.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func main() {
	// Flags with environment variable defaults
	addr := flag.String("addr", envDefault("VIZBRIDGED_ADDR", ":8080"), "HTTP listen address, e.g. :8080")
	configPath := flag.String("config", envDefault("VIZBRIDGED_CONFIG", ""), "Optional config file (.yaml/.json/.toml)")
	pluginsDir := flag.String("plugins-dir", envDefault("VIZBRIDGED_PLUGINS_DIR", "./plugins"), "Directory holding plugin bundles")
	runtimeExe := flag.String("runtime", envDefault("VIZBRIDGED_RUNTIME", "vizruntime"), "Plugin runtime executable")
	shmRegion := flag.String("shm-region", envDefault("VIZBRIDGED_SHM_REGION", "vizbridged-audio"), "Shared-memory region name for audio snapshots")
	spectrumBins := flag.Int("spectrum-bins", 512, "Spectrum bins per snapshot")
	waveformSamples := flag.Int("waveform-samples", 512, "Waveform samples per snapshot")
	stateFile := flag.String("state-file", envDefault("VIZBRIDGED_STATE_FILE", ""), "Project state file saved on shutdown (empty disables)")
	corsOrigins := flag.String("cors-origins", envDefault("VIZBRIDGED_CORS_ORIGINS", ""), "Comma-separated allowed CORS origins (empty disables CORS)")
	logLevel := flag.String("log-level", envDefault("VIZBRIDGED_LOG_LEVEL", "info"), "Log level: trace|debug|info|warn|error")
	flag.Parse()

	cfg := config.Config{
		Addr:              *addr,
		PluginsDir:        *pluginsDir,
		RuntimeExe:        *runtimeExe,
		ShmRegion:         *shmRegion,
		SpectrumBins:      *spectrumBins,
		WaveformSamples:   *waveformSamples,
		MaxRestarts:       5,
		RestartCooldownMS: 200,
		LogLevel:          *logLevel,
	}
	if *configPath != "" {
		fileCfg, err := config.Load(*configPath)
		if err != nil {
			boot := zerolog.New(os.Stderr)
			boot.Fatal().Err(err).Str("path", *configPath).Msg("load config")
		}
		cfg = mergeConfig(cfg, fileCfg)
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = splitCSV(*corsOrigins)
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Str("svc", "vizbridged").Logger()

	// Prescan the plugins dir so a broken install is visible before the
	// runtime's own discovery runs.
	if local, err := registry.LoadDir(cfg.PluginsDir, logger); err != nil {
		logger.Warn().Err(err).Str("dir", cfg.PluginsDir).Msg("plugins dir prescan failed")
	} else {
		logger.Info().Int("manifests", len(local)).Str("dir", cfg.PluginsDir).Msg("plugins dir prescan")
	}

	br := bridge.New(logger, bridge.Config{
		RegionPath:       transport.RegionPath(cfg.ShmRegion),
		Codec:            protocol.FrameCodec{SpectrumLen: cfg.SpectrumBins, WaveformLen: cfg.WaveformSamples},
		RoundTripTimeout: time.Duration(cfg.RoundTripTimeoutMS) * time.Millisecond,
		Policy: supervisor.Policy{
			MaxRestarts: cfg.MaxRestarts,
			Cooldown:    time.Duration(cfg.RestartCooldownMS) * time.Millisecond,
		},
	}, bridge.ExecLauncher{
		Log:  logger,
		Exe:  cfg.RuntimeExe,
		Args: cfg.RuntimeArgs,
		Env:  []string{"VIZ_PLUGINS_DIR=" + cfg.PluginsDir},
	}, shader.NewSoftCompiler(shader.Capability{
		PersistentCompute: os.Getenv("VIZBRIDGED_PERSISTENT_COMPUTE") != "0",
	}))

	// A failed initial launch is already in the supervisor's crash/restart
	// cycle; keep serving so /readyz and /status surface the state.
	if err := br.Start(); err != nil {
		logger.Error().Err(err).Msg("runtime start failed")
	}

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	if *stateFile != "" && fsutil.PathExists(*stateFile) {
		if data, err := os.ReadFile(*stateFile); err != nil {
			logger.Warn().Err(err).Str("path", *stateFile).Msg("read project state")
		} else if err := br.LoadAll(baseCtx, data); err != nil {
			logger.Warn().Err(err).Str("path", *stateFile).Msg("restore project state")
		} else {
			logger.Info().Str("path", *stateFile).Msg("project state restored")
		}
	}

	httpapi.SetLogger(logger)
	httpapi.SetBaseContext(baseCtx)
	if len(cfg.CORSAllowedOrigins) > 0 {
		httpapi.SetCORSOptions(true, cfg.CORSAllowedOrigins,
			[]string{"GET", "POST", "DELETE", "OPTIONS"}, []string{"Content-Type"})
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(br),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("plugins_dir", cfg.PluginsDir).Msg("vizbridged listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	if *stateFile != "" {
		saveCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if data, err := br.SaveAll(saveCtx); err != nil {
			logger.Warn().Err(err).Msg("save project state")
		} else if err := fsutil.WriteFileAtomic(*stateFile, data, 0o644); err != nil {
			logger.Warn().Err(err).Str("path", *stateFile).Msg("write project state")
		} else {
			logger.Info().Str("path", *stateFile).Msg("project state saved")
		}
		cancel()
	}

	cancelBase()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown error")
	}
	if err := br.Close(); err != nil {
		logger.Warn().Err(err).Msg("bridge close error")
	}
}

// mergeConfig overlays non-zero file values onto the flag-derived config.
func mergeConfig(base, file config.Config) config.Config {
	if file.Addr != "" {
		base.Addr = file.Addr
	}
	if file.PluginsDir != "" {
		base.PluginsDir = file.PluginsDir
	}
	if file.RuntimeExe != "" {
		base.RuntimeExe = file.RuntimeExe
	}
	if len(file.RuntimeArgs) > 0 {
		base.RuntimeArgs = file.RuntimeArgs
	}
	if file.ShmRegion != "" {
		base.ShmRegion = file.ShmRegion
	}
	if file.SpectrumBins > 0 {
		base.SpectrumBins = file.SpectrumBins
	}
	if file.WaveformSamples > 0 {
		base.WaveformSamples = file.WaveformSamples
	}
	if file.MaxRestarts > 0 {
		base.MaxRestarts = file.MaxRestarts
	}
	if file.RestartCooldownMS > 0 {
		base.RestartCooldownMS = file.RestartCooldownMS
	}
	if file.RoundTripTimeoutMS > 0 {
		base.RoundTripTimeoutMS = file.RoundTripTimeoutMS
	}
	if len(file.CORSAllowedOrigins) > 0 {
		base.CORSAllowedOrigins = file.CORSAllowedOrigins
	}
	if file.LogLevel != "" {
		base.LogLevel = file.LogLevel
	}
	return base
}
