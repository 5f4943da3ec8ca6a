package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openbehavior/trackpipe/internal/api"
	"github.com/openbehavior/trackpipe/internal/camera"
	"github.com/openbehavior/trackpipe/internal/config"
	"github.com/openbehavior/trackpipe/internal/control"
	"github.com/openbehavior/trackpipe/internal/logger"
	"github.com/openbehavior/trackpipe/internal/pipeline"
	"github.com/openbehavior/trackpipe/internal/preview"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the acquisition pipeline",
	Long: `Start the acquisition pipeline: open the camera, capture frames and
dispatch them to the processing stage and the preview.

The API server exposes camera controls, stats and the MJPEG preview.
The pipeline stops on SIGINT/SIGTERM, on POST /api/stop, or when the
camera goes silent for longer than the configured read timeout.`,
	Example: `  # Run with the built-in simulated camera
  trackpipe run

  # Run with a custom config and verbose logging
  trackpipe run --config ./rig.yaml --log-level debug`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to initialize config manager: %w", err)
	}

	if viper.IsSet("server_port") {
		if port := viper.GetInt("server_port"); port > 0 {
			configMgr.SetPort(port)
		}
	}
	if viper.IsSet("log_level") {
		if level := viper.GetString("log_level"); level != "" {
			configMgr.SetLogLevel(level)
		}
	}

	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, true)
	log := logger.WithComponent("run")
	log.Info().Str("config", configMgr.GetConfigPath()).Msg("Configuration loaded")

	dev, err := buildDevice(cfg.Camera)
	if err != nil {
		return err
	}

	controls := control.NewMailbox()
	stop := pipeline.NewSignal()
	display := make(chan *camera.Frame, 16)

	pipe := pipeline.New(dev, controls, display, stop, pipeline.Options{
		QueueCapacity: cfg.Pipeline.QueueCapacity,
		Dispatcher: pipeline.DispatcherOptions{
			TargetDisplayRate: cfg.Pipeline.TargetDisplayRate,
			ExpectedRate:      cfg.Camera.Rate,
			ReadTimeout:       time.Duration(cfg.Pipeline.ReadTimeoutSec * float64(time.Second)),
			FPSWindow:         cfg.Pipeline.FPSWindow,
			DisplayWait:       time.Duration(cfg.Pipeline.DisplayWaitMS) * time.Millisecond,
		},
	})

	pv := preview.NewMJPEG(cfg.Preview.Width, cfg.Preview.Quality)
	go pv.Consume(display, stop)

	server := api.NewServer(controls, pipe.Dispatcher().Stats, pv, stop)
	go func() {
		if err := server.Start(cfg.ServerPort); err != nil {
			log.Error().Err(err).Msg("API server failed")
			stop.Set()
		}
	}()

	// Seed the initial exposure/gain through the same path the API uses.
	exposureSec := cfg.Camera.ExposureMS / 1000
	controls.Submit(control.ParameterUpdate{
		Exposure: &exposureSec,
		Gain:     &cfg.Camera.Gain,
	})

	done := make(chan error, 1)
	go func() { done <- pipe.Run() }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Info().
		Int("port", cfg.ServerPort).
		Str("device", dev.Name()).
		Msg("Pipeline running, press Ctrl+C to stop")

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
		stop.Set()
		if err := <-done; err != nil {
			return err
		}
	case err := <-done:
		stop.Set()
		if err != nil {
			return err
		}
		log.Info().Msg("Pipeline ended")
	}
	return nil
}

func buildDevice(cfg config.CameraConfig) (camera.Device, error) {
	switch cfg.Backend {
	case "", "sim":
		return camera.NewSimDevice(cfg.Width, cfg.Height, cfg.Rate), nil
	default:
		return nil, fmt.Errorf("unknown camera backend %q", cfg.Backend)
	}
}
