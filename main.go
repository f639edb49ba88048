package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/algoverse/cartoonbooth/api"
	"github.com/algoverse/cartoonbooth/booth"
	"github.com/algoverse/cartoonbooth/config"
	"github.com/algoverse/cartoonbooth/model"
	"github.com/algoverse/cartoonbooth/overlay"
)

var version = "v0.1.0"

func main() {
	root := &cobra.Command{
		Use:           "cartoonbooth",
		Short:         "Photo booth that cartoonizes, brands and publishes pictures",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	var configPath, envFile string
	var passthrough bool
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to config file")
	root.PersistentFlags().StringVar(&envFile, "env", ".env", "Path to .env file")
	root.PersistentFlags().BoolVar(&passthrough, "passthrough", false, "Skip the model and only brand the photo")

	// --- serve command -------------------------------------------------------
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the kiosk web UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, envFile, passthrough)
		},
	})

	// --- cartoonize command --------------------------------------------------
	var outDir string
	cartoonizeCmd := &cobra.Command{
		Use:   "cartoonize [photo]",
		Short: "Run the pipeline once on a photo file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCartoonize(configPath, envFile, passthrough, args[0], outDir)
		},
	}
	cartoonizeCmd.Flags().StringVarP(&outDir, "out", "o", ".", "Directory for cartoon.png and qr.png")
	root.AddCommand(cartoonizeCmd)

	// --- version command -----------------------------------------------------
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cartoonbooth %s\n", version)
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

// setup loads configuration and builds the pipeline. Every error returned
// here is fatal: the process must not accept visitors without fonts, model
// and credential.
func setup(configPath, envFile string, passthrough bool) (*config.Config, *booth.Pipeline, *slog.Logger, error) {
	// 1. Load config
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	// 2. Setup logger
	log := newLogger(cfg.LogLevel)
	slog.SetDefault(log)

	// 3. Load branding fonts
	labels, err := overlay.Load(cfg.FontDir, overlay.DefaultLabels)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load fonts: %w", err)
	}

	// 4. Connect the model
	var transformer model.Transformer = model.Identity
	if passthrough {
		log.Warn("passthrough mode: photos are branded without cartoonization")
	} else {
		client := model.NewClient(cfg.Model.BaseURL, cfg.Model.Name, cfg.Device, log,
			model.WithAPIKey(cfg.Model.APIKey),
			model.WithTimeout(cfg.Model.Timeout.Duration),
			model.WithMaxSide(cfg.MaxSide),
		)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := client.Load(ctx); err != nil {
			return nil, nil, nil, fmt.Errorf("load model: %w", err)
		}
		transformer = client
	}

	// 5. Publisher and QR encoder
	publisher := booth.NewImgurPublisher(cfg.Upload.Endpoint, cfg.Upload.ClientID, cfg.Upload.TempDir, cfg.Upload.Timeout.Duration, log)
	encoder := booth.NewQREncoder(cfg.QRSize)

	pipeline := booth.NewPipeline(transformer, labels, publisher, encoder, cfg.MaxSide, log)
	return cfg, pipeline, log, nil
}

// runServe is the main service entrypoint that wires all components together.
func runServe(configPath, envFile string, passthrough bool) error {
	cfg, pipeline, log, err := setup(configPath, envFile, passthrough)
	if err != nil {
		return err
	}

	log.Info("starting cartoonbooth", "version", version, "port", cfg.Port, "model", cfg.Model.Name, "device", cfg.Device)

	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Port),
		Handler: api.NewRouter(&api.Server{
			Runner:    pipeline,
			Log:       log,
			Version:   version,
			Model:     cfg.Model.Name,
			Device:    cfg.Device,
			StartTime: time.Now(),
		}),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: cfg.Model.Timeout.Duration + cfg.Upload.Timeout.Duration + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("kiosk is running", "url", fmt.Sprintf("http://localhost:%d/", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", "error", err)
	}

	log.Info("goodbye")
	return nil
}

// runCartoonize runs the pipeline once on a file and writes the results to
// outDir.
func runCartoonize(configPath, envFile string, passthrough bool, photoPath, outDir string) error {
	_, pipeline, log, err := setup(configPath, envFile, passthrough)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(photoPath)
	if err != nil {
		return fmt.Errorf("read photo: %w", err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir %s: %w", outDir, err)
	}

	res, runErr := pipeline.RunBytes(context.Background(), data)
	if res != nil && !res.Image.Empty() {
		png, err := res.Image.PNG()
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		path := filepath.Join(outDir, "cartoon.png")
		if err := os.WriteFile(path, png, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		log.Info("wrote cartoon", "path", path)
	}
	if runErr != nil {
		return fmt.Errorf("%s: %w", booth.FailureMessage(runErr), runErr)
	}

	qrPath := filepath.Join(outDir, "qr.png")
	if err := os.WriteFile(qrPath, res.QR, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", qrPath, err)
	}
	log.Info("wrote qr code", "path", qrPath)

	fmt.Println(res.URL)
	return nil
}
