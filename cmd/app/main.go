package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"

	"video-detector/frontend"
	"video-detector/internal/bootstrap"
)

func main() {
	logger, err := logs.NewLog()
	if err != nil {
		panic(err)
	}

	parser := argparse.NewParser("video-detector", "Detect selected targets in a video file or live camera feed")
	configPath := parser.String("c", "config", &argparse.Options{Help: "Settings file (default ~/.video-detector/settings.json)"})
	serve := parser.Flag("s", "serve", &argparse.Options{Help: "Serve the browser UI and HTTP API instead of opening a window"})
	listen := parser.String("l", "listen", &argparse.Options{Help: "Listen address for --serve, overriding the saved setting (eg 127.0.0.1:8080)"})
	device := parser.String("d", "device", &argparse.Options{Help: "Camera device, overriding the saved setting"})
	if err := parser.Parse(os.Args); err != nil {
		logger.Errorf(parser.Usage(err))
		os.Exit(1)
	}

	app, err := bootstrap.New(bootstrap.Options{
		ConfigPath:   *configPath,
		CameraDevice: *device,
		Assets:       frontend.Assets,
		Log:          logger,
	})
	if err != nil {
		logger.Errorf("Bootstrap app: %v", err)
		os.Exit(1)
	}

	if !*serve {
		if err := app.Run(); err != nil {
			logger.Errorf("Run app: %v", err)
			os.Exit(1)
		}
		return
	}

	addr := *listen
	if addr == "" {
		settings, err := app.GetSettings()
		if err != nil {
			logger.Errorf("Load settings: %v", err)
			os.Exit(1)
		}
		addr = settings.ListenAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.Serve(ctx, addr); err != nil {
		logger.Errorf("Serve: %v", err)
		os.Exit(1)
	}
	logger.Infof("Shut down")
}
