package main

import (
	"context"
	"log"
	"time"

	"github.com/proctorline/relay"
)

// A minimal host: builds the runtime from config, opens the capture gate
// and feeds frames from an in-process producer while the assessment runs.
func main() {
	rt, err := relay.NewRuntime(mustConfig())
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}

	if err := rt.Start(); err != nil {
		log.Fatalf("start runtime: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	rt.StartCapture()
	go captureFrames(ctx, rt)

	if _, err := rt.RaiseAlert(ctx, relay.LevelInfo, "SESSION_STARTED", nil); err != nil {
		log.Printf("raise alert: %v", err)
	}

	<-ctx.Done()
	rt.StopCapture()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := rt.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

func captureFrames(ctx context.Context, rt *relay.Runtime) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rt.Stream().EmitCapture(relay.CaptureEvent{
				Sensor:   "camera",
				Data:     grabFrame(),
				MimeType: "image/jpeg",
			})
		}
	}
}

// grabFrame stands in for a real webcam capture.
func grabFrame() string {
	return "/9j/4AAQSkZJRg=="
}

func mustConfig() *relay.Config {
	cfg, err := relay.LoadConfig("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	return cfg
}
