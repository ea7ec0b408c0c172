package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/moveatlas/moveatlas-backend/internal/app"
)

func main() {
	application, err := app.New()
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}

	application.Start()

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Run(":" + application.Cfg.Port)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		application.Log.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			application.Log.Error("http server exited", "error", err)
		}
	}

	application.Close()
}
