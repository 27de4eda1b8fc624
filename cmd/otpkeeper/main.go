package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"

	"otpkeeper/internal/buildinfo"
	"otpkeeper/internal/client/cli"
	"otpkeeper/internal/client/config"
	"otpkeeper/internal/logging"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()

	// keep structured logs out of the interactive prompt
	logFile, err := os.OpenFile("otpkeeper.log", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	var logOut io.Writer = os.Stderr
	if err == nil {
		defer logFile.Close()
		logOut = logFile
	}
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(logOut, nil)))

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	app.Run(ctx)

}
