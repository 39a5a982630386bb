package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Kammelleon/pdf-qa/internal/config"
	"github.com/Kammelleon/pdf-qa/internal/logging"
)

const usage = `usage:
  pdf-qa serve          run the local HTTP bridge
  pdf-qa chat FILE.pdf  upload FILE.pdf and ask questions from the terminal`

func main() {
	cfgPath := os.Getenv("DOCQA_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New(cfg.BasicConfig.LogLevel, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := os.Args[1:]
	mode := "serve"
	if len(args) > 0 {
		mode = args[0]
	}
	switch mode {
	case "serve":
		err = runServe(ctx, cfg, logger)
	case "chat":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
		err = runChat(ctx, cfg, logger, args[1], os.Stdin, os.Stdout)
	case "-h", "--help", "help":
		fmt.Println(usage)
		return
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal().Err(err).Str("mode", mode).Msg("pdf-qa stopped")
	}
}
