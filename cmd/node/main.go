// Command node runs one replica: it loads and validates the replica's
// configuration, brings up the client fabric and the replica mesh and hands
// both to the engine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/VanDung-dev/HieraChain-Replica/logging"
)

// Version information
const (
	Version = "0.1.0"
	Name    = "HieraChain-Replica"
)

func main() {
	// Optional; flags and the real environment still apply without it.
	_ = godotenv.Load()

	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "%s: %v\n", Name, err)
		os.Exit(2)
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", Name, err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := prepareConfig(opts)
	if err != nil {
		return err
	}

	log, err := logging.New(logging.Config{
		Verbosity: opts.Verbosity,
		FilePath:  opts.LogFile,
		Compress:  true,
		NodeID:    strconv.Itoa(int(cfg.ID)),
	})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting", zap.String("name", Name), zap.String("version", Version),
		zap.String("config", opts.ConfigPath))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := startReplica(ctx, cfg, opts, log)
	if err != nil {
		log.Error("startup failed", zap.Error(err))
		return err
	}
	if err := r.run(); err != nil {
		log.Error("replica stopped with error", zap.Error(err))
		return err
	}
	log.Info("replica stopped")
	return nil
}
