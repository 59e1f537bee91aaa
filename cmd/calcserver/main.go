// Command calcserver runs the calculator server until it receives SIGINT or
// SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/JaroslawMajcherczyk/PUS/logger"
	"github.com/JaroslawMajcherczyk/PUS/tcpserver"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := tcpserver.DefaultConfig()
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	flag.IntVar(&cfg.MaxClients, "max-clients", cfg.MaxClients, "Number of client slots")
	flag.DurationVar(&cfg.ShutdownGrace, "grace", cfg.ShutdownGrace, "Delay between closing clients and exiting")
	flag.DurationVar(&cfg.CacheTTL, "cache-ttl", cfg.CacheTTL, "Lifetime of memoised results (0 disables)")
	logLevel := flag.String("log-level", "info", "Log level")
	logDir := flag.String("log-dir", "", "Also write daily log files to this directory")
	flag.Parse()

	log, err := newLogger("calcserver", *logLevel, *logDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer log.Close()

	srv := tcpserver.NewTCPServer(cfg, log)
	if err := srv.Listen(); err != nil {
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Serve(ctx); err != nil {
		log.Error("server failed", logger.Field{Key: "error", Value: err})
		return 1
	}

	return 0
}

func newLogger(service, level, dir string) (logger.Logger, error) {
	lvl, err := logger.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	if dir != "" {
		return logger.NewZerologFileLogger(service, dir, lvl)
	}

	return logger.NewConsoleLogger(os.Stderr, service, lvl), nil
}
