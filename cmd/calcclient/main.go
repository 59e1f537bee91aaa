// Command calcclient connects to a calculator server and forwards equations
// typed on stdin.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/JaroslawMajcherczyk/PUS/calcclient"
	"github.com/JaroslawMajcherczyk/PUS/eventdriventcpclient"
	"github.com/JaroslawMajcherczyk/PUS/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	addr := flag.String("addr", "127.0.0.1:8080", "Server address")
	logLevel := flag.String("log-level", "warn", "Log level")
	flag.Parse()

	lvl, err := logger.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	log := logger.NewConsoleLogger(os.Stderr, "calcclient", lvl)
	defer log.Close()

	transport := eventdriventcpclient.NewEventDrivenTCPClient(eventdriventcpclient.DefaultEventDrivenTCPClientConfig(*addr))
	defer transport.Close()

	if err := transport.Connect(); err != nil {
		log.Error("could not connect to server", logger.Field{Key: "addr", Value: *addr}, logger.Field{Key: "error", Value: err})
		return 1
	}
	fmt.Println("Connected to server.")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outcome, err := calcclient.New(calcclient.DefaultConfig(), transport, os.Stdout, log).Run(ctx, os.Stdin)
	log.Info("session ended", logger.Field{Key: "outcome", Value: outcome.String()})
	fmt.Println("Client finished.")

	if err != nil {
		return 1
	}

	return 0
}
