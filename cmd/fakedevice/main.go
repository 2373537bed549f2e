package main

import (
	"context"
	"errors"
	"github.com/cyclopcam/connect/cmd/base"
	"github.com/cyclopcam/connect/lib/util/fakedevice"
	flags "github.com/jessevdk/go-flags"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

type options struct {
	Listen     string `long:"listen" default:":8080" description:"Address to serve the device API on"`
	Hostname   string `long:"hostname" default:"cyclops" description:"Hostname that the device reports"`
	Token      string `long:"token" env:"CYCLOPS_TOKEN" required:"yes" description:"Bearer token that the device accepts"`
	New        bool   `long:"new" description:"Act like a device that has not been set up"`
	DebugLevel string `short:"d" long:"debuglevel" default:"info" description:"Logging level"`
}

var log = base.Logger("FDEV")

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
	if err := base.SetLogLevels(opts.DebugLevel); err != nil {
		log.Critical(err)
		os.Exit(1)
	}

	d, err := fakedevice.New(opts.Hostname, opts.Token)
	if err != nil {
		log.Criticalf("Failed to create device: %v", err)
		os.Exit(1)
	}
	d.SetHasAdmin(!opts.New)
	log.Infof("Public key %v", d.ID())
	log.Infof("Session %v", d.NewSession())

	server := &http.Server{
		Addr:    opts.Listen,
		Handler: d.Handler(),
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Infof("Listening on %v", opts.Listen)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Criticalf("Failed to serve: %v", err)
		os.Exit(1)
	}
}
