// Command devserver serves the in-memory fake of the budgeting API so budgetctl can be tried
// without the real backend. All data is lost when it stops.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/family-budget-client/internal/config"
	"github.com/jrsteele09/family-budget-client/internal/fakebackend"
	"github.com/jrsteele09/family-budget-client/internal/logging"
	"github.com/rs/zerolog/log"
)

const (
	demoEmail    = "demo@example.com"
	demoPassword = "password123"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	logger := logging.Setup(c.GetEnv(), c.GetLogLevel())
	displayAppname(c.GetAppName() + " dev")

	backend := fakebackend.New(fakebackend.WithRouteLogging(logger))
	demo := backend.AddUser(demoEmail, demoPassword, "Demo", "User")
	backend.AddFamily(demo.ID, "Demo family")
	logger.Info().Str("email", demoEmail).Str("password", demoPassword).Msg("Seeded demo account")

	server := &http.Server{Addr: c.GetDevServerAddr(), Handler: backend}
	errs := make(chan error, 1)
	go func() { errs <- listenAndServe(server) }()

	select {
	case err := <-errs:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(server)
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Str("api", fakebackend.APIPrefix).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
