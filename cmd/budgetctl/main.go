package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/family-budget-client/app"
	"github.com/jrsteele09/family-budget-client/internal/config"
	"github.com/jrsteele09/family-budget-client/internal/logging"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run(args []string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	logger := logging.Setup(c.GetEnv(), c.GetLogLevel())

	cli := newCLI(os.Stdout, os.Stderr, func(ctx context.Context, opts ...app.Option) (*app.App, error) {
		return app.New(ctx, c, append(opts, app.WithLogger(logger))...)
	})
	defer cli.close()

	root := cli.rootCmd()
	root.SetArgs(args)
	if len(args) == 0 {
		displayAppname(c.GetAppName())
	}
	return root.ExecuteContext(context.Background())
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
