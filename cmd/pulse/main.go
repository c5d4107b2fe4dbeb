// Package main provides the pulse CLI. It runs one step of the daily cycle,
// or the whole cycle, against the configured community and exits.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/community-pulse/internal/app"
	"github.com/community-pulse/internal/config"
	"github.com/community-pulse/internal/errors"
	"github.com/community-pulse/internal/models"
)

func main() {
	var (
		action  = flag.String("action", "cycle", "Action: cycle, sync, collect, resync, cleanup, report")
		dateStr = flag.String("date", "", "Day to process (YYYY-MM-DD); defaults to today in SCHEDULE_TIMEZONE")
		user    = flag.String("user", "", "Collect a single member with -action collect")
		confirm = flag.Bool("confirm", false, "Required by -action resync")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := app.InitLogging(cfg)

	date, err := resolveDate(cfg, *dateStr)
	if err != nil {
		logger.WithError(err).Fatal("Invalid date")
	}

	a, err := app.New(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	out, err := run(ctx, a, *action, date, *user, *confirm)
	stop()
	a.Close()

	if err != nil {
		logger.WithError(err).WithField("action", *action).Error("Action failed")
		if out != nil {
			printJSON(out)
		}
		os.Exit(exitCode(err))
	}

	if s, ok := out.(string); ok {
		fmt.Print(s)
		return
	}
	printJSON(out)
}

func run(ctx context.Context, a *app.App, action string, date time.Time, user string, confirm bool) (interface{}, error) {
	switch action {
	case "cycle":
		return a.Pipeline.RunCycle(ctx, date)

	case "report":
		summary, err := a.Pipeline.LoadSummary(ctx, date)
		if err != nil {
			return nil, err
		}
		return a.Renderer.Render(summary)

	case "sync", "collect", "resync", "cleanup":
	default:
		return nil, errors.NewInvalidParameterError("action", fmt.Sprintf("unknown action %q", action))
	}

	var out interface{}
	err := a.Pipeline.Exclusive(ctx, func(ctx context.Context) error {
		var err error
		out, err = step(ctx, a, action, date, user, confirm)
		return err
	})
	return out, err
}

// step runs one mutating action; the caller holds the run lock
func step(ctx context.Context, a *app.App, action string, date time.Time, user string, confirm bool) (interface{}, error) {
	switch action {
	case "sync":
		return a.Membership.Sync(ctx), nil

	case "collect":
		if user == "" {
			return a.Activity.CollectAll(ctx, date)
		}
		return a.Activity.CollectOne(ctx, user, date)

	case "resync":
		return a.Membership.ForceResync(ctx, confirm)

	case "cleanup":
		return a.Cleaner.Cleanup(ctx)
	}
	return nil, errors.NewInvalidParameterError("action", fmt.Sprintf("unknown action %q", action))
}

// resolveDate parses s, or picks today in the schedule's timezone
func resolveDate(cfg *config.Config, s string) (time.Time, error) {
	if s != "" {
		t, err := time.Parse(models.DateLayout, s)
		if err != nil {
			return time.Time{}, errors.NewInvalidParameterError("date", "expected YYYY-MM-DD")
		}
		return t, nil
	}
	loc, err := cfg.Schedule.Location()
	if err != nil {
		return time.Time{}, err
	}
	return models.DateOnly(time.Now().In(loc)), nil
}

func exitCode(err error) int {
	switch {
	case errors.IsConflict(err):
		return 3
	case errors.IsUserError(err):
		return 2
	default:
		return 1
	}
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Printf("Failed to encode output: %v", err)
	}
}
