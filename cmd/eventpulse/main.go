package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"eventpulse/internal/app"
)

func main() {
	var (
		cfgPath     string
		snapshot    bool
		transitions bool
		eventID     string
		limit       int
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (yaml or json)")
	flag.BoolVar(&snapshot, "snapshot", false, "print a one-shot batch snapshot as JSON and exit")
	flag.BoolVar(&transitions, "transitions", false, "print recorded status transitions as JSON and exit")
	flag.StringVar(&eventID, "event", "", "filter -transitions by event id")
	flag.IntVar(&limit, "limit", 50, "max transitions to print (0 = all)")
	flag.Parse()

	a, err := app.NewApp(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	if snapshot || transitions {
		code := 0
		if err := printReport(a, snapshot, eventID, limit); err != nil {
			fmt.Fprintln(os.Stderr, "fatal:", err)
			code = 1
		}
		_ = a.Close()
		os.Exit(code)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		_ = a.Close()
		os.Exit(1)
	}
	// Not running under systemd is fine; SdNotify reports (false, nil).
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	reason := app.StopUnknown
	select {
	case sig := <-sigCh:
		reason = app.StopSIGTERM
		if sig == os.Interrupt {
			reason = app.StopSIGINT
		}
	case <-a.Done():
		reason = app.StopFatalError
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)

	if err := a.Err(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func printReport(a *app.App, snapshot bool, eventID string, limit int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var v any
	if snapshot {
		res, err := a.Snapshot(ctx)
		if err != nil {
			return err
		}
		v = res
	} else {
		ts, err := a.Transitions(ctx, eventID, limit)
		if err != nil {
			return err
		}
		v = ts
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
