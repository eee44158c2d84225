// Command regctl is a thin CLI over the registration engine: run a full
// registration attempt, or exercise the calibrator/token-check in
// isolation (spec.md §6, SPEC_FULL.md §6 EXPANSION "CLI").
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"autoreg/internal/adapters/sis"
	"autoreg/internal/core/calibrate"
	"autoreg/internal/modkit"
	"autoreg/internal/modkit/module"
	"autoreg/internal/platform/config"
	perr "autoreg/internal/platform/errors"
	"autoreg/internal/platform/logger"
	"autoreg/internal/services/registration/domain"
	regmod "autoreg/internal/services/registration/module"
)

// Exit codes exactly as spec.md §6.
const (
	exitOK         = 0
	exitConfig     = 2
	exitCredential = 3
	exitCancelled  = 4
	exitExhausted  = 5
)

func main() {
	os.Exit(dispatch(os.Args[1:]))
}

func dispatch(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: regctl <run|calibrate|test-token> [flags]")
		return exitConfig
	}

	l := logger.Get()
	root := config.New()

	switch args[0] {
	case "run":
		return cmdRun(l, root, args[1:])
	case "calibrate":
		return cmdCalibrate(l, args[1:])
	case "test-token":
		return cmdTestToken(l, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "regctl: unknown command %q\n", args[0])
		return exitConfig
	}
}

func cmdRun(l *logger.Logger, root config.Conf, args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	token := fs.String("token", "", "SIS bearer token")
	ecrn := fs.String("ecrn", "", "comma-separated CRNs to add")
	scrn := fs.String("scrn", "", "comma-separated CRNs to drop")
	target := fs.String("target", "", "target time of day HH:MM:SS in --tz")
	tz := fs.String("tz", "UTC", "IANA timezone for --target")
	maxAttempts := fs.Int("max-attempts", 120, "attempt budget")
	retryInterval := fs.Float64("retry-interval", 3.0, "steady-state retry interval seconds (>=3.0)")
	buffer := fs.Float64("buffer", 0, "safety buffer seconds added to the firing instant")
	sisBaseURL := fs.String("sis-base-url", "", "SIS base URL")
	dryRun := fs.Bool("dry-run", false, "skip the token check and the live attempt loop")
	if err := fs.Parse(args); err != nil {
		return exitConfig
	}

	hh, mm, ss, err := parseClock(*target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "regctl: invalid -target: %v\n", err)
		return exitConfig
	}

	deps := modkit.Deps{Cfg: root, Log: *l}
	m := regmod.New(deps, regmod.Options{SISBaseURL: *sisBaseURL})
	module.Register(m.Name(), m.Ports())
	ports := module.MustPortsOf[regmod.Ports](m)

	ctx := context.Background()
	events, unsubscribe, err := ports.Registration.Subscribe(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "regctl: subscribe failed: %v\n", err)
		return exitConfig
	}
	defer unsubscribe()

	runID, err := ports.Registration.Start(ctx, domain.Config{
		Token:                *token,
		ECRN:                 splitCSV(*ecrn),
		SCRN:                 splitCSV(*scrn),
		TargetHour:           hh,
		TargetMinute:         mm,
		TargetSecond:         ss,
		TargetZone:           *tz,
		MaxAttempts:          *maxAttempts,
		RetryIntervalSeconds: *retryInterval,
		SafetyBufferSeconds:  *buffer,
		DryRun:               *dryRun,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "regctl: start failed: %v\n", err)
		return exitCodeForStartErr(err)
	}
	l.Info().Str("run_id", runID).Msg("registration run started")

	for evt := range events {
		logEvent(l, evt)
		if evt.Kind == "done" {
			break
		}
	}

	state, err := ports.Registration.Snapshot(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "regctl: snapshot failed: %v\n", err)
		return exitConfig
	}
	return exitCodeForDoneReason(state.DoneReason)
}

func logEvent(l *logger.Logger, evt domain.Event) {
	switch evt.Kind {
	case "log":
		l.Info().Str("level", evt.Level).Msg(evt.Message)
	case "state":
		l.Info().Str("phase", evt.Phase).Msg("phase transition")
	case "countdown":
		l.Info().Float64("seconds", evt.CountdownSeconds).Msg("countdown")
	case "crn_update":
		for crn, r := range evt.PerCRN {
			l.Info().Str("crn", crn).Str("status", r.Status).Msg("crn update")
		}
	case "calibration":
		if evt.Calibration != nil {
			l.Info().
				Float64("rtt_full_ms", evt.Calibration.RTTFullMs).
				Float64("server_offset_ms", evt.Calibration.ServerOffsetMs).
				Str("source", evt.Calibration.Source).
				Msg("calibration")
		}
	case "done":
		l.Info().Msg("run done")
	}
}

func cmdCalibrate(l *logger.Logger, args []string) int {
	fs := flag.NewFlagSet("calibrate", flag.ContinueOnError)
	token := fs.String("token", "", "SIS bearer token")
	sisBaseURL := fs.String("sis-base-url", "", "SIS base URL")
	budgetSeconds := fs.Float64("budget", 30, "calibration budget seconds")
	if err := fs.Parse(args); err != nil {
		return exitConfig
	}
	if *sisBaseURL == "" {
		fmt.Fprintln(os.Stderr, "regctl: -sis-base-url is required")
		return exitConfig
	}

	c := &calibrate.Calibrator{
		Endpoint: sis.ProbeEndpoint(*sisBaseURL),
		Budget:   time.Duration(*budgetSeconds * float64(time.Second)),
	}
	result, err := c.Calibrate(context.Background(), *token, calibrate.SourceManual)
	if err != nil {
		fmt.Fprintf(os.Stderr, "regctl: calibration failed: %v\n", err)
		return exitCodeForCalibrateErr(err)
	}

	l.Info().
		Float64("server_offset_ms", result.ServerOffsetMs).
		Float64("rtt_one_way_ms", result.RTTOneWayMs).
		Float64("rtt_full_ms", result.RTTFullMs).
		Float64("accuracy_ms", result.AccuracyMs).
		Msg("calibration result")
	return exitOK
}

func cmdTestToken(l *logger.Logger, args []string) int {
	fs := flag.NewFlagSet("test-token", flag.ContinueOnError)
	token := fs.String("token", "", "SIS bearer token")
	sisBaseURL := fs.String("sis-base-url", "", "SIS base URL")
	if err := fs.Parse(args); err != nil {
		return exitConfig
	}
	if *sisBaseURL == "" {
		fmt.Fprintln(os.Stderr, "regctl: -sis-base-url is required")
		return exitConfig
	}

	client := sis.NewClient(nil)
	if err := client.CheckToken(context.Background(), *sisBaseURL, *token); err != nil {
		if perr.IsCode(err, perr.ErrorCodeTokenInvalid) {
			fmt.Fprintln(os.Stderr, "regctl: token rejected by SIS")
			return exitCredential
		}
		fmt.Fprintf(os.Stderr, "regctl: token check failed: %v\n", err)
		return exitConfig
	}
	l.Info().Msg("token accepted")
	return exitOK
}

// parseClock parses "HH:MM:SS" into its three integer components.
func parseClock(v string) (hh, mm, ss int, err error) {
	t, err := time.Parse("15:04:05", v)
	if err != nil {
		return 0, 0, 0, err
	}
	return t.Hour(), t.Minute(), t.Second(), nil
}

func splitCSV(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func exitCodeForStartErr(err error) int {
	if perr.IsCode(err, perr.ErrorCodeAlreadyRunning) {
		return exitConfig
	}
	return exitConfig
}

func exitCodeForDoneReason(reason domain.DoneReason) int {
	switch reason {
	case domain.DoneReasonSuccess:
		return exitOK
	case domain.DoneReasonTokenInvalid:
		return exitCredential
	case domain.DoneReasonCancelled:
		return exitCancelled
	case domain.DoneReasonBudgetExhausted:
		return exitExhausted
	default:
		return exitConfig
	}
}

// exitCodeForCalibrateErr maps a calibration failure onto spec.md §6's exit
// codes: a rejected credential is 3, an explicit cancellation is 4,
// everything else (never observed a usable second boundary within budget)
// is treated as attempt-budget exhaustion, 5.
func exitCodeForCalibrateErr(err error) int {
	switch perr.CodeOf(err) {
	case perr.ErrorCodeTokenInvalid:
		return exitCredential
	case perr.ErrorCodeCancelled:
		return exitCancelled
	default:
		return exitExhausted
	}
}
