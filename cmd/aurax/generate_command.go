package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"aurax/internal/api"
	"aurax/internal/daemonrun"
	"aurax/internal/generation"
	"aurax/internal/logging"
	"aurax/internal/queue"
	"aurax/internal/stage"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var flags requestFlags
	var wait bool
	var jsonOut bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "generate [prompt...]",
		Short: "Queue a generation run on the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.build(cmd, args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				submitted, err := client.Submit(cmd.Context(), req)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !wait {
					if jsonOut {
						return writeJSON(cmd, submitted)
					}
					fmt.Fprintf(out, "Queued run %s\n", submitted.ID)
					return nil
				}
				if !jsonOut {
					fmt.Fprintf(out, "Queued run %s; waiting for completion\n", submitted.ID)
				}

				var last string
				_, err = client.Wait(cmd.Context(), submitted.ID, interval, func(p api.Progress) {
					if jsonOut {
						return
					}
					if line := progressLine(p); line != last {
						fmt.Fprintln(out, line)
						last = line
					}
				})
				if err != nil {
					return err
				}
				detail, err := client.Get(cmd.Context(), submitted.ID)
				if err != nil {
					return err
				}
				if jsonOut {
					if err := writeJSON(cmd, detail); err != nil {
						return err
					}
				} else {
					renderRunSummary(out, detail.Run, shouldColorize(out))
				}
				return runOutcomeError(detail.Run.Status, detail.Run.ErrorMessage)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the run to finish and print its result")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	cmd.Flags().DurationVar(&interval, "poll", time.Second, "Progress polling interval with --wait")
	return cmd
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags requestFlags
	var jsonOut bool
	var verbose bool

	cmd := &cobra.Command{
		Use:   "run [prompt...]",
		Short: "Generate in-process without a daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.build(cmd, args)
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			level := "warn"
			if verbose {
				level = "info"
			}
			logger, err := logging.New(logging.Options{
				Level:       level,
				Format:      cfg.Logging.Format,
				OutputPaths: []string{"stderr"},
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			store, err := queue.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			manager, err := daemonrun.NewManager(signalCtx, cfg, store, logger)
			if err != nil {
				return err
			}
			run, result, runErr := manager.Run(signalCtx, req.Draft, req.MaxAttempts)
			if run == nil || result.Status == "" {
				return runErr
			}
			stored, err := manager.Get(context.WithoutCancel(signalCtx), run.ID)
			if err != nil {
				return errors.Join(runErr, err)
			}
			attempts, err := manager.Attempts(context.WithoutCancel(signalCtx), run.ID)
			if err != nil {
				return errors.Join(runErr, err)
			}

			out := cmd.OutOrStdout()
			detail := api.RunResponse{Run: api.FromRun(stored), Attempts: attempts}
			if jsonOut {
				if err := writeJSON(cmd, detail); err != nil {
					return err
				}
			} else {
				renderRunSummary(out, detail.Run, shouldColorize(out))
			}
			return runOutcomeError(detail.Run.Status, detail.Run.ErrorMessage)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log stage activity to stderr")
	return cmd
}

func progressLine(p api.Progress) string {
	if generation.RunStatus(p.Status).Terminal() {
		return fmt.Sprintf("%s (%.0f%%)", p.Status, p.Percent)
	}
	if p.Attempt == 0 {
		return string(p.Status)
	}
	label := stage.Label(stage.Name(p.Stage))
	if label == "" {
		label = "Starting"
	}
	line := fmt.Sprintf("attempt %d/%d: %s (%.0f%%)", p.Attempt, p.MaxAttempts, label, p.Percent)
	if p.QualityScore != nil {
		line += fmt.Sprintf(", last score %.3f", *p.QualityScore)
	}
	return line
}

// runOutcomeError turns failed and cancelled runs into a non-zero exit.
func runOutcomeError(status, message string) error {
	switch generation.RunStatus(status) {
	case generation.StatusFailed, generation.StatusCancelled:
		if strings.TrimSpace(message) == "" {
			message = status
		}
		return fmt.Errorf("run %s: %s", status, message)
	default:
		return nil
	}
}

func renderRunSummary(out io.Writer, run api.Run, colorize bool) {
	for _, line := range renderSectionHeader("Run "+run.ID, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Status", kindForStatus(run.Status), run.Status, colorize))
	fmt.Fprintln(out, renderStatusLine("Prompt", statusInfo, run.Request.Prompt, colorize))
	fmt.Fprintln(out, renderStatusLine("Style", statusInfo, run.Request.Style, colorize))
	if run.QualityScore != nil {
		kind := statusWarn
		if *run.QualityScore >= run.Threshold {
			kind = statusOK
		}
		fmt.Fprintln(out, renderStatusLine("Quality", kind, fmt.Sprintf("%.3f (threshold %.3f)", *run.QualityScore, run.Threshold), colorize))
	}
	attempts := run.AttemptsUsed
	if attempts == 0 {
		attempts = run.Attempt
	}
	fmt.Fprintln(out, renderStatusLine("Attempts", statusInfo, fmt.Sprintf("%d of %d", attempts, run.MaxAttempts), colorize))
	fmt.Fprintln(out, renderStatusLine("Cost", statusInfo, fmt.Sprintf("$%.4f", run.TotalCost), colorize))
	if run.ElapsedSeconds > 0 {
		elapsed := time.Duration(run.ElapsedSeconds * float64(time.Second)).Round(time.Millisecond)
		fmt.Fprintln(out, renderStatusLine("Elapsed", statusInfo, elapsed.String(), colorize))
	}
	if run.PayloadRef != "" {
		fmt.Fprintln(out, renderStatusLine("Payload", statusOK, run.PayloadRef, colorize))
	}
	for _, stem := range run.Stems {
		ref := stem.Payload.URL
		if ref == "" {
			ref = "(inline)"
		}
		fmt.Fprintln(out, renderStatusLine("Stem "+stem.Name, statusInfo, ref, colorize))
	}
	if run.ErrorMessage != "" {
		detail := run.ErrorMessage
		if run.ErrorKind != "" {
			detail = run.ErrorKind + ": " + detail
		}
		fmt.Fprintln(out, renderStatusLine("Error", statusError, detail, colorize))
	}
	if run.LogPath != "" {
		fmt.Fprintln(out, renderStatusLine("Log", statusInfo, run.LogPath, colorize))
	}
}
