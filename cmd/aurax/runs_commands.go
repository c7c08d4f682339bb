package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"aurax/internal/api"
	"aurax/internal/generation"
	"aurax/internal/stage"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show a run with its attempt trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				detail, err := client.Get(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, detail)
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				renderRunSummary(out, detail.Run, colorize)
				if !generation.RunStatus(detail.Run.Status).Terminal() {
					if snap, err := client.Progress(cmd.Context(), detail.Run.ID); err == nil {
						fmt.Fprintln(out, renderStatusLine("Progress", statusInfo, progressLine(snap), colorize))
					}
				}
				if len(detail.Attempts) > 0 {
					fmt.Fprintln(out)
					fmt.Fprint(out, renderAttemptsTable(detail.Attempts, colorize))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := make([]generation.RunStatus, 0, len(statuses))
			for _, value := range statuses {
				if trimmed := strings.TrimSpace(value); trimmed != "" {
					filter = append(filter, generation.RunStatus(strings.ToLower(trimmed)))
				}
			}
			return ctx.withClient(func(client *api.Client) error {
				runs, err := client.List(cmd.Context(), filter...)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, api.RunListResponse{Runs: runs})
				}
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs")
					return nil
				}
				fmt.Fprint(out, renderRunsTable(runs, shouldColorize(out)))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (repeatable or comma-separated)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Cancel a pending or generating run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				run, err := client.Cancel(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch generation.RunStatus(run.Status) {
				case generation.StatusCancelled:
					fmt.Fprintf(out, "Run %s cancelled\n", run.ID)
				case generation.StatusGenerating:
					fmt.Fprintf(out, "Cancellation requested for run %s; it stops at the next stage boundary\n", run.ID)
				default:
					fmt.Fprintf(out, "Run %s already finished (%s)\n", run.ID, run.Status)
				}
				return nil
			})
		},
	}
}

func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show daemon, queue, and stage health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, status)
				}
				renderDaemonStatus(cmd.OutOrStdout(), status, shouldColorize(cmd.OutOrStdout()))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func renderRunsTable(runs []api.Run, colorize bool) string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		score := "-"
		if run.QualityScore != nil {
			score = strconv.FormatFloat(*run.QualityScore, 'f', 3, 64)
		}
		rows = append(rows, []string{
			run.ID,
			run.Status,
			fmt.Sprintf("%d/%d", run.Attempt, run.MaxAttempts),
			score,
			fmt.Sprintf("$%.4f", run.TotalCost),
			truncate(run.Request.Prompt, 40),
			displayTime(run.CreatedAt),
		})
	}
	return renderTable(
		[]string{"ID", "Status", "Attempt", "Score", "Cost", "Prompt", "Created"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft},
		colorize,
	)
}

func renderAttemptsTable(attempts []generation.AttemptRecord, colorize bool) string {
	rows := make([][]string, 0, len(attempts))
	for _, attempt := range attempts {
		score := "-"
		if attempt.Assessment != nil {
			score = strconv.FormatFloat(attempt.Assessment.Score, 'f', 3, 64)
		}
		failed := ""
		for _, res := range attempt.Stages {
			if res.Status == generation.StageFailed {
				failed = stage.Label(stage.Name(res.Stage))
				break
			}
		}
		rows = append(rows, []string{
			strconv.Itoa(attempt.Attempt),
			attempt.Style,
			score,
			fmt.Sprintf("$%.4f", attempt.Cost()),
			string(attempt.Outcome),
			failed,
			truncate(attempt.Prompt, 40),
		})
	}
	return renderTable(
		[]string{"#", "Style", "Score", "Cost", "Outcome", "Failed stage", "Prompt"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignLeft, alignLeft, alignLeft},
		colorize,
	)
}

func renderDaemonStatus(out io.Writer, status api.DaemonStatus, colorize bool) {
	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	running := statusWarn
	if status.Running {
		running = statusOK
	}
	fmt.Fprintln(out, renderStatusLine("Running", running, fmt.Sprintf("%s (pid %d)", yesNo(status.Running), status.PID), colorize))
	fmt.Fprintln(out, renderStatusLine("Workers", statusInfo, strconv.Itoa(status.Workflow.Workers), colorize))
	if len(status.Workflow.ActiveRuns) > 0 {
		fmt.Fprintln(out, renderStatusLine("Active runs", statusInfo, strings.Join(status.Workflow.ActiveRuns, ", "), colorize))
	}
	if status.Workflow.LastError != "" {
		fmt.Fprintln(out, renderStatusLine("Last error", statusError, status.Workflow.LastError, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Run store", statusInfo, status.QueueDBPath, colorize))

	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Queue", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, s := range []generation.RunStatus{
		generation.StatusPending,
		generation.StatusGenerating,
		generation.StatusCompleted,
		generation.StatusBestEffort,
		generation.StatusFailed,
		generation.StatusCancelled,
	} {
		count := status.Workflow.QueueStats[string(s)]
		fmt.Fprintln(out, renderStatusLine(string(s), kindForStatus(string(s)), strconv.Itoa(count), colorize))
	}

	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Stages", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, h := range status.Workflow.StageHealth {
		kind := statusOK
		if !h.Ready {
			kind = statusError
		}
		fmt.Fprintln(out, renderStatusLine(stage.Label(stage.Name(h.Name)), kind, h.Detail, colorize))
	}

	if len(status.Preflight) > 0 {
		fmt.Fprintln(out)
		for _, line := range renderSectionHeader("Preflight", colorize) {
			fmt.Fprintln(out, line)
		}
		for _, res := range status.Preflight {
			kind := statusOK
			if !res.Passed {
				kind = statusWarn
			}
			fmt.Fprintln(out, renderStatusLine(res.Name, kind, res.Detail, colorize))
		}
	}
}

func truncate(value string, limit int) string {
	runes := []rune(strings.TrimSpace(value))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit-1]) + "…"
}

func displayTime(value string) string {
	t := api.ParseTime(value)
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
