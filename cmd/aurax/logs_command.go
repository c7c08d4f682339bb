package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"aurax/internal/api"
	"aurax/internal/generation"
)

const followWait = 2 * time.Second

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int

	cmd := &cobra.Command{
		Use:   "logs <run-id>",
		Short: "Display a run's log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *api.Client) error {
				out := cmd.OutOrStdout()
				query := api.LogQuery{Offset: -1, Limit: lines}
				if lines <= 0 {
					query = api.LogQuery{Offset: 0}
				}
				printed := false
				for {
					tail, err := client.Log(cmd.Context(), id, query)
					if err != nil {
						if cmd.Context().Err() != nil {
							return nil
						}
						return err
					}
					for _, line := range tail.Lines {
						fmt.Fprintln(out, line)
						printed = true
					}
					query = api.LogQuery{Offset: tail.Offset}
					if !follow {
						break
					}
					if len(tail.Lines) == 0 {
						done, err := runFinished(cmd, client, id)
						if err != nil {
							return err
						}
						if done {
							break
						}
					}
					query.Wait = followWait
				}
				if !printed {
					fmt.Fprintln(out, "No log entries available")
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output until the run finishes")
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of lines to show (0 for all)")
	return cmd
}

func runFinished(cmd *cobra.Command, client *api.Client, id string) (bool, error) {
	if cmd.Context().Err() != nil {
		return true, nil
	}
	snap, err := client.Progress(cmd.Context(), id)
	if err != nil {
		return false, err
	}
	return generation.RunStatus(snap.Status).Terminal(), nil
}
