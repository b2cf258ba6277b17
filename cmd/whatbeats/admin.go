package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// =============================================================================
// OPERATOR COMMANDS
// =============================================================================

var resetAll bool

var statsCmd = &cobra.Command{
	Use:   "stats <word>",
	Short: "Show how many times a word has been accepted",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

var historyCmd = &cobra.Command{
	Use:   "history <session-id>",
	Short: "Show a session's word chain",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

var resetCmd = &cobra.Command{
	Use:   "reset [session-id]",
	Short: "Reset one session, or everything with --all",
	Long: `Resets a session to its seed word. With --all, deletes every session,
the global tally and all rate-limit counters.

Examples:
  whatbeats reset 3f2a...     # back to the seed word
  whatbeats reset --all       # wipe all game state`,
	Args: func(cmd *cobra.Command, args []string) error {
		if resetAll && len(args) > 0 {
			return fmt.Errorf("--all takes no session id")
		}
		if !resetAll && len(args) != 1 {
			return fmt.Errorf("requires a session id or --all")
		}
		return nil
	},
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVar(&resetAll, "all", false, "Delete every session and tally entry")
}

func runStats(cmd *cobra.Command, args []string) error {
	engine, closeFn, err := openAdminEngine()
	if err != nil {
		return err
	}
	defer closeFn()

	word, n, err := engine.Stats(context.Background(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: accepted %d times\n", word, n)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	engine, closeFn, err := openAdminEngine()
	if err != nil {
		return err
	}
	defer closeFn()

	s, err := engine.History(context.Background(), args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session:  %s\n", s.ID)
	fmt.Fprintf(out, "Current:  %s\n", s.CurrentWord)
	fmt.Fprintf(out, "Score:    %d\n", s.Score)
	fmt.Fprintf(out, "Over:     %v\n", s.GameOver)
	fmt.Fprintf(out, "History:  %s\n", strings.Join(s.History, " -> "))
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	engine, closeFn, err := openAdminEngine()
	if err != nil {
		return err
	}
	defer closeFn()

	ctx := context.Background()
	if resetAll {
		if err := engine.ResetAll(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "All sessions and tallies deleted.")
		return nil
	}

	s, err := engine.Reset(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Session %s reset to %q.\n", s.ID, s.CurrentWord)
	return nil
}
