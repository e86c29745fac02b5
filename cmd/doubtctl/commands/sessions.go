package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/ashureev/doubt-solver/internal/domain"
	"github.com/ashureev/doubt-solver/internal/history"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored chat sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		h, closeFn, err := openHistory()
		if err != nil {
			return err
		}
		defer closeFn()
		return listSessions(cmd.Context(), cmd.OutOrStdout(), h)
	},
}

var showCmd = &cobra.Command{
	Use:   "show <sessionId>",
	Short: "Print the transcript of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, closeFn, err := openHistory()
		if err != nil {
			return err
		}
		defer closeFn()
		return showSession(cmd.Context(), cmd.OutOrStdout(), h, domain.SessionID(args[0]))
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear <sessionId>",
	Short: "Delete the stored history of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, closeFn, err := openHistory()
		if err != nil {
			return err
		}
		defer closeFn()

		id := domain.SessionID(args[0])
		if err := h.Clear(cmd.Context(), id); err != nil {
			return fmt.Errorf("clear %q: %w", id, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", id)
		return nil
	},
}

func listSessions(ctx context.Context, out io.Writer, h *history.Store) error {
	sessions, err := h.Sessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions stored.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tMESSAGES\tLAST ACTIVITY\t")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%d\t%s\t\n", s.SessionID, s.MessageCount, s.LastActivity)
	}
	return w.Flush()
}

func showSession(ctx context.Context, out io.Writer, h *history.Store, id domain.SessionID) error {
	transcript := h.Load(ctx, id)
	if len(transcript) == 0 {
		return fmt.Errorf("no history stored for %q", id)
	}
	for _, msg := range transcript {
		fmt.Fprintf(out, "[%s] %s: %s\n\n", msg.Timestamp, msg.Role.Speaker(), msg.Content)
	}
	return nil
}
