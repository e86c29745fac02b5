package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/doubt-solver/internal/domain"
	"github.com/ashureev/doubt-solver/internal/export"
	"github.com/ashureev/doubt-solver/internal/history"
	"github.com/spf13/cobra"
)

var (
	exportStatementFile string
	exportOutDir        string
)

var exportCmd = &cobra.Command{
	Use:   "export <sessionId>",
	Short: "Write a session transcript to a text file",
	Long: `Write a session transcript in the same format as the in-page export.

The problem statement is not stored with the history; pass it with --statement
or the export will show a placeholder.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, closeFn, err := openHistory()
		if err != nil {
			return err
		}
		defer closeFn()

		statement := ""
		if exportStatementFile != "" {
			data, err := os.ReadFile(exportStatementFile)
			if err != nil {
				return fmt.Errorf("read statement: %w", err)
			}
			statement = strings.TrimSpace(string(data))
		}

		path, err := exportSession(cmd.Context(), h, domain.SessionID(args[0]), statement, exportOutDir, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", path)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportStatementFile, "statement", "", "File holding the problem statement")
	exportCmd.Flags().StringVarP(&exportOutDir, "out", "o", ".", "Output directory")
}

func exportSession(ctx context.Context, h *history.Store, id domain.SessionID, statement, outDir string, now time.Time) (string, error) {
	transcript := h.Load(ctx, id)
	if len(transcript) == 0 {
		return "", fmt.Errorf("no history stored for %q", id)
	}

	doc := export.New(id, domain.Problem{Statement: statement}.StatementOrPlaceholder(), transcript, now, time.Local)
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(outDir, localFilename(doc.Filename))
	if err := os.WriteFile(path, []byte(doc.Body), 0o600); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}

// localFilename makes an export filename safe to create in a single directory.
// Problem titles may contain path separators.
func localFilename(name string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || strings.ContainsRune(`/\:*?"<>|`, r) {
			return '_'
		}
		return r
	}, name)
}
