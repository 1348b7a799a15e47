package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"transcription-studio/internal/output"
)

func NewArchiveCmd(deps *Dependencies) *cobra.Command {
	var (
		before    string
		olderThan time.Duration
	)

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Move old job records into the archive table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var cutoff time.Time
			switch {
			case before != "":
				parsed, err := time.Parse(time.RFC3339, before)
				if err != nil {
					return fmt.Errorf("--before must be an RFC3339 timestamp: %w", err)
				}
				cutoff = parsed
			case olderThan > 0:
				cutoff = time.Now().Add(-olderThan)
			default:
				return errors.New("one of --before or --older-than is required")
			}

			moved, err := deps.Services.Archive(cmd.Context(), cutoff)
			if err != nil {
				return err
			}
			output.NewFormatter(cmd.OutOrStdout()).Success(fmt.Sprintf("Archived %d record(s)", moved))
			return nil
		},
	}

	cmd.Flags().StringVar(&before, "before", "", "archive records created before this RFC3339 time")
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "archive records older than this duration (e.g. 720h)")
	return cmd
}
