package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"transcription-studio/internal/orchestrator"
	"transcription-studio/internal/output"
)

func NewResolveCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <session-id|timestamp>",
		Short: "List the job records of a session",
		Long:  "Looks up job records by session id, or by creation time when the key is an RFC3339 timestamp.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := output.NewFormatter(cmd.OutOrStdout())

			res, err := deps.Services.ResolveSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(res.Jobs) == 0 {
				f.Info(fmt.Sprintf("No jobs found for %s", res.Key))
				return nil
			}

			f.Info(fmt.Sprintf("%d job(s) via %s", len(res.Jobs), res.Strategy))
			if res.Degraded {
				f.Warning("No exact match; showing the most recent jobs instead")
			}
			f.Jobs(res.Jobs)
			return nil
		},
	}
}

func NewRecoverCmd(deps *Dependencies) *cobra.Command {
	var discard bool

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Inspect, restore or discard an interrupted session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := output.NewFormatter(cmd.OutOrStdout())

			if discard {
				if err := deps.Services.DiscardRecovery(cmd.Context()); err != nil {
					return err
				}
				f.Success("Pending session discarded")
				return nil
			}

			restored, incomplete, err := deps.Services.RecoverSession(cmd.Context())
			if errors.Is(err, orchestrator.ErrNoSession) {
				f.Info("No pending session")
				return nil
			}
			if err != nil {
				return err
			}

			f.Session(restored)
			if len(incomplete) > 0 {
				f.Warning(fmt.Sprintf("%d model(s) did not finish: %v. Retry them with: studioctl retry <model> <audio>", len(incomplete), incomplete))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&discard, "discard", false, "drop the pending session instead of restoring it")
	return cmd
}
