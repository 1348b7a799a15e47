package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"transcription-studio/internal/bootstrap"
	"transcription-studio/internal/config"
	"transcription-studio/internal/domain"
	"transcription-studio/internal/orchestrator"
	"transcription-studio/internal/output"
)

func NewRunCmd(deps *Dependencies) *cobra.Command {
	var models string

	cmd := &cobra.Command{
		Use:   "run <audio>",
		Short: "Transcribe one audio file with every selected model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := output.NewFormatter(cmd.OutOrStdout())

			audio, err := bootstrap.LoadAudio(args[0])
			if err != nil {
				return err
			}

			f.Info(fmt.Sprintf("Transcribing %s...", audio.Name))
			result, err := deps.Services.Generate(cmd.Context(), audio, config.ParseModels(models))
			if err != nil && !errors.Is(err, orchestrator.ErrAllFailed) {
				return err
			}

			f.Session(result.Session)
			if err != nil {
				return err
			}
			if !result.Session.AllTerminal() || hasFailures(result.Session) {
				f.Warning("Some models failed. Retry them with: studioctl retry <model> " + args[0])
				return nil
			}
			f.Success("All models completed")
			return nil
		},
	}

	cmd.Flags().StringVarP(&models, "models", "m", "", "comma-separated models (defaults to the configured selection)")
	return cmd
}

func NewRetryCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <model> <audio>",
		Short: "Re-run one model of the current session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := output.NewFormatter(cmd.OutOrStdout())

			if _, _, err := deps.Services.RecoverSession(cmd.Context()); err != nil && !errors.Is(err, orchestrator.ErrNoSession) {
				return err
			}
			audio, err := bootstrap.LoadAudio(args[1])
			if err != nil {
				return err
			}

			job, err := deps.Services.Retry(cmd.Context(), audio, domain.Model(args[0]))
			f.Job(job)
			if err != nil {
				return err
			}
			if job.Status != domain.JobStatusCompleted {
				return fmt.Errorf("%s failed again: %s", job.Model, job.Error)
			}
			f.Success(fmt.Sprintf("%s completed on attempt %d", job.Model, job.Attempt))
			return nil
		},
	}
}

func hasFailures(session domain.Session) bool {
	for _, job := range session.JobsByModel {
		if job.Status == domain.JobStatusFailed {
			return true
		}
	}
	return false
}
