package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"transcription-studio/internal/output"
)

func NewModelsCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List transcription backends and local whisper models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := output.NewFormatter(cmd.OutOrStdout())

			f.Info("Backends:")
			for _, model := range deps.Services.Backends.Models() {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", model)
			}
			f.Info("Local whisper models:")
			for _, option := range deps.Services.WhisperModels() {
				f.WhisperModel(option)
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "download <id>",
		Short: "Download a whisper model and select it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := deps.Services.DownloadWhisperModel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			output.NewFormatter(cmd.OutOrStdout()).Success("Model ready: " + settings.WhisperModelPath)
			return nil
		},
	})
	return cmd
}
