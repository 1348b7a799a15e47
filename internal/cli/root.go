package cli

import (
	"github.com/spf13/cobra"

	"transcription-studio/internal/bootstrap"
	"transcription-studio/internal/version"
)

type Dependencies struct {
	Services *bootstrap.Services
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "studioctl",
		Short:         "Transcribe audio with several models and compare the captions",
		Long:          "A CLI over the transcription studio: runs multi-model generations, walks file queues, recovers interrupted sessions, and exports captions.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Full() + "\n")

	rootCmd.AddCommand(NewRunCmd(deps))
	rootCmd.AddCommand(NewRetryCmd(deps))
	rootCmd.AddCommand(NewQueueCmd(deps))
	rootCmd.AddCommand(NewResolveCmd(deps))
	rootCmd.AddCommand(NewRecoverCmd(deps))
	rootCmd.AddCommand(NewExportCmd(deps))
	rootCmd.AddCommand(NewDoctorCmd(deps))
	rootCmd.AddCommand(NewArchiveCmd(deps))
	rootCmd.AddCommand(NewModelsCmd(deps))

	return rootCmd
}
