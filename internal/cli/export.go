package cli

import (
	"github.com/spf13/cobra"

	"transcription-studio/internal/captions"
	"transcription-studio/internal/output"
)

func NewExportCmd(deps *Dependencies) *cobra.Command {
	var (
		format      string
		destination string
	)

	cmd := &cobra.Command{
		Use:   "export <job-id>",
		Short: "Export a completed job as captions or a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := captions.ParseFormat(format)
			if err != nil {
				return err
			}

			if destination == "-" {
				_, err := deps.Services.Export(cmd.Context(), cmd.OutOrStdout(), args[0], parsed)
				return err
			}

			path, err := deps.Services.ExportToFile(cmd.Context(), args[0], parsed, destination)
			if err != nil {
				return err
			}
			output.NewFormatter(cmd.OutOrStdout()).Success("Exported: " + path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "vtt", "vtt, srt, text, json or pdf")
	cmd.Flags().StringVarP(&destination, "output", "o", "", "destination file, or - for stdout (defaults to the exports folder)")
	return cmd
}
