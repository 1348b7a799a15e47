package cli

import (
	"github.com/spf13/cobra"

	"transcription-studio/internal/output"
)

func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	var fix string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := output.NewFormatter(cmd.OutOrStdout())

			if fix == "" {
				f.Report(deps.Services.RefreshDiagnostics())
				return nil
			}

			report, err := deps.Services.Fix(cmd.Context(), fix)
			f.Report(report)
			if err != nil {
				return err
			}
			f.Success("Fixed " + fix)
			return nil
		},
	}

	cmd.Flags().StringVar(&fix, "fix", "", "apply the remediation for one check id")
	return cmd
}
