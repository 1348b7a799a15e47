package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"transcription-studio/internal/bootstrap"
	"transcription-studio/internal/orchestrator"
	"transcription-studio/internal/output"
)

func NewQueueCmd(deps *Dependencies) *cobra.Command {
	var skip int

	cmd := &cobra.Command{
		Use:   "queue <audio>...",
		Short: "Transcribe several audio files one after another",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := output.NewFormatter(cmd.OutOrStdout())

			assets, err := bootstrap.LoadAudioFiles(args)
			if err != nil {
				return err
			}

			controller := deps.Services.Queue
			controller.Enqueue(assets)
			for i := 0; i < skip; i++ {
				controller.Skip()
			}

			failed := 0
			for {
				state := controller.State()
				if state.Remaining == 0 {
					break
				}
				f.Info(fmt.Sprintf("Processing %s (%d remaining)", state.Current, state.Remaining))

				started, err := controller.ProcessNext(cmd.Context())
				if errors.Is(err, orchestrator.ErrAllFailed) {
					failed++
				} else if err != nil {
					return err
				}
				if !started {
					break
				}
				if current, ok := deps.Services.Orchestrator.Current(); ok {
					f.Session(current)
				}
			}

			state := controller.State()
			f.Queue(state.Items, state.Cursor, state.Remaining)
			if failed > 0 {
				f.Warning(fmt.Sprintf("%d file(s) failed on every model", failed))
				return nil
			}
			f.Success("Queue finished")
			return nil
		},
	}

	cmd.Flags().IntVar(&skip, "skip", 0, "number of leading files to skip")
	return cmd
}
