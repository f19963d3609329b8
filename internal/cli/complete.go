package cli

import (
	"github.com/spf13/cobra"
)

// NewCompleteCmd создаёт команду, отправляющую сигнал завершения
// вместо робота (ручная проверка и отладка).
func NewCompleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var failed bool
	var info string

	cmd := &cobra.Command{
		Use:   "complete TOKEN",
		Short: "Report a completion signal for a task token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			resolved, err := client.ReportCompletion(args[0], !failed, info)
			if err != nil {
				return err
			}

			if resolved {
				out.Success("Completion delivered")
			} else {
				out.Success("Token unknown or already consumed, signal ignored")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&failed, "failed", false, "Report failure instead of success")
	cmd.Flags().StringVar(&info, "info", "", "Free-form info attached to the signal")

	return cmd
}
