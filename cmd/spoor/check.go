package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"spoor/internal/logger"
	"spoor/internal/tracefmt"
)

var errCheckFailed = errors.New("check failed")

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check <file.spoor_trace>...",
		Short: "Lint binary traces for version, ordering and nesting problems",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireBinaryTraces(args); err != nil {
				return err
			}
			in, err := a.load(commandContext(cmd), args)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			problems := 0
			for i, bt := range in.BinaryTraces {
				d := tracefmt.Lint(bt)
				problems += d.Problems()
				if d.Len() == 0 {
					fmt.Fprintf(w, "%s: ok\n", args[i])
					continue
				}
				for _, item := range d.Items() {
					fmt.Fprintf(w, "%s: %s\n", args[i], item)
				}
			}
			logger.Info().Int("files", len(args)).Int("problems", problems).Msg("check finished")
			if problems > 0 {
				return fmt.Errorf("%w: %d problems", errCheckFailed, problems)
			}
			return nil
		},
	}
}
