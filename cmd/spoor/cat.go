package main

import (
	"time"

	"github.com/spf13/cobra"

	"spoor/internal/logger"
	"spoor/internal/merge"
	"spoor/internal/model"
	"spoor/internal/output"
)

func newCatCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cat <file>...",
		Short: "Merge traces and function maps and write the result to stdout",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := a.format()
			if err != nil {
				return err
			}
			in, err := a.load(commandContext(cmd), args)
			if err != nil {
				return err
			}
			merged, err := merge.Merge(in.Traces, in.BinaryTraces, in.FunctionMaps, time.Now())
			if err != nil {
				return err
			}
			if n := unmappedFunctions(merged); n > 0 {
				logger.Warn().Int("functions", n).Msg("called functions have no function map entry")
			}
			logger.Debug().
				Int("events", len(merged.Events)).
				Int("functions", len(merged.Functions)).
				Str("format", string(format)).
				Msg("writing merged trace")
			return output.Write(cmd.OutOrStdout(), format, merged)
		},
	}
	cmd.Flags().String("format", string(output.FormatProto), "output format: "+output.FormatNames())
	_ = a.v.BindPFlag(keyFormat, cmd.Flags().Lookup("format"))
	return cmd
}

// unmappedFunctions counts the distinct called function ids that have no
// function map entry.
func unmappedFunctions(t *model.Trace) int {
	seen := make(map[string]struct{})
	for _, e := range t.Events {
		if _, ok := t.Lookup(e.FunctionID); ok {
			continue
		}
		seen[e.FunctionID] = struct{}{}
	}
	return len(seen)
}
