package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"spoor/internal/loader"
	"spoor/internal/tracefmt"
)

type traceInfo struct {
	File                   string          `json:"file"`
	Header                 tracefmt.Header `json:"header"`
	Events                 int             `json:"events"`
	FooterBytes            int             `json:"footerBytes"`
	ClockOffsetNanoseconds int64           `json:"clockOffsetNanoseconds"`
}

func newInfoCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "info <file.spoor_trace>...",
		Short: "Print the header of each binary trace",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireBinaryTraces(args); err != nil {
				return err
			}
			in, err := a.load(commandContext(cmd), args)
			if err != nil {
				return err
			}

			infos := make([]traceInfo, len(args))
			for i, bt := range in.BinaryTraces {
				h := bt.Header
				infos[i] = traceInfo{
					File:                   args[i],
					Header:                 h,
					Events:                 len(bt.Events),
					FooterBytes:            len(bt.Footer.Reserved),
					ClockOffsetNanoseconds: int64(h.SystemClockTimestampNanoseconds) - int64(h.SteadyClockTimestampNanoseconds),
				}
			}

			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}
			for _, info := range infos {
				printInfo(w, info)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}

func printInfo(w io.Writer, info traceInfo) {
	h := info.Header
	system := time.Unix(0, int64(h.SystemClockTimestampNanoseconds)).UTC()
	fmt.Fprintf(w, "%s:\n", info.File)
	fmt.Fprintf(w, "  version:        %d\n", h.Version)
	fmt.Fprintf(w, "  session_id:     %d\n", h.SessionID)
	fmt.Fprintf(w, "  process_id:     %d\n", h.ProcessID)
	fmt.Fprintf(w, "  thread_id:      %d\n", h.ThreadID)
	fmt.Fprintf(w, "  system_clock:   %d (%s)\n", h.SystemClockTimestampNanoseconds, system.Format(time.RFC3339Nano))
	fmt.Fprintf(w, "  steady_clock:   %d\n", h.SteadyClockTimestampNanoseconds)
	fmt.Fprintf(w, "  event_count:    %d\n", h.EventCount)
	fmt.Fprintf(w, "  footer_bytes:   %d\n", info.FooterBytes)
	fmt.Fprintf(w, "  clock_offset:   %d ns\n", info.ClockOffsetNanoseconds)
}

func requireBinaryTraces(paths []string) error {
	for _, p := range paths {
		k, err := loader.Classify(p)
		if err != nil {
			return err
		}
		if k != loader.KindBinaryTrace {
			return fmt.Errorf("%s: expected a .%s file, got a %s", p, loader.ExtBinaryTrace, k)
		}
	}
	return nil
}
