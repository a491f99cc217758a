package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sanchez-kim/obj-viewer/internal/store"
	"github.com/sanchez-kim/obj-viewer/internal/utils"
)

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "List stored verification runs, or the failing frames of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := connectDB(cmd.Context(), true); err != nil {
			utils.ShowError("Failed to open results database", err, "")
			return err
		}

		if len(args) == 0 {
			runs, err := DB.ListRuns(cmd.Context())
			if err != nil {
				utils.ShowError("Failed to list runs", err, "")
				return err
			}
			printRuns(os.Stdout, runs)
			return nil
		}

		runID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			utils.ShowError("Invalid run ID", err, "")
			return err
		}
		frames, err := DB.FailedFrames(cmd.Context(), runID)
		if err != nil {
			utils.ShowError("Failed to list frames", err, "")
			return err
		}
		printFailedFrames(os.Stdout, frames)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
}

func printRuns(out io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found in database.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tFINISHED\tPROCESSED\tPASSED\tFAILED\tERRORS\tSKIPPED\tSOURCE")
	fmt.Fprintln(w, "--\t-------\t--------\t---------\t------\t------\t------\t-------\t------")

	for _, r := range runs {
		finished := "running"
		if r.FinishedAt != nil {
			finished = r.FinishedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n", r.ID, r.StartedAt.Local().Format("2006-01-02 15:04"),
			finished, r.Processed, r.Passed, r.Failed, r.Errors, r.SkippedSentences, r.Transport)
	}
	w.Flush()
}

func printFailedFrames(out io.Writer, frames []store.FrameRecord) {
	if len(frames) == 0 {
		fmt.Fprintln(out, "No failing frames in this run.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "FRAME\tREASON\tCOUNT\tDETAILS")
	fmt.Fprintln(w, "-----\t------\t-----\t-------")

	for _, f := range frames {
		details := f.Error
		if details == "" {
			var parts []string
			if len(f.OutsideTier1) > 0 {
				parts = append(parts, "tier1: "+strings.Join(f.OutsideTier1, ","))
			}
			if len(f.OutsideTier2) > 0 {
				parts = append(parts, "tier2: "+strings.Join(f.OutsideTier2, ","))
			}
			details = strings.Join(parts, "; ")
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", f.Frame.Name(), f.Reason, f.TotalCount, details)
	}
	w.Flush()
}
