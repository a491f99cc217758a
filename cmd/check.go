package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sanchez-kim/obj-viewer/internal/config"
	"github.com/sanchez-kim/obj-viewer/internal/utils"
	"github.com/sanchez-kim/obj-viewer/internal/verify"
)

var checkCmd = &cobra.Command{
	Use:   "check <mesh.obj> <meta.json>",
	Short: "Verify a single local mesh/metadata pair and print the boxes",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := runCheck(os.Stdout, Cfg, args[0], args[1])
		if err != nil {
			utils.ShowError("Check failed", err, "")
			return err
		}
		if !res.Passed {
			return fmt.Errorf("verification failed: %s", res.Reason)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

// runCheck verifies one pair from disk and reports the geometry.
func runCheck(w io.Writer, cfg *config.Config, meshPath, metaPath string) (verify.Result, error) {
	meshData, err := os.ReadFile(meshPath)
	if err != nil {
		return verify.Result{}, err
	}
	metaData, err := os.ReadFile(metaPath)
	if err != nil {
		return verify.Result{}, err
	}
	v, err := newVerifier(cfg)
	if err != nil {
		return verify.Result{}, err
	}

	warn := func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, "⚠️  "+format+"\n", args...)
	}
	res, err := v.Verify(meshData, metaData, warn)
	if err != nil {
		return verify.Result{}, err
	}

	fmt.Fprintf(w, "Outline box:  %s\n", res.Box)
	fmt.Fprintf(w, "Tier 1 box:   %s\n", res.Tier1)
	fmt.Fprintf(w, "Tier 2 box:   %s\n", res.Tier2)
	fmt.Fprintf(w, "Scale:        %g\n", res.Scale)
	fmt.Fprintf(w, "Lip vertices: %d\n", res.TotalCount)
	if len(res.OutsideTier1) > 0 {
		fmt.Fprintf(w, "Outside tier 1: %s\n", strings.Join(res.OutsideTier1, ", "))
	}
	if len(res.OutsideTier2) > 0 {
		fmt.Fprintf(w, "Outside tier 2: %s\n", strings.Join(res.OutsideTier2, ", "))
	}
	if res.Passed {
		fmt.Fprintf(w, "✅ PASSED\n")
	} else {
		fmt.Fprintf(w, "❌ FAILED (%s)\n", res.Reason)
	}
	return res, nil
}
