package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/sanchez-kim/obj-viewer/internal/address"
	"github.com/sanchez-kim/obj-viewer/internal/transport"
	"github.com/sanchez-kim/obj-viewer/internal/utils"
)

var (
	downloadDir     string
	downloadTimeout time.Duration
)

var downloadCmd = &cobra.Command{
	Use:   "download <frame>...",
	Short: "Fetch the mesh and metadata of frames into a directory",
	Long: `Fetches each frame's pair through the configured transport. A frame is
given by name or by any file name or path containing it, e.g.
M07_S3001_F042 or reprocessed_v2/.../M07_S3001_F042.obj.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		frames, err := parseFrames(args)
		if err != nil {
			utils.ShowError("Invalid frame name", err, "Expected a name like M07_S3001_F042")
			return err
		}
		fetcher, err := transport.Open(cmd.Context(), Cfg.Transport)
		if err != nil {
			utils.ShowError("Failed to open transport", err, "")
			return err
		}
		defer fetcher.Close()

		if err := runDownload(cmd.Context(), fetcher, frames, downloadDir, downloadTimeout); err != nil {
			utils.ShowError("Download failed", err, "")
			return err
		}
		return nil
	},
}

func init() {
	downloadCmd.Flags().StringVarP(&downloadDir, "output", "o", ".", "Directory to write the files into")
	downloadCmd.Flags().DurationVar(&downloadTimeout, "fetch-timeout", 30*time.Second, "Deadline for fetching one frame")
	rootCmd.AddCommand(downloadCmd)
}

func parseFrames(args []string) ([]address.Frame, error) {
	frames := make([]address.Frame, 0, len(args))
	for _, a := range args {
		f, err := address.Parse(a)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// runDownload writes each frame's mesh and metadata under dir using their
// storage file names.
func runDownload(ctx context.Context, f transport.Fetcher, frames []address.Frame, dir string, timeout time.Duration) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for _, fr := range frames {
		fctx, cancel := context.WithTimeout(ctx, timeout)
		pair, err := f.Fetch(fctx, fr)
		cancel()
		if err != nil {
			return fmt.Errorf("%s: %w", fr.Name(), err)
		}

		for _, file := range []struct {
			name string
			data []byte
		}{{pair.MeshName, pair.Mesh}, {pair.MetaName, pair.Meta}} {
			path := filepath.Join(dir, file.name)
			if err := os.WriteFile(path, file.data, 0644); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "📥 Downloaded %s\n", path)
		}
	}
	return nil
}
