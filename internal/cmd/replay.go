package cmd

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sszokoly/sbctail/internal/locator"
	"github.com/sszokoly/sbctail/internal/reader"
	"github.com/sszokoly/sbctail/internal/tailer"
)

var (
	replayDir     string
	replayPattern string
)

var replayCmd = &cobra.Command{
	Use:   "replay [files...]",
	Short: "Replay a bounded list of historical trace files",
	Long: `Replay processes the given trace files strictly in order, from offset 0,
and terminates when the last one is exhausted. Compressed (.gz, .bz2) files
are decompressed transparently. With --dir instead of explicit files, all
matching files in the directory are replayed oldest to newest.

Examples:
  sbctail replay tracesbc_sip_1747386600 tracesbc_sip_1747390200.gz
  sbctail replay --dir /archive/log/tracesbc/tracesbc_sip --methods INVITE`,
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVarP(&replayDir, "dir", "d", "", "replay every matching file in this directory")
	replayCmd.Flags().StringVarP(&replayPattern, "pattern", "p", locator.DefaultPattern, "trace file name pattern for --dir")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	fs := afero.NewOsFs()

	files := args
	if len(files) == 0 {
		if replayDir == "" {
			return fmt.Errorf("no input: pass trace files or --dir")
		}
		var err error
		files, err = locator.New(fs, replayDir, replayPattern).List()
		if err != nil {
			return fmt.Errorf("listing %s: %w", replayDir, err)
		}
		if len(files) == 0 {
			return fmt.Errorf("no files match %s in %s", replayPattern, replayDir)
		}
	}

	rd := reader.NewReplay(fs, files, newParser())
	defer rd.Close()

	renderer := newRenderer()

	var count int64
	for {
		msg, err := rd.Next()
		if errors.Is(err, tailer.ErrEndOfStream) {
			break
		}
		if err != nil {
			return err
		}
		if err := renderer.Render(msg); err != nil {
			log.Printf("render error: %v", err)
		}
		count++
	}

	fmt.Fprintf(os.Stderr, "replayed %d message(s) from %d file(s)\n", count, len(files))
	return nil
}
