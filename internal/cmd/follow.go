package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sszokoly/sbctail/internal/aggregator"
	"github.com/sszokoly/sbctail/internal/hub"
	"github.com/sszokoly/sbctail/internal/locator"
	"github.com/sszokoly/sbctail/internal/model"
	"github.com/sszokoly/sbctail/internal/reader"
	"github.com/sszokoly/sbctail/internal/server"
	"github.com/sszokoly/sbctail/internal/watcher"
)

const defaultLogDir = "/archive/log/tracesbc/tracesbc_sip"

var (
	followPattern  string
	followInterval time.Duration
	servePort      string
)

var followCmd = &cobra.Command{
	Use:   "follow [directory]",
	Short: "Follow the latest trace file across rotations",
	Long: `Follow tails whichever trace file is currently the newest in the log
directory, switching files as the appliance rotates them. The backlog of the
first file is skipped; only messages written after startup are emitted.

Examples:
  sbctail follow
  sbctail follow /archive/log/tracesbc/tracesbc_sip --methods INVITE,BYE
  sbctail follow --serve 8080 --output json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFollow,
}

func init() {
	followCmd.Flags().StringVarP(&followPattern, "pattern", "p", locator.DefaultPattern, "trace file name pattern")
	followCmd.Flags().DurationVarP(&followInterval, "interval", "i", 100*time.Millisecond, "poll interval")
	followCmd.Flags().StringVarP(&servePort, "serve", "s", "", "serve stats and websocket stream on this port")
	rootCmd.AddCommand(followCmd)
}

func runFollow(cmd *cobra.Command, args []string) error {
	dir := defaultLogDir
	if len(args) > 0 {
		dir = args[0]
	}

	// --- Set up context with graceful shutdown ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "sbctail shutting down...")
		cancel()
	}()

	fs := afero.NewOsFs()
	loc := locator.New(fs, dir, followPattern)
	rd := reader.NewFollow(fs, loc, newParser())

	// The directory watcher only accelerates polling; follow works without it.
	if w, err := watcher.New(dir); err == nil {
		go w.Start(ctx)
		rd.SetWake(w.Wake)
	} else {
		log.Printf("cannot watch %s, falling back to pure polling: %v", dir, err)
	}

	// --- Fan-out pipeline ---
	msgCh := make(chan model.Message, 512)
	h := hub.New(msgCh)
	agg := aggregator.New(h.Subscribe(), h.Dropped, loc.Count)

	renderer := newRenderer()
	rendered := h.Subscribe()
	renderDone := make(chan struct{})
	go func() {
		defer close(renderDone)
		for msg := range rendered {
			if err := renderer.Render(msg); err != nil {
				log.Printf("render error: %v", err)
			}
		}
	}()

	go h.Start(ctx)
	go agg.Start(ctx)

	if servePort != "" {
		srv := server.New(h, agg, servePort)
		go func() {
			if err := srv.Start(); err != nil {
				log.Printf("server stopped: %v", err)
			}
		}()
		fmt.Fprintf(os.Stderr, "serving stats on :%s\n", servePort)
	}

	fmt.Fprintf(os.Stderr, "following %s (pattern %s)\n", dir, followPattern)

	err := rd.Follow(ctx, followInterval, func(msg model.Message) error {
		select {
		case msgCh <- msg:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	close(msgCh)
	<-renderDone

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
