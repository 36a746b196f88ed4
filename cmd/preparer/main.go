package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/vmorsell/global-playback/internal/preparer"
	"go.uber.org/zap"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <input-file> <output-directory>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Example: %s test.webm ./output\n", os.Args[0])
		flag.PrintDefaults()
	}
	bitrates := flag.String("bitrates", "6,2", "comma separated video bitrates in Mbps")
	fps := flag.Int("fps", preparer.DefaultFPS, "assumed source frame rate")
	segment := flag.Int("segment", preparer.DefaultTargetDuration, "target segment duration in seconds")
	launcher := flag.String("gst", preparer.DefaultLauncher, "gst-launch binary")
	flag.Parse()

	if flag.NArg() < 2 {
		flag.Usage()
		os.Exit(1)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	rates, err := parseBitrates(*bitrates)
	if err != nil {
		logger.Fatal("invalid bitrates", zap.Error(err))
	}

	runner, err := preparer.NewRunner(logger, *launcher)
	if err != nil {
		logger.Fatal("gstreamer not available", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = runner.Run(ctx, preparer.Options{
		InputPath:      flag.Arg(0),
		OutputDir:      flag.Arg(1),
		BitratesMbps:   rates,
		FPS:            *fps,
		TargetDuration: *segment,
	})
	if err != nil {
		logger.Fatal("preparation failed", zap.Error(err))
	}
}

func parseBitrates(v string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("parse bitrate %q: %w", part, err)
		}
		out = append(out, n)
	}
	return out, nil
}
