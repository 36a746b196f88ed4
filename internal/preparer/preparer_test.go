package preparer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestBuildArgs_Defaults(t *testing.T) {
	args, err := BuildArgs(Options{InputPath: "movie.webm", OutputDir: "out"})
	if err != nil {
		t.Fatalf("BuildArgs() error = %v", err)
	}

	for _, want := range []string{
		"-e",
		"location=movie.webm",
		"mpd-filename=manifest.mpd",
		"mpd-root-path=out",
		"target-duration=4",
		"muxer=dashmp4",
		"audio/x-raw,channels=2",
		"bitrate=192000",
		"ds.audio_0",
		"video/x-raw,width=[1,1920],height=[1,1080]",
		"bitrate=6000",
		"bitrate=2000",
		"key-int-max=120",
		"video/x-av1,stream-format=obu-stream,alignment=tu",
		"ds.video_0",
		"ds.video_1",
	} {
		if !slices.Contains(args, want) {
			t.Errorf("args missing %q\nargs: %s", want, strings.Join(args, " "))
		}
	}

	if n := countOf(args, "vaav1enc"); n != 2 {
		t.Errorf("vaav1enc count = %d, want 2", n)
	}
	if n := countOf(args, "vaapipostproc"); n != 2 {
		t.Errorf("vaapipostproc count = %d, want 2", n)
	}
	if slices.Contains(args, "ds.video_2") {
		t.Error("unexpected third rendition")
	}
}

func TestBuildArgs_DecodebinPadsRoutedByCaps(t *testing.T) {
	args, err := BuildArgs(Options{InputPath: "movie.webm", OutputDir: "out"})
	if err != nil {
		t.Fatalf("BuildArgs() error = %v", err)
	}

	var branches [][]string
	for i, a := range args {
		if a == "d." {
			if i+3 >= len(args) {
				t.Fatalf("decodebin link at %d is truncated", i)
			}
			branches = append(branches, args[i+1:i+4])
		}
	}
	want := [][]string{
		{"!", "audio/x-raw", "!"},
		{"!", "video/x-raw", "!"},
	}
	if len(branches) != len(want) {
		t.Fatalf("expected %d decodebin links, got %d", len(want), len(branches))
	}
	for i := range want {
		if !slices.Equal(branches[i], want[i]) {
			t.Errorf("decodebin link %d = %v, want %v", i, branches[i], want[i])
		}
	}

	// The video caps must feed the tee directly.
	tee := slices.Index(args, "tee")
	if tee < 2 || args[tee-2] != "video/x-raw" {
		t.Errorf("expected video/x-raw right before tee, got %v", args[max(0, tee-2):tee+1])
	}
}

func TestBuildArgs_Custom(t *testing.T) {
	args, err := BuildArgs(Options{
		InputPath:      "in.mkv",
		OutputDir:      "/srv/media",
		BitratesMbps:   []int{8, 4, 1},
		FPS:            25,
		TargetDuration: 2,
		AudioBitrate:   96000,
		Manifest:       "stream.mpd",
	})
	if err != nil {
		t.Fatalf("BuildArgs() error = %v", err)
	}
	for _, want := range []string{
		"mpd-filename=stream.mpd",
		"target-duration=2",
		"bitrate=96000",
		"bitrate=8000",
		"bitrate=4000",
		"bitrate=1000",
		"key-int-max=50",
		"ds.video_2",
	} {
		if !slices.Contains(args, want) {
			t.Errorf("args missing %q", want)
		}
	}
}

func TestBuildArgs_Errors(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want error
	}{
		{name: "no input", opts: Options{OutputDir: "out"}, want: ErrMissingInput},
		{name: "no output", opts: Options{InputPath: "in"}, want: ErrMissingOutput},
		{name: "bad bitrate", opts: Options{InputPath: "in", OutputDir: "out", BitratesMbps: []int{6, 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildArgs(tt.opts)
			if err == nil {
				t.Fatal("BuildArgs() error = nil, want error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("BuildArgs() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestKeyframeInterval(t *testing.T) {
	if got := (Options{}).KeyframeInterval(); got != 120 {
		t.Errorf("KeyframeInterval() = %d, want 120", got)
	}
	if got := (Options{FPS: 60, TargetDuration: 6}).KeyframeInterval(); got != 360 {
		t.Errorf("KeyframeInterval() = %d, want 360", got)
	}
}

// helperCommand re-executes the test binary as a stand-in for gst-launch-1.0.
func helperCommand(exitCode int) func(ctx context.Context, name string, args ...string) *exec.Cmd {
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess", "--")
		cmd.Env = append(os.Environ(),
			"PREPARER_HELPER_PROCESS=1",
			fmt.Sprintf("PREPARER_HELPER_EXIT=%d", exitCode),
		)
		return cmd
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("PREPARER_HELPER_PROCESS") != "1" {
		return
	}
	fmt.Println("pipeline output")
	if os.Getenv("PREPARER_HELPER_EXIT") != "0" {
		os.Exit(3)
	}
	os.Exit(0)
}

func TestRunner_Run(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "out")
	r := &Runner{logger: zaptest.NewLogger(t), launcher: DefaultLauncher, command: helperCommand(0)}

	if err := r.Run(context.Background(), Options{InputPath: "in.webm", OutputDir: out}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if st, err := os.Stat(out); err != nil || !st.IsDir() {
		t.Fatalf("output directory not created: %v", err)
	}
}

func TestRunner_RunFailure(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	r := &Runner{logger: zaptest.NewLogger(t), launcher: DefaultLauncher, command: helperCommand(1)}

	err := r.Run(context.Background(), Options{InputPath: "in.webm", OutputDir: out})
	if err == nil {
		t.Fatal("Run() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "pipeline output") {
		t.Errorf("error %q does not include pipeline output", err)
	}
}

func TestRunner_RunInvalidOptions(t *testing.T) {
	r := &Runner{logger: zaptest.NewLogger(t), launcher: DefaultLauncher, command: helperCommand(0)}
	if err := r.Run(context.Background(), Options{OutputDir: t.TempDir()}); !errors.Is(err, ErrMissingInput) {
		t.Errorf("Run() error = %v, want ErrMissingInput", err)
	}
}

func countOf(args []string, s string) int {
	n := 0
	for _, a := range args {
		if a == s {
			n++
		}
	}
	return n
}
