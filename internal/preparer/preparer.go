// Package preparer turns a source video into a multi-bitrate DASH stream by
// running a gst-launch-1.0 pipeline: AV1 video through VA-API, Opus audio,
// dashsink with the dashmp4 muxer.
package preparer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"go.uber.org/zap"
)

const (
	DefaultLauncher       = "gst-launch-1.0"
	DefaultManifest       = "manifest.mpd"
	DefaultFPS            = 30
	DefaultTargetDuration = 4
	DefaultAudioBitrate   = 192000
	maxWidth              = 1920
	maxHeight             = 1080

	audioRawCaps = "audio/x-raw"
	videoRawCaps = "video/x-raw"
)

// DefaultBitratesMbps lists one video rendition per entry, highest first.
var DefaultBitratesMbps = []int{6, 2}

var (
	ErrMissingInput  = errors.New("input path is required")
	ErrMissingOutput = errors.New("output directory is required")
	ErrNoRenditions  = errors.New("at least one bitrate is required")
)

type Options struct {
	InputPath string
	OutputDir string

	BitratesMbps   []int
	FPS            int
	TargetDuration int // seconds per segment
	AudioBitrate   int // bits per second
	Manifest       string
}

func (o Options) withDefaults() Options {
	if len(o.BitratesMbps) == 0 {
		o.BitratesMbps = DefaultBitratesMbps
	}
	if o.FPS <= 0 {
		o.FPS = DefaultFPS
	}
	if o.TargetDuration <= 0 {
		o.TargetDuration = DefaultTargetDuration
	}
	if o.AudioBitrate <= 0 {
		o.AudioBitrate = DefaultAudioBitrate
	}
	if o.Manifest == "" {
		o.Manifest = DefaultManifest
	}
	return o
}

func (o Options) validate() error {
	if o.InputPath == "" {
		return ErrMissingInput
	}
	if o.OutputDir == "" {
		return ErrMissingOutput
	}
	if len(o.BitratesMbps) == 0 {
		return ErrNoRenditions
	}
	for _, b := range o.BitratesMbps {
		if b <= 0 {
			return fmt.Errorf("invalid bitrate %d Mbps", b)
		}
	}
	return nil
}

// KeyframeInterval is the number of frames per segment, so every segment
// starts on a keyframe.
func (o Options) KeyframeInterval() int {
	o = o.withDefaults()
	return o.FPS * o.TargetDuration
}

// BuildArgs returns the gst-launch-1.0 arguments for opts.
func BuildArgs(opts Options) ([]string, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	args := []string{
		"-e",
		"filesrc", "location=" + opts.InputPath, "!", "decodebin", "name=d",
		"dashsink", "name=ds",
		"mpd-filename=" + opts.Manifest,
		"mpd-root-path=" + opts.OutputDir,
		"target-duration=" + strconv.Itoa(opts.TargetDuration),
		"muxer=dashmp4",
	}

	// decodebin pads are routed by caps, not by whichever link accepts first.
	// Audio: downmix to stereo Opus.
	args = append(args,
		"d.", "!", audioRawCaps, "!", "queue", "!", "audioconvert", "!", "audioresample", "!", "queue",
		"!", "audio/x-raw,channels=2",
		"!", "opusenc", "bitrate="+strconv.Itoa(opts.AudioBitrate),
		"!", "queue", "!", "ds.audio_0",
	)

	args = append(args, "d.", "!", videoRawCaps, "!", "tee", "name=t")
	keyint := strconv.Itoa(opts.KeyframeInterval())
	for i, mbps := range opts.BitratesMbps {
		args = append(args,
			"t.", "!", "queue", "!", "vaapipostproc",
			"!", fmt.Sprintf("video/x-raw,width=[1,%d],height=[1,%d]", maxWidth, maxHeight),
			"!", "queue",
			"!", "vaav1enc", "bitrate="+strconv.Itoa(mbps*1000), "key-int-max="+keyint,
			"!", "queue", "!", "av1parse",
			"!", "video/x-av1,stream-format=obu-stream,alignment=tu",
			"!", "queue", "!", fmt.Sprintf("ds.video_%d", i),
		)
	}
	return args, nil
}

type Runner struct {
	logger   *zap.Logger
	launcher string
	command  func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewRunner resolves launcher on PATH. An empty launcher means gst-launch-1.0.
func NewRunner(logger *zap.Logger, launcher string) (*Runner, error) {
	if launcher == "" {
		launcher = DefaultLauncher
	}
	path, err := exec.LookPath(launcher)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", launcher, err)
	}
	return &Runner{logger: logger, launcher: path, command: exec.CommandContext}, nil
}

// Run creates the output directory and blocks until the pipeline exits.
func (r *Runner) Run(ctx context.Context, opts Options) error {
	args, err := BuildArgs(opts)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory %s: %w", opts.OutputDir, err)
	}

	r.logger.Info("starting DASH pipeline",
		zap.String("input", opts.InputPath),
		zap.String("outputDir", opts.OutputDir),
		zap.Ints("bitratesMbps", opts.withDefaults().BitratesMbps),
	)

	cmd := r.command(ctx, r.launcher, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %w (output: %s)", r.launcher, err, string(output))
	}

	r.logger.Info("DASH pipeline finished", zap.String("outputDir", opts.OutputDir))
	return nil
}
