package extractor

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/clipgrab/clipgrab_server/internal/media"
	"github.com/rs/zerolog/log"
)

const (
	recordSeparator = "|||"
	printTemplate   = "after_move:%(title)s" + recordSeparator + "%(ext)s"

	DefaultBinary         = "yt-dlp"
	DefaultWholeTimeout   = 120 * time.Second
	DefaultSegmentTimeout = 10 * time.Minute
	DefaultVideoBaseURL   = "https://www.youtube.com/watch?v="
)

var extensionRegex = regexp.MustCompile(`^[A-Za-z0-9]{1,10}$`)

// Result is what the tool reports about the file it produced.
type Result struct {
	Title     string
	Extension string
}

// YtDlp runs yt-dlp as a child process, one invocation per request.
type YtDlp struct {
	binary         string
	runner         CommandRunner
	wholeTimeout   time.Duration
	segmentTimeout time.Duration
	videoBaseURL   string
}

// Option is a functional option for configuring YtDlp
type Option func(*YtDlp)

// WithBinary sets a custom yt-dlp executable path
func WithBinary(path string) Option {
	return func(y *YtDlp) {
		if path != "" {
			y.binary = path
		}
	}
}

// WithCommandRunner sets a custom command runner (for testing)
func WithCommandRunner(runner CommandRunner) Option {
	return func(y *YtDlp) {
		y.runner = runner
	}
}

// WithTimeouts sets the wall-clock budgets for whole-video and clip
// extraction. Zero keeps the default.
func WithTimeouts(whole, segment time.Duration) Option {
	return func(y *YtDlp) {
		if whole > 0 {
			y.wholeTimeout = whole
		}
		if segment > 0 {
			y.segmentTimeout = segment
		}
	}
}

// WithVideoBaseURL sets the prefix used to turn a clip's video id into a URL.
func WithVideoBaseURL(base string) Option {
	return func(y *YtDlp) {
		if base != "" {
			y.videoBaseURL = base
		}
	}
}

func New(opts ...Option) *YtDlp {
	y := &YtDlp{
		binary:         DefaultBinary,
		runner:         &ExecCommandRunner{},
		wholeTimeout:   DefaultWholeTimeout,
		segmentTimeout: DefaultSegmentTimeout,
		videoBaseURL:   DefaultVideoBaseURL,
	}

	for _, opt := range opts {
		opt(y)
	}

	return y
}

// Timeout returns the budget applied to requests of the given mode.
func (y *YtDlp) Timeout(mode media.Mode) time.Duration {
	if mode == media.ModeSegment {
		return y.segmentTimeout
	}
	return y.wholeTimeout
}

// Extract downloads req into outputTemplate. The process is killed when the
// mode's timeout elapses or ctx ends, so no writer is left behind once
// Extract returns.
func (y *YtDlp) Extract(ctx context.Context, req *media.DownloadRequest, outputTemplate string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, y.Timeout(req.Mode()))
	defer cancel()

	args := y.BuildArgs(req, outputTemplate)
	log.Debug().
		Str("binary", y.binary).
		Strs("args", args).
		Msg("Running extraction tool")

	started := time.Now()
	stdout, stderr, err := y.runner.Run(ctx, y.binary, args...)
	if err != nil {
		classified := Classify(ctx.Err(), err, stderr)
		log.Warn().
			Err(err).
			Str("kind", string(classified.Kind)).
			Dur("elapsed", time.Since(started)).
			Msg("Extraction tool failed")
		return nil, classified
	}

	if len(stderr) > 0 {
		log.Debug().Str("stderr", lastErrorLine(string(stderr))).Msg("Extraction tool diagnostics")
	}

	result, err := parseRecord(stdout)
	if err != nil {
		return nil, &media.Error{
			Kind:    media.KindUnknown,
			Message: "the extraction tool returned no video information",
			Err:     err,
		}
	}

	log.Debug().
		Str("title", result.Title).
		Str("extension", result.Extension).
		Dur("elapsed", time.Since(started)).
		Msg("Extraction tool finished")
	return result, nil
}

// BuildArgs assembles the command line for req. Playlists are never
// expanded: one URL always yields one file.
func (y *YtDlp) BuildArgs(req *media.DownloadRequest, outputTemplate string) []string {
	args := []string{
		"-f", FormatSelector(req.Quality),
		"--no-playlist",
		"--no-simulate",
		"--no-progress",
		"--no-mtime",
		"-o", outputTemplate,
		"--print", printTemplate,
	}

	if req.Mode() == media.ModeSegment && req.Start != nil && req.End != nil {
		args = append(args,
			"--download-sections", fmt.Sprintf("*%s-%s", req.Start, req.End),
			"--force-keyframes-at-cuts",
		)
	}

	return append(args, "--", req.ResolveSourceURL(y.videoBaseURL))
}

// FormatSelector maps a quality preference onto yt-dlp's format syntax,
// preferring mp4 and falling back to whatever is best within the ceiling.
// The ceiling is best effort: the produced resolution is not checked.
func FormatSelector(q media.Quality) string {
	height := q.MaxHeight()
	if height == 0 {
		return "best[ext=mp4]/best"
	}
	return fmt.Sprintf("best[height<=%d][ext=mp4]/best[height<=%d]", height, height)
}

// parseRecord reads the last "title|||ext" line from stdout.
func parseRecord(stdout []byte) (*Result, error) {
	lines := strings.Split(strings.TrimSpace(string(stdout)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		sep := strings.LastIndex(line, recordSeparator)
		if sep < 0 {
			continue
		}
		title := strings.TrimSpace(line[:sep])
		ext := strings.TrimSpace(line[sep+len(recordSeparator):])
		if title == "" || !extensionRegex.MatchString(ext) {
			return nil, fmt.Errorf("malformed output record %q", line)
		}
		return &Result{Title: title, Extension: strings.ToLower(ext)}, nil
	}
	return nil, errors.New("no output record printed")
}

// VerifyInstalled checks that yt-dlp is available and returns its version.
func (y *YtDlp) VerifyInstalled(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	stdout, _, err := y.runner.Run(ctx, y.binary, "--version")
	if err != nil {
		return "", fmt.Errorf("%s not found or not executable: %w", y.binary, err)
	}
	return strings.TrimSpace(string(stdout)), nil
}
