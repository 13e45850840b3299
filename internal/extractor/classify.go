package extractor

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"

	"github.com/clipgrab/clipgrab_server/internal/media"
)

type diagnosticPattern struct {
	substring string
	kind      media.Kind
}

// Checked in order; the first match wins.
var diagnosticPatterns = []diagnosticPattern{
	{"command not found", media.KindToolUnavailable},
	{"Unsupported URL", media.KindUnsupportedSource},
	{"is not a valid URL", media.KindUnsupportedSource},
	{"Video unavailable", media.KindSourceUnavailable},
	{"Private video", media.KindSourceUnavailable},
	{"This video is not available", media.KindSourceUnavailable},
	{"not available in your country", media.KindSourceUnavailable},
	{"has been removed", media.KindSourceUnavailable},
	{"members-only", media.KindSourceUnavailable},
	{"Sign in to confirm your age", media.KindSourceUnavailable},
	{"HTTP Error 404", media.KindSourceUnavailable},
	{"HTTP Error 403", media.KindSourceUnavailable},
}

// Classify maps a failed invocation onto the error taxonomy. ctxErr is the
// error of the context the process ran under, runErr what the runner
// returned and stderr the tool's diagnostics.
func Classify(ctxErr, runErr error, stderr []byte) *media.Error {
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		return media.NewError(media.KindTimeout, runErr)
	}
	if errors.Is(runErr, exec.ErrNotFound) || errors.Is(runErr, os.ErrNotExist) || errors.Is(runErr, os.ErrPermission) {
		return media.NewError(media.KindToolUnavailable, runErr)
	}

	diagnostics := string(stderr)
	for _, p := range diagnosticPatterns {
		if strings.Contains(diagnostics, p.substring) {
			return media.NewError(p.kind, errors.Join(runErr, errors.New(lastErrorLine(diagnostics))))
		}
	}

	if errors.Is(ctxErr, context.Canceled) {
		return &media.Error{Kind: media.KindUnknown, Message: "the extraction was cancelled", Err: runErr}
	}

	message := lastErrorLine(diagnostics)
	if message == "" {
		message = media.KindUnknown.Message()
	}
	return &media.Error{Kind: media.KindUnknown, Message: message, Err: runErr}
}

// lastErrorLine picks the most relevant line of the tool's stderr: the last
// "ERROR:" line if there is one, otherwise the last non-empty line.
func lastErrorLine(diagnostics string) string {
	lines := strings.Split(strings.TrimSpace(diagnostics), "\n")
	fallback := ""
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "ERROR:") {
			return line
		}
		if fallback == "" {
			fallback = line
		}
	}
	return fallback
}
