package media

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrValidation = errors.New("validation error")
)

// Quality is the caller's resolution preference.
type Quality string

const (
	QualityBest  Quality = "best"
	Quality1080p Quality = "1080p"
	Quality720p  Quality = "720p"
	Quality360p  Quality = "360p"
)

// MaxHeight returns the vertical resolution ceiling, or 0 for best.
func (q Quality) MaxHeight() int {
	switch q {
	case Quality1080p:
		return 1080
	case Quality720p:
		return 720
	case Quality360p:
		return 360
	default:
		return 0
	}
}

// ParseQuality normalizes user input. Empty input means best; a bare number
// such as "720" is read as "720p".
func ParseQuality(s string) (Quality, error) {
	raw := s
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return QualityBest, nil
	}
	if !strings.HasSuffix(s, "p") && s != string(QualityBest) {
		s += "p"
	}
	switch q := Quality(s); q {
	case QualityBest, Quality1080p, Quality720p, Quality360p:
		return q, nil
	}
	return "", fmt.Errorf("%w: unsupported quality %q (expected best, 1080p, 720p or 360p)", ErrValidation, raw)
}

// Mode distinguishes whole-video downloads from clip downloads.
type Mode string

const (
	ModeWhole   Mode = "whole"
	ModeSegment Mode = "segment"
)

// DownloadRequest is one inbound call. Validate normalizes Quality in place;
// after Validate succeeds the request is not modified again.
type DownloadRequest struct {
	SourceURL string
	VideoID   string
	Start     *Timestamp
	End       *Timestamp
	Quality   Quality

	mode Mode
}

// NewWholeRequest builds a request for a complete video.
func NewWholeRequest(sourceURL string, quality Quality) *DownloadRequest {
	return &DownloadRequest{SourceURL: sourceURL, Quality: quality, mode: ModeWhole}
}

// NewSegmentRequest builds a clip request; start and end may be nil and are
// then reported as missing by Validate.
func NewSegmentRequest(videoID string, start, end *Timestamp, quality Quality) *DownloadRequest {
	return &DownloadRequest{VideoID: videoID, Start: start, End: end, Quality: quality, mode: ModeSegment}
}

// Mode reports the mode the request was built for. Literal requests are in
// segment mode when any clip field is present.
func (r *DownloadRequest) Mode() Mode {
	if r.mode != "" {
		return r.mode
	}
	if r.VideoID != "" || r.Start != nil || r.End != nil {
		return ModeSegment
	}
	return ModeWhole
}

// Validate checks the request invariants for its mode.
func (r *DownloadRequest) Validate() error {
	quality, err := ParseQuality(string(r.Quality))
	if err != nil {
		return err
	}
	r.Quality = quality

	if r.Mode() == ModeWhole {
		return validateSourceURL(r.SourceURL)
	}

	if strings.TrimSpace(r.VideoID) == "" {
		return fmt.Errorf("%w: videoId is required", ErrValidation)
	}
	if r.Start == nil {
		return fmt.Errorf("%w: start_time is required", ErrValidation)
	}
	if r.End == nil {
		return fmt.Errorf("%w: end_time is required", ErrValidation)
	}
	if r.End.Duration() > MaxTimestamp {
		return fmt.Errorf("%w: end time %s must not exceed %s", ErrValidation, r.End, MaxTimestamp)
	}
	if !r.Start.Before(*r.End) {
		return fmt.Errorf("%w: end time %s must be after start time %s", ErrValidation, r.End, r.Start)
	}
	if strings.Contains(r.VideoID, "://") {
		return validateSourceURL(r.VideoID)
	}
	return nil
}

// ResolveSourceURL returns the URL handed to the extraction tool. Clip
// requests carry a bare video id which is appended to videoBaseURL unless
// it is already an absolute URL.
func (r *DownloadRequest) ResolveSourceURL(videoBaseURL string) string {
	if r.Mode() == ModeWhole {
		return r.SourceURL
	}
	if strings.Contains(r.VideoID, "://") {
		return r.VideoID
	}
	return videoBaseURL + url.QueryEscape(r.VideoID)
}

func validateSourceURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%w: url is required", ErrValidation)
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: malformed url %q", ErrValidation, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: url scheme must be http or https", ErrValidation)
	}
	return nil
}
