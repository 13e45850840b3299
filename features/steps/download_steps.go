//go:build integration

package steps

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/clipgrab/clipgrab_server/internal/download"
	"github.com/clipgrab/clipgrab_server/internal/extractor"
	"github.com/clipgrab/clipgrab_server/internal/media"
	"github.com/clipgrab/clipgrab_server/internal/workspace"
	"github.com/cucumber/godog"
	"github.com/goccy/go-json"
	"github.com/valyala/fasthttp"
)

// mockExtractor stands in for yt-dlp: it writes a file next to the output
// template the way the tool would.
type mockExtractor struct {
	ext      string
	title    string
	failKind media.Kind
	calls    []*media.DownloadRequest
}

func (m *mockExtractor) Extract(ctx context.Context, req *media.DownloadRequest, outputTemplate string) (*extractor.Result, error) {
	m.calls = append(m.calls, req)
	if m.failKind != "" {
		_ = os.WriteFile(strings.Replace(outputTemplate, "%(ext)s", "mp4.part", 1), []byte("partial"), 0644)
		return nil, media.NewError(m.failKind, fmt.Errorf("simulated %s", m.failKind))
	}
	path := strings.Replace(outputTemplate, "%(ext)s", m.ext, 1)
	if err := os.WriteFile(path, []byte("media from "+req.ResolveSourceURL("")), 0644); err != nil {
		return nil, err
	}
	return &extractor.Result{Title: m.title, Extension: m.ext}, nil
}

type downloadContext struct {
	dir       string
	manager   *workspace.Manager
	extractor *mockExtractor
	response  *fasthttp.Response
}

func (d *downloadContext) reset() {
	d.extractor = &mockExtractor{ext: "mp4", title: "video"}
	d.response = nil
}

func (d *downloadContext) anEmptyStagingDirectory() error {
	dir, err := os.MkdirTemp("", "clipgrab-features-*")
	if err != nil {
		return err
	}
	d.dir = dir
	d.manager, err = workspace.New(workspace.Config{Dir: dir, ResolveAttempts: 2, ResolveInterval: time.Millisecond})
	return err
}

func (d *downloadContext) theToolProduces(ext, title string) error {
	d.extractor.ext = ext
	d.extractor.title = title
	return nil
}

func (d *downloadContext) theToolFailsWith(kind string) error {
	d.extractor.failKind = media.Kind(kind)
	return nil
}

func (d *downloadContext) post(handler fasthttp.RequestHandler, contentType string, body []byte) {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(fasthttp.MethodPost)
	ctx.Request.Header.SetContentType(contentType)
	ctx.Request.SetBody(body)
	handler(ctx)

	// Body drains and closes the stream, completing the delivery.
	ctx.Response.Body()
	d.response = &fasthttp.Response{}
	ctx.Response.CopyTo(d.response)
}

func (d *downloadContext) endpoints() *download.Endpoints {
	service := download.NewService(d.manager, d.extractor, nil, time.Hour)
	return download.NewEndpoints(service)
}

func (d *downloadContext) iRequestTheWholeVideo(url, quality string) error {
	body, err := json.Marshal(map[string]string{"url": url, "quality": quality})
	if err != nil {
		return err
	}
	d.post(d.endpoints().DownloadVideo, "application/json", body)
	return nil
}

func (d *downloadContext) iRequestTheSegment(videoID, start, end string) error {
	args := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(args)
	args.Set("videoId", videoID)
	args.Set("start_time", start)
	args.Set("end_time", end)
	d.post(d.endpoints().DownloadSegment, "application/x-www-form-urlencoded", args.QueryString())
	return nil
}

func (d *downloadContext) theResponseStatusShouldBe(status int) error {
	if got := d.response.StatusCode(); got != status {
		return fmt.Errorf("expected status %d, got %d: %s", status, got, d.response.Body())
	}
	return nil
}

func (d *downloadContext) theAttachmentShouldBeNamed(name string) error {
	want := fmt.Sprintf(`attachment; filename="%s"`, name)
	if got := string(d.response.Header.Peek("Content-Disposition")); got != want {
		return fmt.Errorf("expected Content-Disposition %q, got %q", want, got)
	}
	return nil
}

func (d *downloadContext) theBodyShouldMatchTheStagedFile() error {
	id := string(d.response.Header.Peek(download.WorkItemHeader))
	matches, err := filepath.Glob(filepath.Join(d.dir, id+".*"))
	if err != nil || len(matches) != 1 {
		return fmt.Errorf("expected one staged file for %s, found %v", id, matches)
	}
	staged, err := os.ReadFile(matches[0])
	if err != nil {
		return err
	}
	if !bytes.Equal(staged, d.response.Body()) {
		return fmt.Errorf("body does not match staged file %s", matches[0])
	}
	return nil
}

func (d *downloadContext) theErrorCodeShouldBe(code string) error {
	var response download.ErrorResponse
	if err := json.Unmarshal(d.response.Body(), &response); err != nil {
		return fmt.Errorf("response is not an error document: %w", err)
	}
	if string(response.Code) != code {
		return fmt.Errorf("expected error code %q, got %q", code, response.Code)
	}
	return nil
}

func (d *downloadContext) theToolShouldNotHaveRun() error {
	if len(d.extractor.calls) != 0 {
		return fmt.Errorf("expected no extraction, got %d", len(d.extractor.calls))
	}
	return nil
}

func (d *downloadContext) theToolShouldHaveBeenAskedFor(videoID, start, end string) error {
	if len(d.extractor.calls) != 1 {
		return fmt.Errorf("expected one extraction, got %d", len(d.extractor.calls))
	}
	req := d.extractor.calls[0]
	if req.VideoID != videoID || req.Start.String() != start || req.End.String() != end {
		return fmt.Errorf("unexpected clip %s %s-%s", req.VideoID, req.Start, req.End)
	}
	return nil
}

func (d *downloadContext) theStagingDirectoryShouldHold(count int) error {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return err
	}
	if len(entries) != count {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		return fmt.Errorf("expected %d staged file(s), found %v", count, names)
	}
	return nil
}

func (d *downloadContext) aStagedFileThatIsOld(name, age string) error {
	ageDuration, err := time.ParseDuration(age)
	if err != nil {
		return err
	}
	path := filepath.Join(d.dir, name)
	if err := os.WriteFile(path, []byte(name), 0644); err != nil {
		return err
	}
	modTime := time.Now().Add(-ageDuration)
	return os.Chtimes(path, modTime, modTime)
}

func (d *downloadContext) theStagingDirectoryIsSwept(retention string) error {
	maxAge, err := time.ParseDuration(retention)
	if err != nil {
		return err
	}
	_, err = d.manager.SweepExpired(maxAge)
	return err
}

// InitializeDownloadScenario registers the download lifecycle steps.
func InitializeDownloadScenario(ctx *godog.ScenarioContext) {
	d := &downloadContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		d.reset()
		return ctx, nil
	})
	ctx.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if d.dir != "" {
			os.RemoveAll(d.dir)
			d.dir = ""
		}
		return ctx, nil
	})

	ctx.Step(`^an empty staging directory$`, d.anEmptyStagingDirectory)
	ctx.Step(`^the extraction tool produces "([^"]*)" files titled "([^"]*)"$`, d.theToolProduces)
	ctx.Step(`^the extraction tool fails with "([^"]*)"$`, d.theToolFailsWith)
	ctx.Step(`^I request the whole video "([^"]*)" in quality "([^"]*)"$`, d.iRequestTheWholeVideo)
	ctx.Step(`^I request the segment of "([^"]*)" from "([^"]*)" to "([^"]*)"$`, d.iRequestTheSegment)
	ctx.Step(`^the response status should be (\d+)$`, d.theResponseStatusShouldBe)
	ctx.Step(`^the attachment should be named "([^"]*)"$`, d.theAttachmentShouldBeNamed)
	ctx.Step(`^the body should match the staged file$`, d.theBodyShouldMatchTheStagedFile)
	ctx.Step(`^the error code should be "([^"]*)"$`, d.theErrorCodeShouldBe)
	ctx.Step(`^the extraction tool should not have run$`, d.theToolShouldNotHaveRun)
	ctx.Step(`^the tool should have been asked for "([^"]*)" from "([^"]*)" to "([^"]*)"$`, d.theToolShouldHaveBeenAskedFor)
	ctx.Step(`^the staging directory should hold (\d+) files?$`, d.theStagingDirectoryShouldHold)
	ctx.Step(`^a staged file "([^"]*)" that is (\S+) old$`, d.aStagedFileThatIsOld)
	ctx.Step(`^the staging directory is swept with retention "([^"]*)"$`, d.theStagingDirectoryIsSwept)
}
