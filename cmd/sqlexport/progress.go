package main

import (
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/goliatone/go-sqlexport/export"
)

// progress renders written rows as a spinner; the total is unknown until the
// producer closes the channel.
type progress struct {
	bar *progressbar.ProgressBar
}

func newProgress(w io.Writer) *progress {
	return &progress{bar: progressbar.NewOptions64(
		-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Exporting"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("rows"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)}
}

func (p *progress) Add(delta export.ProgressDelta) {
	if delta.Rows > 0 {
		_ = p.bar.Add64(delta.Rows)
	}
}

func (p *progress) Finish() {
	_ = p.bar.Finish()
	_ = p.bar.Clear()
}
