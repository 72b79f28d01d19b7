package sim

import (
	"context"
	"log"
	"time"

	"github.com/examguard/agent/internal/platform"
)

type step struct {
	after time.Duration
	note  string
	run   func(p *Platform)
}

// Script replays a canned exam against the platform: the examinee drifts
// between tabs, copies from the problem statement, leaves fullscreen,
// opens devtools and pastes external code. Paced for watching the logs.
type Script struct {
	p *Platform
}

func NewScript(p *Platform) *Script {
	return &Script{p: p}
}

func (s *Script) Run(ctx context.Context) {
	steps := []step{
		{2 * time.Second, "examinee switches to another tab",
			func(p *Platform) { p.SetVisible(false) }},
		{3 * time.Second, "examinee returns to the exam tab",
			func(p *Platform) { p.SetVisible(true) }},
		{2 * time.Second, "examinee copies from the problem statement",
			func(p *Platform) { p.Copy("func solve(input []int) int {") }},
		{4 * time.Second, "examinee leaves fullscreen",
			func(p *Platform) { p.ExitFullscreen() }},
		{6 * time.Second, "exam window loses focus",
			func(p *Platform) { p.SetFocused(false) }},
		{2 * time.Second, "focus returns",
			func(p *Platform) { p.SetFocused(true) }},
		{3 * time.Second, "examinee opens devtools",
			func(p *Platform) {
				p.SetViewport(platform.ViewportMetrics{
					OuterWidth: 1920, OuterHeight: 1080,
					InnerWidth: 1500, InnerHeight: 1080,
				})
			}},
		{5 * time.Second, "devtools closed",
			func(p *Platform) {
				p.SetViewport(platform.ViewportMetrics{
					OuterWidth: 1920, OuterHeight: 1080,
					InnerWidth: 1920, InnerHeight: 1080,
				})
			}},
		{3 * time.Second, "examinee pastes external code",
			func(p *Platform) { p.Paste("sorted := slices.Clone(input)\nslices.Sort(sorted)") }},
		{4 * time.Second, "rapid tab switching begins",
			func(p *Platform) { p.SetVisible(false) }},
		{1 * time.Second, "back again",
			func(p *Platform) { p.SetVisible(true) }},
		{1 * time.Second, "and away again",
			func(p *Platform) { p.SetVisible(false) }},
		{2 * time.Second, "examinee settles down",
			func(p *Platform) { p.SetVisible(true) }},
	}

	for _, st := range steps {
		select {
		case <-ctx.Done():
			return
		case <-time.After(st.after):
		}
		log.Printf("[sim] %s", st.note)
		st.run(s.p)
	}
	log.Printf("[sim] script complete")
}
