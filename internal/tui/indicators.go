package tui

import (
	"strings"
	"time"
)

const (
	pulseWidth = 5
	pulseStep  = 2 * time.Second
)

// Pulse shows recent event activity: every event lights all dots and one
// goes dark for each pulseStep of quiet.
type Pulse struct {
	lit  int
	last time.Time
}

func (p *Pulse) OnEvent(now time.Time) {
	p.lit = pulseWidth
	p.last = now
}

func (p *Pulse) Decay(now time.Time) {
	if p.lit == 0 {
		return
	}
	p.lit = max(0, pulseWidth-int(now.Sub(p.last)/pulseStep))
}

func (p Pulse) Render(theme Theme) string {
	var b strings.Builder
	b.WriteString(theme.PulseOn.Render(strings.Repeat("●", p.lit)))
	b.WriteString(theme.PulseOff.Render(strings.Repeat("○", pulseWidth-p.lit)))
	return b.String()
}

// LastEvent returns when the last event arrived, or the zero time.
func (p Pulse) LastEvent() time.Time {
	return p.last
}
