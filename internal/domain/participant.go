package domain

import "time"

// Participant is a registered player. Records are created on first sight and
// never deleted; an administrative stats reset only moves the play-time
// watermark and zeroes the counters.
type Participant struct {
	Handle string `json:"handle"`
	// PlayTime is cumulative across all machines and monotonically
	// non-decreasing. Downstream reward accrual keys off this value.
	PlayTime time.Duration `json:"play_time"`
	// PlayOffset is the watermark set by a stats reset. Displayed play time
	// is PlayTime - PlayOffset.
	PlayOffset   time.Duration `json:"play_offset"`
	SkipCount    int           `json:"skip_count"`
	SessionCount int           `json:"session_count"`
}

// DisplayPlayTime returns play time accrued since the last stats reset.
func (p *Participant) DisplayPlayTime() time.Duration {
	return p.PlayTime - p.PlayOffset
}

// Clone returns a copy of the participant.
func (p *Participant) Clone() *Participant {
	cp := *p
	return &cp
}
