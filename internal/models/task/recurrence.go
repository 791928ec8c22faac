package task

import "time"

type Pattern string

const (
	PatternNone    Pattern = "none"
	PatternDaily   Pattern = "daily"
	PatternWeekly  Pattern = "weekly"
	PatternMonthly Pattern = "monthly"
	PatternYearly  Pattern = "yearly"
)

func (p Pattern) Valid() bool {
	switch p {
	case PatternNone, PatternDaily, PatternWeekly, PatternMonthly, PatternYearly:
		return true
	}
	return false
}

// Recurrence is capped by whichever of EndAfter and Occurrences is reached first.
// Generated counts the instances of the series produced so far, the first one included.
type Recurrence struct {
	Pattern     Pattern    `json:"pattern"`
	EndAfter    *time.Time `json:"endAfter,omitempty"`
	Occurrences *int       `json:"occurrences,omitempty"`
	Generated   int        `json:"generated"`
	Stopped     bool       `json:"stopped,omitempty"`
}

// Active reports whether the descriptor may still produce a successor.
func (r *Recurrence) Active() bool {
	return r != nil && r.Pattern != PatternNone && r.Pattern != "" && !r.Stopped
}

func (r *Recurrence) Clone() *Recurrence {
	if r == nil {
		return nil
	}
	c := *r
	if r.EndAfter != nil {
		v := *r.EndAfter
		c.EndAfter = &v
	}
	if r.Occurrences != nil {
		v := *r.Occurrences
		c.Occurrences = &v
	}
	return &c
}
