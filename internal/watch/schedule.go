package watch

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule is a parsed poll schedule: either a fixed interval or a cron
// expression.
//
// Supported forms:
//   - Cron (crontab.guru-style): "*/5 * * * *", "@hourly", "@every 55m"
//   - Interval duration: "60s", "2m30s"
//   - Interval HH:MM: "00:05" (5 minutes)
//
// Optional prefixes "cron:" and "interval:"/"every:" force one interpretation.
type Schedule struct {
	Every time.Duration // zero when cron-driven
	cron  cron.Schedule
	raw   string
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

func ParseSchedule(raw string) (Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Schedule{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return parseCron(strings.TrimSpace(s[len("cron:"):]), raw)
	case strings.HasPrefix(low, "interval:"):
		return parseEvery(strings.TrimSpace(s[len("interval:"):]), raw)
	case strings.HasPrefix(low, "every:"):
		return parseEvery(strings.TrimSpace(s[len("every:"):]), raw)
	}

	// Whitespace or a leading '@' means cron.
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return parseCron(s, raw)
	}
	return parseEvery(s, raw)
}

func parseCron(expr, raw string) (Schedule, error) {
	if expr == "" {
		return Schedule{}, fmt.Errorf("cron schedule required after 'cron:'")
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return Schedule{}, fmt.Errorf("invalid cron schedule %q: %w", raw, err)
	}
	return Schedule{cron: sched, raw: raw}, nil
}

func parseEvery(v, raw string) (Schedule, error) {
	if v == "" {
		return Schedule{}, fmt.Errorf("interval required")
	}
	if m := reHHMM.FindStringSubmatch(v); len(m) == 3 {
		var hh, mm int
		fmt.Sscanf(m[1], "%d", &hh)
		fmt.Sscanf(m[2], "%d", &mm)
		if mm > 59 {
			return Schedule{}, fmt.Errorf("invalid minutes in %q", raw)
		}
		d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
		if d <= 0 {
			return Schedule{}, fmt.Errorf("interval must be > 0")
		}
		return Schedule{Every: d, raw: raw}, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return Schedule{}, fmt.Errorf(
			"invalid schedule %q (use cron like '*/5 * * * *', HH:MM like '00:05', or duration like '60s')", raw)
	}
	if d <= 0 {
		return Schedule{}, fmt.Errorf("interval must be > 0")
	}
	return Schedule{Every: d, raw: raw}, nil
}

// Next returns the time of the run following now.
func (s Schedule) Next(now time.Time) time.Time {
	if s.cron != nil {
		return s.cron.Next(now)
	}
	return now.Add(s.Every)
}

func (s Schedule) String() string { return s.raw }
