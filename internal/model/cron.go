package model

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Plan is a resolved update schedule. Cron is empty for plain intervals,
// otherwise Interval is the distance between the next two cron firings.
type Plan struct {
	Interval time.Duration
	Cron     string
}

// Plan resolves schedule.cron, schedule.duration and interval_hours, in this order.
func (s Supervisor) Plan() (Plan, error) {
	if s.Schedule != nil && s.Schedule.Cron != "" {
		interval, err := ParseCron(s.Schedule.Cron)
		if err != nil {
			return Plan{}, fmt.Errorf("parsing supervisor.schedule.cron: %w", err)
		}
		return Plan{Interval: interval, Cron: strings.TrimSpace(s.Schedule.Cron)}, nil
	}
	if s.Schedule != nil && s.Schedule.Duration != "" {
		d, err := ParseISODuration(s.Schedule.Duration)
		if err != nil {
			return Plan{}, fmt.Errorf("parsing supervisor.schedule.duration: %w", err)
		}
		if d <= 0 {
			return Plan{}, fmt.Errorf("supervisor.schedule.duration: %w", ErrNonPositive)
		}
		return Plan{Interval: d}, nil
	}
	hours := s.IntervalHours
	if hours == 0 {
		hours = DefaultIntervalHours
	}
	if hours < 0 {
		return Plan{}, fmt.Errorf("supervisor.interval_hours: %w", ErrNonPositive)
	}
	if int64(hours) > MaxIntervalHours {
		return Plan{}, fmt.Errorf("supervisor.interval_hours: %w", ErrOverflow)
	}
	return Plan{Interval: time.Duration(hours) * time.Hour}, nil
}

// ParseCron parses a cron expression that have 5 fields or a @macro
// and returns the interval between its next two firings
func ParseCron(expr string) (time.Duration, error) {
	e := strings.TrimSpace(expr)
	if e == "" {
		return 0, fmt.Errorf("empty cron expression")
	}

	var schedule cron.Schedule
	var err error
	if strings.HasPrefix(e, "@") {
		schedule, err = cron.ParseStandard(e)
	} else {
		parser5 := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		schedule, err = parser5.Parse(e)
	}
	if err != nil {
		return 0, err
	}
	next1 := schedule.Next(time.Now())
	next2 := schedule.Next(next1)
	return next2.Sub(next1), nil
}

var isoDurationRx = regexp.MustCompile(`^P((?P<day>\d+)D)?(T?(?:(?P<hour>[+-]?\d+)H)?(?:(?P<minute>[+-]?\d+)M)?(?:(?P<second>[+-]?\d+(?:[.,]\d+)?)S)?)?$`)

// ParseISODuration understands the day and time parts of ISO-8601 durations
// (PnDTnHnMnS). Months and years are ambiguous and rejected.
func ParseISODuration(dur string) (time.Duration, error) {
	if dur == "" || dur == "P" || dur == "PT" || !isoDurationRx.MatchString(dur) {
		return 0, ErrISOFormat
	}
	match := isoDurationRx.FindStringSubmatch(dur)

	// P2M is a month without the T designator
	hasT := strings.Contains(dur, "T")
	var hasHMS bool

	var ret time.Duration
	for i, name := range isoDurationRx.SubexpNames() {
		part := match[i]
		if i == 0 || name == "" || part == "" {
			continue
		}

		num, frac, err := splitNumber(part)
		if err != nil {
			return 0, err
		}
		var unit time.Duration
		switch name {
		case "day":
			unit = 24 * time.Hour
		case "hour":
			hasHMS = true
			hasT = true
			unit = time.Hour
		case "minute":
			hasHMS = true
			if !hasT {
				return 0, ErrISOFormat
			}
			unit = time.Minute
		case "second":
			hasHMS = true
			unit = time.Second
		default:
			return 0, fmt.Errorf("unknown component %s", name)
		}
		if int64(num) > math.MaxInt64/int64(unit) || int64(num) < math.MinInt64/int64(unit) {
			return 0, ErrOverflow
		}
		add := time.Duration(num) * unit
		if num >= 0 {
			add += time.Duration(frac * float64(unit))
		} else {
			add -= time.Duration(frac * float64(unit))
		}
		if (add > 0 && ret > math.MaxInt64-add) || (add < 0 && ret < math.MinInt64-add) {
			return 0, ErrOverflow
		}
		ret += add
	}

	// P2DT
	if hasT && !hasHMS {
		return 0, ErrISOFormat
	}

	return ret, nil
}

func splitNumber(s string) (num int, frac float64, err error) {
	s = strings.Replace(s, ",", ".", 1)
	whole, fraction, ok := strings.Cut(s, ".")
	if ok {
		if len(fraction) > 9 {
			return 0, 0, ErrISOFormat
		}
		f, ferr := strconv.Atoi(fraction)
		if ferr != nil {
			return 0, 0, fmt.Errorf("parsing fraction: %w", ferr)
		}
		if f != 0 {
			frac = float64(f) / math.Pow10(len(fraction))
		}
	}
	num, err = strconv.Atoi(whole)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing number: %w", err)
	}
	return num, frac, nil
}
