// Package schedule translates the human schedule description stored on a
// report into its derived forms: a 5-field cron expression for the trigger
// mechanism and a concrete next-run instant for the due-job sweep. Both
// functions are pure and safe to call from any layer.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adpulse/campaign-watcher/pkg/types"
)

var weekdays = map[string]int{
	"sunday":    0,
	"monday":    1,
	"tuesday":   2,
	"wednesday": 3,
	"thursday":  4,
	"friday":    5,
	"saturday":  6,
}

// Validate rejects a schedule config with a human-readable reason. It is the
// validation gate for both report scheduling and job upserts; validation
// failures are never retried.
func Validate(cfg types.ScheduleConfig) error {
	if _, _, err := parseClock(cfg.Time); err != nil {
		return err
	}

	switch cfg.Frequency {
	case types.FrequencyDaily:
	case types.FrequencyWeekly:
		if _, ok := weekdays[strings.ToLower(cfg.DayOfWeek)]; !ok {
			return fmt.Errorf("invalid day of week: %q", cfg.DayOfWeek)
		}
	case types.FrequencyMonthly:
		if cfg.DayOfMonth < 1 || cfg.DayOfMonth > 31 {
			return fmt.Errorf("invalid day of month: %d", cfg.DayOfMonth)
		}
	default:
		return fmt.Errorf("invalid frequency: %q", cfg.Frequency)
	}

	if cfg.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
		}
	}

	return nil
}

// ToCron derives the 5-field cron expression for a schedule config.
//
//	daily   09:30        -> "30 9 * * *"
//	weekly  friday 09:00 -> "0 9 * * 5"
//	monthly 15th   09:00 -> "0 9 15 * *"
func ToCron(cfg types.ScheduleConfig) (string, error) {
	if err := Validate(cfg); err != nil {
		return "", err
	}

	hour, minute, _ := parseClock(cfg.Time)

	switch cfg.Frequency {
	case types.FrequencyDaily:
		return fmt.Sprintf("%d %d * * *", minute, hour), nil
	case types.FrequencyWeekly:
		return fmt.Sprintf("%d %d * * %d", minute, hour, weekdays[strings.ToLower(cfg.DayOfWeek)]), nil
	case types.FrequencyMonthly:
		return fmt.Sprintf("%d %d %d * *", minute, hour, cfg.DayOfMonth), nil
	}

	return "", fmt.Errorf("invalid frequency: %q", cfg.Frequency)
}

// NextRunTime computes the first instant strictly after now that the
// schedule fires, resolved in the config's timezone. A monthly day that a
// month doesn't have clamps to the month's last day.
func NextRunTime(cfg types.ScheduleConfig, now time.Time) (time.Time, error) {
	if err := Validate(cfg); err != nil {
		return time.Time{}, err
	}

	loc := time.UTC
	if cfg.Timezone != "" {
		loc, _ = time.LoadLocation(cfg.Timezone)
	}

	hour, minute, _ := parseClock(cfg.Time)
	local := now.In(loc)

	switch cfg.Frequency {
	case types.FrequencyDaily:
		next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
		if !next.After(local) {
			next = next.AddDate(0, 0, 1)
		}
		return next, nil

	case types.FrequencyWeekly:
		target := weekdays[strings.ToLower(cfg.DayOfWeek)]
		next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
		ahead := (target - int(local.Weekday()) + 7) % 7
		next = next.AddDate(0, 0, ahead)
		if !next.After(local) {
			next = next.AddDate(0, 0, 7)
		}
		return next, nil

	case types.FrequencyMonthly:
		next := monthlyOccurrence(local.Year(), local.Month(), cfg.DayOfMonth, hour, minute, loc)
		if !next.After(local) {
			year, month := local.Year(), local.Month()+1
			next = monthlyOccurrence(year, month, cfg.DayOfMonth, hour, minute, loc)
		}
		return next, nil
	}

	return time.Time{}, fmt.Errorf("invalid frequency: %q", cfg.Frequency)
}

func monthlyOccurrence(year int, month time.Month, day, hour, minute int, loc *time.Location) time.Time {
	// normalize month overflow first so clamping uses the right month length
	base := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	if last := daysInMonth(base.Year(), base.Month()); day > last {
		day = last
	}
	return time.Date(base.Year(), base.Month(), day, hour, minute, 0, 0, loc)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func parseClock(clock string) (hour, minute int, err error) {
	parts := strings.Split(clock, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, want HH:MM", clock)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", clock)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", clock)
	}
	return hour, minute, nil
}
