// Schedule inspection tool: feed it a schedule description and it prints the
// derived cron expression and the next few run times, which is the quickest
// way to sanity-check timezone and month-clamping behavior without a server.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/adpulse/campaign-watcher/internal/schedule"
	"github.com/adpulse/campaign-watcher/pkg/calendar"
	"github.com/adpulse/campaign-watcher/pkg/types"
)

func main() {
	frequency := flag.String("frequency", "daily", "daily, weekly or monthly")
	clock := flag.String("time", "09:00", "send time, HH:MM 24h")
	dayOfWeek := flag.String("day-of-week", "", "weekly only, e.g. monday")
	dayOfMonth := flag.Int("day-of-month", 0, "monthly only, 1-31")
	timezone := flag.String("timezone", "UTC", "IANA timezone name")
	runs := flag.Int("runs", 5, "number of upcoming runs to print")
	flag.Parse()

	cfg := types.ScheduleConfig{
		Frequency:  types.Frequency(*frequency),
		Time:       *clock,
		DayOfWeek:  *dayOfWeek,
		DayOfMonth: *dayOfMonth,
		Timezone:   *timezone,
	}

	if err := schedule.Validate(cfg); err != nil {
		fmt.Printf("invalid schedule: %v\n", err)
		os.Exit(1)
	}

	cronExpr, err := schedule.ToCron(cfg)
	if err != nil {
		fmt.Printf("cron derivation failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("cron expression: %s\n", cronExpr)

	now := time.Now()
	for i := 0; i < *runs; i++ {
		next, err := schedule.NextRunTime(cfg, now)
		if err != nil {
			fmt.Printf("next run failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("run %d: %s\n", i+1, next.Format("Mon Jan 2 2006 15:04 MST"))
		now = next.Add(time.Minute)
	}

	if next, err := schedule.NextRunTime(cfg, time.Now()); err == nil {
		if url, err := calendar.CreateDeliveryCalendarURL("Schedule Preview", next); err == nil {
			fmt.Printf("calendar: %s\n", url)
		}
	}
}
