// Package calendar builds Google Calendar "add event" links for scheduled
// report deliveries, so recipients can pin the next send to their calendar.
package calendar

import (
	"fmt"
	"net/url"
	"time"
)

const maxTitleLength = 1024

type CalendarService struct{}

func NewCalendarService() *CalendarService {
	return &CalendarService{}
}

func (s *CalendarService) CreateEventURL(title, description string, startTime, endTime time.Time, location string) (string, error) {
	if title == "" {
		return "", fmt.Errorf("title cannot be empty")
	}

	if len(title) > maxTitleLength {
		return "", fmt.Errorf("title exceeds %d characters", maxTitleLength)
	}

	if endTime.Before(startTime) {
		return "", fmt.Errorf("end time cannot be before start time")
	}

	if startTime.Equal(endTime) {
		return "", fmt.Errorf("start time and end time cannot be the same")
	}

	start := startTime.UTC().Format("20060102T150405Z")
	end := endTime.UTC().Format("20060102T150405Z")

	u := url.URL{
		Scheme: "https",
		Host:   "calendar.google.com",
		Path:   "calendar/render",
	}

	params := url.Values{}
	params.Add("action", "TEMPLATE")
	params.Add("text", title)
	params.Add("details", description)
	params.Add("dates", fmt.Sprintf("%s/%s", start, end))
	params.Add("location", location)

	u.RawQuery = params.Encode()

	return u.String(), nil
}

// CreateDeliveryEvent builds the event link for a report's next scheduled
// delivery. The event is a 30 minute window starting at the send time.
func (s *CalendarService) CreateDeliveryEvent(reportTitle string, nextRun time.Time) (string, error) {
	if reportTitle == "" {
		return "", fmt.Errorf("report title cannot be empty")
	}

	if nextRun.Before(time.Now()) {
		return "", fmt.Errorf("delivery time cannot be in the past")
	}

	title := fmt.Sprintf("Report Delivery: %s", reportTitle)
	description := fmt.Sprintf("Scheduled delivery of %q lands in your inbox around this time.", reportTitle)

	return s.CreateEventURL(title, description, nextRun, nextRun.Add(30*time.Minute), "")
}

func CreateDeliveryCalendarURL(reportTitle string, nextRun time.Time) (string, error) {
	service := NewCalendarService()
	return service.CreateDeliveryEvent(reportTitle, nextRun)
}
