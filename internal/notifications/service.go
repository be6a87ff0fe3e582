package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/adpulse/campaign-watcher/pkg/utils"
)

const (
	ChannelEmail = "email"
	ChannelSlack = "slack"
)

// AlertNotification is the payload forwarded when an alert triggers.
type AlertNotification struct {
	AlertName      string
	AlertType      string
	Metric         string
	ActualValue    float64
	ThresholdValue float64
	Message        string
	Estimated      bool
	TriggeredAt    time.Time
	Recipients     []string
	Channels       []string
}

// Service fans alert notifications out to the configured channels. A channel
// failure is reported back but must never undo the trigger itself; the
// caller records history first and treats these errors as delivery problems.
type Service struct {
	mailer Mailer
	slack  *SlackService
	logger *logrus.Logger
}

func NewService(mailer Mailer, slack *SlackService, logger *logrus.Logger) *Service {
	return &Service{mailer: mailer, slack: slack, logger: logger}
}

// NotifyAlert sends the notification on every configured channel with
// non-empty recipients. It returns one error per failed channel.
func (s *Service) NotifyAlert(ctx context.Context, n AlertNotification) map[string]error {
	errs := make(map[string]error)

	for _, channel := range n.Channels {
		switch channel {
		case ChannelEmail:
			if len(n.Recipients) == 0 {
				continue
			}
			if s.mailer == nil {
				errs[channel] = fmt.Errorf("mailer not configured")
				continue
			}
			if _, err := s.mailer.Send(ctx, s.formatAlertMail(n)); err != nil {
				errs[channel] = err
			}
		case ChannelSlack:
			if s.slack == nil {
				errs[channel] = fmt.Errorf("slack not configured")
				continue
			}
			if err := s.slack.SendSlackMessage(s.formatAlertSlack(n)); err != nil {
				errs[channel] = err
			}
		default:
			s.logger.Warnf("Unknown notification channel %q, skipping", channel)
		}
	}

	return errs
}

func (s *Service) formatAlertMail(n AlertNotification) Message {
	subject := fmt.Sprintf("Alert: %s", n.AlertName)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", n.Message)
	fmt.Fprintf(&b, "Metric: %s\n", HumanizeMetric(n.Metric))
	fmt.Fprintf(&b, "Current Value: %.2f\n", n.ActualValue)
	fmt.Fprintf(&b, "Threshold: %.2f\n", n.ThresholdValue)
	if n.Estimated {
		fmt.Fprintf(&b, "Note: the comparison value is estimated, no historical data was available.\n")
	}
	fmt.Fprintf(&b, "Triggered: %s (%s ago)\n",
		n.TriggeredAt.Format(time.RFC1123),
		utils.FormatDuration(time.Since(n.TriggeredAt)))

	return Message{
		To:      n.Recipients,
		Subject: subject,
		Body:    b.String(),
	}
}

func (s *Service) formatAlertSlack(n AlertNotification) *SlackMessage {
	color := "#ffcc00"
	if n.AlertType == "data_freshness" {
		color = "#ff0000"
	}

	fields := []Field{
		{Title: "Metric", Value: HumanizeMetric(n.Metric), Short: true},
		{Title: "Current Value", Value: fmt.Sprintf("%.2f", n.ActualValue), Short: true},
		{Title: "Threshold", Value: fmt.Sprintf("%.2f", n.ThresholdValue), Short: true},
		{Title: "Type", Value: n.AlertType, Short: true},
	}
	if n.Estimated {
		fields = append(fields, Field{Title: "Data Quality", Value: "comparison value estimated", Short: false})
	}

	return &SlackMessage{
		Text: fmt.Sprintf("🚨 Alert Triggered: %s", n.AlertName),
		Attachments: []Attachment{
			{
				Color:  color,
				Text:   n.Message,
				Fields: fields,
				Footer: "campaign-watcher alerts",
				Ts:     n.TriggeredAt.Unix(),
			},
		},
	}
}

// HumanizeMetric turns a canonical metric name into a label fit for mail
// subjects and slack fields: "conversion_rate" -> "Conversion Rate".
func HumanizeMetric(metric string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(metric, "_", " "))
}
