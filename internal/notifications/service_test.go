package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonDecode(r *http.Request, out interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}

type fakeMailer struct {
	sent []Message
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, msg Message) (*SendResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, msg)
	return &SendResult{Accepted: msg.To}, nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func sampleNotification(channels []string) AlertNotification {
	return AlertNotification{
		AlertName:      "Spend Spike",
		AlertType:      "metric_threshold",
		Metric:         "conversion_rate",
		ActualValue:    12.34,
		ThresholdValue: 10,
		Message:        "conversion_rate is above threshold",
		TriggeredAt:    time.Now(),
		Recipients:     []string{"ops@example.com"},
		Channels:       channels,
	}
}

func TestNotifyAlertEmail(t *testing.T) {
	mailer := &fakeMailer{}
	svc := NewService(mailer, nil, quietLogger())

	errs := svc.NotifyAlert(context.Background(), sampleNotification([]string{ChannelEmail}))
	assert.Empty(t, errs)
	require.Len(t, mailer.sent, 1)

	msg := mailer.sent[0]
	assert.Equal(t, []string{"ops@example.com"}, msg.To)
	assert.Equal(t, "Alert: Spend Spike", msg.Subject)
	assert.Contains(t, msg.Body, "Conversion Rate")
	assert.Contains(t, msg.Body, "12.34")
}

func TestNotifyAlertEmailNoRecipientsSkipped(t *testing.T) {
	mailer := &fakeMailer{}
	svc := NewService(mailer, nil, quietLogger())

	n := sampleNotification([]string{ChannelEmail})
	n.Recipients = nil

	errs := svc.NotifyAlert(context.Background(), n)
	assert.Empty(t, errs)
	assert.Empty(t, mailer.sent)
}

func TestNotifyAlertMailerFailureReported(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("smtp down")}
	svc := NewService(mailer, nil, quietLogger())

	errs := svc.NotifyAlert(context.Background(), sampleNotification([]string{ChannelEmail}))
	require.Contains(t, errs, ChannelEmail)
	assert.EqualError(t, errs[ChannelEmail], "smtp down")
}

func TestNotifyAlertSlack(t *testing.T) {
	var received *SlackMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = &SlackMessage{}
		err := jsonDecode(r, received)
		require.NoError(t, err)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	slack, err := NewSlackService(server.URL, quietLogger())
	require.NoError(t, err)

	svc := NewService(nil, slack, quietLogger())
	errs := svc.NotifyAlert(context.Background(), sampleNotification([]string{ChannelSlack}))
	assert.Empty(t, errs)

	require.NotNil(t, received)
	assert.Contains(t, received.Text, "Spend Spike")
	require.Len(t, received.Attachments, 1)
}

func TestNotifyAlertSlackNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	slack, err := NewSlackService(server.URL, quietLogger())
	require.NoError(t, err)

	svc := NewService(nil, slack, quietLogger())
	errs := svc.NotifyAlert(context.Background(), sampleNotification([]string{ChannelSlack}))
	assert.Contains(t, errs, ChannelSlack)
}

func TestNewSlackServiceRequiresURL(t *testing.T) {
	_, err := NewSlackService("", quietLogger())
	assert.Error(t, err)
}

func TestHumanizeMetric(t *testing.T) {
	assert.Equal(t, "Conversion Rate", HumanizeMetric("conversion_rate"))
	assert.Equal(t, "Roas", HumanizeMetric("roas"))
	assert.Equal(t, "Spend", HumanizeMetric("spend"))
}
