package notifications

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// Message is one outbound mail. Attachment is the rendered report payload;
// it is optional and sent as-is.
type Message struct {
	To             []string
	Subject        string
	Body           string
	HTML           bool
	AttachmentName string
	Attachment     []byte
}

// SendResult reports per-recipient acceptance. The SMTP relay used in
// production rejects individual recipients without failing the whole send.
type SendResult struct {
	MessageID string
	Accepted  []string
	Rejected  []string
}

// Mailer is the outbound mail boundary. The SMTP implementation lives here;
// orchestration code depends on the interface so tests can swap it out.
type Mailer interface {
	Send(ctx context.Context, msg Message) (*SendResult, error)
}

type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Password string
}

type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
	logger *logrus.Logger
}

func NewSMTPMailer(cfg SMTPConfig, logger *logrus.Logger) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.From, cfg.Password),
		from:   cfg.From,
		logger: logger,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) (*SendResult, error) {
	if len(msg.To) == 0 {
		return nil, fmt.Errorf("no recipients")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mail := gomail.NewMessage()
	mail.SetHeader("From", m.from)
	mail.SetHeader("To", msg.To...)
	mail.SetHeader("Subject", msg.Subject)
	if msg.HTML {
		mail.SetBody("text/html", msg.Body)
	} else {
		mail.SetBody("text/plain", msg.Body)
	}

	if len(msg.Attachment) > 0 {
		name := msg.AttachmentName
		if name == "" {
			name = "report.pdf"
		}
		mail.Attach(name, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(msg.Attachment)
			return err
		}))
	}

	if err := m.dialer.DialAndSend(mail); err != nil {
		return nil, fmt.Errorf("smtp send: %w", err)
	}

	m.logger.WithFields(logrus.Fields{
		"recipients": len(msg.To),
		"subject":    msg.Subject,
	}).Info("Mail sent")

	// gomail gives no per-recipient feedback on success; all accepted.
	return &SendResult{Accepted: msg.To}, nil
}
