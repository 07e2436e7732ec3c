package mail

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/mailgoatai/mailgoat-sub001/internal/models"
)

// SMTPSender delivers directly over SMTP. It performs a single attempt per
// job; the dispatcher treats its failures like any other transport failure.
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (s *SMTPSender) Send(ctx context.Context, job models.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	from := job.From
	if from == "" {
		from = s.From
	}

	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", job.To...)
	if len(job.Cc) > 0 {
		m.SetHeader("Cc", job.Cc...)
	}
	if len(job.Bcc) > 0 {
		m.SetHeader("Bcc", job.Bcc...)
	}
	m.SetHeader("Subject", job.Subject)
	if job.Tag != "" {
		m.SetHeader("X-MailGoat-Tag", job.Tag)
	}

	switch {
	case job.Body != "" && job.HTML != "":
		m.SetBody("text/plain", job.Body)
		m.AddAlternative("text/html", job.HTML)
	case job.HTML != "":
		m.SetBody("text/html", job.HTML)
	default:
		m.SetBody("text/plain", job.Body)
	}

	d := gomail.NewDialer(s.Host, s.Port, s.Username, s.Password)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send error: %w", err)
	}
	return nil
}
