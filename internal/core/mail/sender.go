package mail

import (
	"crypto/tls"
	"fmt"
	"regexp"

	gomail "github.com/go-mail/mail"
	"go.uber.org/zap"
)

type Sender interface {
	Send(to, subject, htmlBody, textBody string) error
}

type SMTPSender struct {
	Host               string
	Port               int
	From               string
	User               string
	Pass               string
	TLSMode            string // "auto" | "starttls" | "ssl" | "none"
	InsecureSkipVerify bool

	Log *zap.Logger
}

func NewSMTPSender(host string, port int, from, user, pass string, l *zap.Logger) *SMTPSender {
	return &SMTPSender{
		Host:    host,
		Port:    port,
		From:    from,
		User:    user,
		Pass:    pass,
		TLSMode: "auto",
		Log:     l,
	}
}

func (s *SMTPSender) message(to, subject, htmlBody, textBody string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	// multipart/alternative: text 在前，html 在后
	if textBody != "" {
		m.SetBody("text/plain", textBody)
	}
	if htmlBody != "" {
		if textBody == "" {
			m.SetBody("text/html", htmlBody)
		} else {
			m.AddAlternative("text/html", htmlBody)
		}
	}
	return m
}

func (s *SMTPSender) dialer() *gomail.Dialer {
	d := gomail.NewDialer(s.Host, s.Port, s.User, s.Pass)
	d.TLSConfig = &tls.Config{ServerName: s.Host, InsecureSkipVerify: s.InsecureSkipVerify}
	switch s.TLSMode {
	case "ssl":
		d.SSL = true
	case "none":
		d.StartTLSPolicy = gomail.NoStartTLS
	case "starttls":
		d.StartTLSPolicy = gomail.MandatoryStartTLS
	}
	return d
}

func (s *SMTPSender) Send(to, subject, htmlBody, textBody string) error {
	l := s.Log.With(zap.String("to", to), zap.String("subject", subject))
	if err := s.dialer().DialAndSend(s.message(to, subject, htmlBody, textBody)); err != nil {
		l.Error("smtp send failed", zap.Error(err))
		return fmt.Errorf("smtp send: %w", err)
	}
	l.Info("smtp send ok")
	return nil
}

// LogSender writes messages to the log instead of sending them. Token
// query values in the body are masked.
type LogSender struct{ Log *zap.Logger }

var tokenParam = regexp.MustCompile(`(token=)[^&\s"'<>]+`)

func maskTokens(s string) string { return tokenParam.ReplaceAllString(s, "${1}***") }

func (s LogSender) Send(to, subject, _, textBody string) error {
	s.Log.Info("mail (not sent, smtp disabled)",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("body", maskTokens(textBody)),
	)
	return nil
}
