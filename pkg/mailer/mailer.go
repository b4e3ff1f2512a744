package mailer

import (
	"sync"

	"gopkg.in/gomail.v2"
)

// Sender delivers plain-text mail.
type Sender interface {
	Send(to, subject, body string) error
}

// SMTPSender sends through an SMTP relay.
type SMTPSender struct {
	from   string
	dialer *gomail.Dialer
}

func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	return &SMTPSender{
		from:   from,
		dialer: gomail.NewDialer(host, port, username, password),
	}
}

func (s *SMTPSender) Send(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)
	return s.dialer.DialAndSend(m)
}

// Mail is one message captured by Recorder.
type Mail struct {
	To      string
	Subject string
	Body    string
}

// Recorder keeps mail in memory. It stands in for SMTP when no host is configured.
type Recorder struct {
	mu   sync.Mutex
	sent []Mail
}

func (r *Recorder) Send(to, subject, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Mail{To: to, Subject: subject, Body: body})
	return nil
}

func (r *Recorder) Sent() []Mail {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Mail(nil), r.sent...)
}
