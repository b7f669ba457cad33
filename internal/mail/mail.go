// Package mail delivers report and invitation emails through Resend, SMTP or
// the log.
package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"sync"

	"github.com/resend/resend-go/v2"
	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/cloudhire/internal/report"
)

// Message is one outgoing HTML email.
type Message struct {
	To      []string
	Subject string
	HTML    string
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// ErrNoRecipients is returned when a report has nobody to go to.
var ErrNoRecipients = errors.New("no report recipients configured")

// ResendSender sends through the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
}

// NewResendSender creates a sender for the given API key and From address.
func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{client: resend.NewClient(apiKey), from: from}
}

// Send implements Sender.
func (s *ResendSender) Send(ctx context.Context, m Message) error {
	_, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      m.To,
		Subject: m.Subject,
		Html:    m.HTML,
	})
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	return nil
}

// SMTPConfig configures SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// SMTPSender sends through an SMTP relay with PLAIN auth.
type SMTPSender struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender creates an SMTP sender.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.Port == "" {
		cfg.Port = "587"
	}
	return &SMTPSender{cfg: cfg, send: smtp.SendMail}
}

// Send implements Sender. net/smtp has no context support; ctx is only
// checked before dialing.
func (s *SMTPSender) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	msg := fmt.Appendf(nil, "From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"MIME-Version: 1.0\r\n"+
		"Content-Type: text/html; charset=UTF-8\r\n"+
		"\r\n"+
		"%s\r\n", s.cfg.From, strings.Join(m.To, ","), headerSafe(m.Subject), m.HTML)
	if err := s.send(s.cfg.Host+":"+s.cfg.Port, auth, s.cfg.From, m.To, msg); err != nil {
		return fmt.Errorf("smtp: %w", err)
	}
	return nil
}

func headerSafe(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// LogSender only logs messages. It is used when no mail provider is configured.
type LogSender struct{}

// Send implements Sender.
func (LogSender) Send(_ context.Context, m Message) error {
	slog.Info("email not sent (no mail provider configured)", "to", m.To, "subject", m.Subject, "bytes", len(m.HTML))
	return nil
}

// RecipientSource lists hiring-manager addresses, typically the admin users.
type RecipientSource interface {
	ListAdminEmails() ([]string, error)
}

// Dispatcher routes reports and invitations to a Sender.
type Dispatcher struct {
	sender     Sender
	recipients []string
	source     RecipientSource
}

// NewDispatcher creates a Dispatcher. Reports go to every static recipient
// plus every address the source returns; source may be nil.
func NewDispatcher(sender Sender, recipients []string, source RecipientSource) *Dispatcher {
	return &Dispatcher{sender: sender, recipients: recipients, source: source}
}

// Configured reports whether mail actually leaves the process.
func (d *Dispatcher) Configured() bool {
	_, isLog := d.sender.(LogSender)
	return d.sender != nil && !isLog
}

// Recipients returns the de-duplicated report recipients.
func (d *Dispatcher) Recipients() ([]string, error) {
	all := append([]string(nil), d.recipients...)
	if d.source != nil {
		extra, err := d.source.ListAdminEmails()
		if err != nil {
			return nil, fmt.Errorf("list admin emails: %w", err)
		}
		all = append(all, extra...)
	}
	seen := map[string]bool{}
	out := make([]string, 0, len(all))
	for _, r := range all {
		r = strings.ToLower(strings.TrimSpace(r))
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out, nil
}

// SendReport emails the rendered report to each recipient separately. Every
// recipient is attempted; the returned error joins all failures.
func (d *Dispatcher) SendReport(ctx context.Context, subject, html string) error {
	to, err := d.Recipients()
	if err != nil {
		return err
	}
	if len(to) == 0 {
		return ErrNoRecipients
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, addr := range to {
		g.Go(func() error {
			if err := d.sender.Send(ctx, Message{To: []string{addr}, Subject: subject, HTML: html}); err != nil {
				slog.Warn("report email failed", "to", addr, "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", addr, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// SendInvite emails a magic sign-in link to a candidate.
func (d *Dispatcher) SendInvite(ctx context.Context, email, link string) error {
	html, err := report.RenderString(ctx, report.Invite(link))
	if err != nil {
		return fmt.Errorf("render invite: %w", err)
	}
	return d.sender.Send(ctx, Message{
		To:      []string{email},
		Subject: "Your CloudHire technical assessment",
		HTML:    html,
	})
}
