// Package mail sends private annotator invitations.
//
// SMTPMailer delivers over SMTP, upgrading to TLS when the server offers
// STARTTLS. LogMailer writes the rendered message to the mail log category
// and is used when no SMTP server is configured.
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"text/template"

	"annopedia/internal/config"
	"annopedia/internal/logging"
)

// Invitation is everything needed to invite a private annotator.
type Invitation struct {
	To          string
	Username    string
	Inviter     string
	Project     string
	Token       string
	FrontendURL string
}

// Link is the annotation URL carrying the annotator token.
func (i Invitation) Link() string {
	return strings.TrimRight(i.FrontendURL, "/") + "/annotator/annotate?token=" + i.Token
}

// Message is a rendered plain-text e-mail.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

var bodyTemplate = template.Must(template.New("invitation").Parse(`Hi {{.Username}}!

You have been invited by {{.Inviter}} to contribute to the project {{.Project}}!
Please click the link to annotate: {{.Link}}

Good luck!

Best regards,
Annopedia Team
`))

// Render builds the invitation message.
func Render(from string, inv Invitation) (Message, error) {
	var body bytes.Buffer
	if err := bodyTemplate.Execute(&body, inv); err != nil {
		return Message{}, fmt.Errorf("failed to render invitation: %w", err)
	}
	return Message{
		From:    from,
		To:      inv.To,
		Subject: "[Annopedia] Invitation to contribute to " + inv.Project,
		Body:    body.String(),
	}, nil
}

// New returns the mailer selected by cfg.
func New(cfg config.MailConfig) Mailer {
	if cfg.Enabled && cfg.Host != "" {
		return &SMTPMailer{cfg: cfg}
	}
	return LogMailer{}
}

// SendInvitation renders and sends an invitation.
func SendInvitation(ctx context.Context, m Mailer, cfg config.MailConfig, inv Invitation) error {
	if inv.FrontendURL == "" {
		inv.FrontendURL = cfg.FrontendURL
	}
	msg, err := Render(cfg.From, inv)
	if err != nil {
		return err
	}
	if err := m.Send(ctx, msg); err != nil {
		logging.MailError("Invitation to %s for project %s failed: %v", inv.To, inv.Project, err)
		return err
	}
	logging.Mail("Invitation sent to %s for project %s", inv.To, inv.Project)
	return nil
}

// =============================================================================
// SMTP
// =============================================================================

// SMTPMailer delivers messages through an SMTP relay.
type SMTPMailer struct {
	cfg config.MailConfig
}

// NewSMTPMailer creates a mailer for the relay in cfg.
func NewSMTPMailer(cfg config.MailConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// Send delivers msg. The context bounds dialing and the whole SMTP exchange.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to dial smtp server %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to start smtp session: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
			return fmt.Errorf("starttls failed: %w", err)
		}
	}
	if m.cfg.Username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)); err != nil {
				return fmt.Errorf("smtp auth failed: %w", err)
			}
		}
	}

	if err := c.Mail(msg.From); err != nil {
		return fmt.Errorf("smtp MAIL FROM failed: %w", err)
	}
	if err := c.Rcpt(msg.To); err != nil {
		return fmt.Errorf("smtp RCPT TO failed: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA failed: %w", err)
	}
	if _, err := w.Write(encode(msg)); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}
	return c.Quit()
}

// encode renders msg with headers and CRLF line endings.
func encode(msg Message) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", msg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return b.Bytes()
}

// =============================================================================
// LOG
// =============================================================================

// LogMailer writes messages to the mail log instead of sending them.
type LogMailer struct{}

// Send logs msg.
func (LogMailer) Send(_ context.Context, msg Message) error {
	logging.Get(logging.CategoryMail).StructuredLog("info", "mail not sent (no smtp server configured)", map[string]interface{}{
		"to":      msg.To,
		"subject": msg.Subject,
		"body":    msg.Body,
	})
	return nil
}
