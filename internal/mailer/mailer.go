// Package mailer delivers rendered messages to a configured SMTP
// smarthost.
package mailer

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-msgauth/dkim"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"

	"github.com/foxzi/maillist/internal/config"
	"github.com/foxzi/maillist/internal/errs"
)

// Mailer submits messages over SMTP, optionally authenticating with
// SASL PLAIN and signing with DKIM.
type Mailer struct {
	cfg     config.MailerConfig
	logger  *slog.Logger
	dkimKey *rsa.PrivateKey
}

func New(cfg config.MailerConfig, logger *slog.Logger) (*Mailer, error) {
	m := &Mailer{
		cfg:    cfg,
		logger: logger.With("component", "mailer"),
	}

	if cfg.DKIM.KeyFile != "" {
		key, err := loadPrivateKey(cfg.DKIM.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load DKIM key: %w", err)
		}
		m.dkimKey = key
	}

	return m, nil
}

// Send delivers one HTML message to a single recipient. Failures are
// returned as TransportError; there is no retry here.
func (m *Mailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := m.buildMessage(to, subject, htmlBody)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))

	var c *smtp.Client
	if m.cfg.StartTLS {
		c, err = smtp.DialStartTLS(addr, &tls.Config{ServerName: m.cfg.Host})
	} else {
		c, err = smtp.Dial(addr)
	}
	if err != nil {
		return &errs.TransportError{Err: fmt.Errorf("failed to connect to %s: %w", addr, err)}
	}
	defer c.Close()

	if m.cfg.Username != "" {
		auth := sasl.NewPlainClient("", m.cfg.Username, m.cfg.Password)
		if err := c.Auth(auth); err != nil {
			return &errs.TransportError{Err: fmt.Errorf("authentication failed: %w", err)}
		}
	}

	if err := c.SendMail(m.cfg.From, []string{to}, bytes.NewReader(msg)); err != nil {
		return &errs.TransportError{Err: err}
	}

	if err := c.Quit(); err != nil {
		// Delivery already succeeded
		m.logger.Debug("smtp quit failed", "error", err)
	}

	m.logger.Debug("message delivered", "to", to)
	return nil
}

// buildMessage constructs the RFC 5322 message
func (m *Mailer) buildMessage(to, subject, htmlBody string) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("From: %s\r\n", m.cfg.From))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", to))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	buf.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))
	buf.WriteString(fmt.Sprintf("Message-ID: <%s@%s>\r\n", uuid.New().String(), extractDomain(m.cfg.From, m.cfg.Host)))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(htmlBody)
	buf.WriteString("\r\n")

	if m.dkimKey == nil {
		return buf.Bytes(), nil
	}
	return m.sign(buf.Bytes())
}

func (m *Mailer) sign(msg []byte) ([]byte, error) {
	options := &dkim.SignOptions{
		Domain:                 m.cfg.DKIM.Domain,
		Selector:               m.cfg.DKIM.Selector,
		Signer:                 m.dkimKey,
		Hash:                   crypto.SHA256,
		HeaderCanonicalization: dkim.CanonicalizationRelaxed,
		BodyCanonicalization:   dkim.CanonicalizationRelaxed,
	}

	var signed bytes.Buffer
	if err := dkim.Sign(&signed, bytes.NewReader(msg), options); err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	return signed.Bytes(), nil
}

// extractDomain returns the domain part of an email address, falling
// back to the given default for malformed addresses.
func extractDomain(email, fallback string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return fallback
	}
	return strings.ToLower(email[at+1:])
}
