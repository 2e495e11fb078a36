// Package mailer sends the transactional e-mails: payment receipts, password
// reset codes and e-mail verification links.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"econfere-api/internal/domain/billing"
	"econfere-api/internal/domain/users"
)

var ErrNotConfigured = errors.New("smtp is not configured")

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string

	// PublicURL is where /auth/verify is served.
	PublicURL string
}

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Mailer struct {
	cfg  Config
	send SendFunc
	now  func() time.Time
}

type Option func(*Mailer)

func WithSendFunc(fn SendFunc) Option { return func(m *Mailer) { m.send = fn } }

func New(cfg Config, opts ...Option) *Mailer {
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	m := &Mailer{cfg: cfg, send: smtp.SendMail, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Mailer) Enabled() bool {
	return m.cfg.Host != "" && m.cfg.From != ""
}

type receiptData struct {
	Name      string
	PaymentID string
	Date      string
	Method    string
	Amount    string
	Year      int
}

// SendReceipt mails the payment receipt to the paying user.
func (m *Mailer) SendReceipt(ctx context.Context, p billing.Payment, u users.User) error {
	return m.render(ctx, u.Email, "Recibo de Pagamento - E-Confere", receiptTmpl, receiptData{
		Name:      u.Name,
		PaymentID: p.ID,
		Date:      p.CreatedAt.Format("02/01/2006"),
		Method:    p.PaymentMethod,
		Amount:    fmt.Sprintf("R$ %.2f", p.Amount),
		Year:      m.now().Year(),
	})
}

type resetData struct {
	Name string
	Code string
	Year int
}

func (m *Mailer) SendPasswordReset(ctx context.Context, u users.User, code string) error {
	return m.render(ctx, u.Email, "Recuperação de Senha - E-Confere", resetTmpl, resetData{
		Name: u.Name,
		Code: code,
		Year: m.now().Year(),
	})
}

type verifyData struct {
	Name string
	Link string
	Year int
}

func (m *Mailer) SendVerification(ctx context.Context, u users.User, token string) error {
	link := strings.TrimRight(m.cfg.PublicURL, "/") + "/auth/verify?token=" + token
	return m.render(ctx, u.Email, "Confirme seu e-mail - E-Confere", verifyTmpl, verifyData{
		Name: u.Name,
		Link: link,
		Year: m.now().Year(),
	})
}

func (m *Mailer) render(ctx context.Context, to, subject string, tmpl *template.Template, data any) error {
	if !m.Enabled() {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}

	msg := []byte("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n" +
		"From: " + m.cfg.From + "\r\n" +
		"To: " + to + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/html; charset=UTF-8\r\n" +
		"\r\n" +
		body.String() + "\r\n")

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	port := m.cfg.Port
	if port == "" {
		port = "587"
	}
	if err := m.send(m.cfg.Host+":"+port, auth, m.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("send %s: %w", tmpl.Name(), err)
	}
	return nil
}
