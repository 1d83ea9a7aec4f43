// Package mail composes the account emails and hands them to a transport.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"time"
)

// Message is a rendered email ready for a transport.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Transport delivers a rendered message.
type Transport interface {
	Send(ctx context.Context, m Message) error
}

// Dispatcher renders the verification, OTP and password reset emails.
type Dispatcher struct {
	transport Transport
	clientURL string
	ttls      TTLs
}

// TTLs are the lifetimes quoted in each email.
type TTLs struct {
	Verification time.Duration
	OTP          time.Duration
	Reset        time.Duration
}

func NewDispatcher(t Transport, clientURL string, ttls TTLs) *Dispatcher {
	return &Dispatcher{transport: t, clientURL: clientURL, ttls: ttls}
}

var (
	verifyTpl = template.Must(template.New("verify").Parse(layout(`
    <h2 style="color: #2E86C1;">Verify your email</h2>
    <p>Hello {{.Name}},</p>
    <p>Please confirm your email address by following the link below. The link expires in {{.Minutes}} minutes.</p>
    <p><a href="{{.Link}}">Verify email</a></p>`)))

	otpTpl = template.Must(template.New("otp").Parse(layout(`
    <h2 style="color: #2E86C1;">Your verification code</h2>
    <p>Hello {{.Name}},</p>
    <p>Your one-time code is <strong style="font-size: 20px; letter-spacing: 4px;">{{.Code}}</strong></p>
    <p>It expires in {{.Minutes}} minutes. If you did not ask for it, you can ignore this email.</p>`)))

	resetTpl = template.Must(template.New("reset").Parse(layout(`
    <h2 style="color: #2E86C1;">Reset your password</h2>
    <p>Hello {{.Name}},</p>
    <p>We received a request to reset your password. The link expires in {{.Minutes}} minutes.</p>
    <p><a href="{{.Link}}">Reset password</a></p>
    <p>If you did not ask for a reset, no action is needed.</p>`)))
)

func layout(body string) string {
	return `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; background-color: #f9f9f9; padding: 20px;">
  <div style="max-width: 600px; margin: auto; background: #fff; padding: 20px; border-radius: 8px;">` + body + `
  </div>
</body>
</html>`
}

type mailData struct {
	Name    string
	Link    string
	Code    string
	Minutes int
}

func (d *Dispatcher) SendVerificationLink(ctx context.Context, to, name, token string) error {
	link := d.clientURL + "/api/auth/verify-email?token=" + url.QueryEscape(token)
	minutes := wholeMinutes(d.ttls.Verification)
	text := fmt.Sprintf("Verify your email: %s (expires in %d minutes)", link, minutes)
	return d.send(ctx, to, "Verify your email", text, verifyTpl, mailData{Name: name, Link: link, Minutes: minutes})
}

func (d *Dispatcher) SendOTP(ctx context.Context, to, name, code string) error {
	minutes := wholeMinutes(d.ttls.OTP)
	text := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, minutes)
	return d.send(ctx, to, "Your verification code", text, otpTpl, mailData{Name: name, Code: code, Minutes: minutes})
}

func (d *Dispatcher) SendPasswordReset(ctx context.Context, to, name, token string) error {
	link := d.clientURL + "/reset-password?token=" + url.QueryEscape(token)
	minutes := wholeMinutes(d.ttls.Reset)
	text := fmt.Sprintf("Reset your password: %s (expires in %d minutes)", link, minutes)
	return d.send(ctx, to, "Reset your password", text, resetTpl, mailData{Name: name, Link: link, Minutes: minutes})
}

func wholeMinutes(d time.Duration) int { return int(d / time.Minute) }

func (d *Dispatcher) send(ctx context.Context, to, subject, text string, tpl *template.Template, data mailData) error {
	var body bytes.Buffer
	if err := tpl.Execute(&body, data); err != nil {
		return fmt.Errorf("render %s email: %w", tpl.Name(), err)
	}
	if err := d.transport.Send(ctx, Message{To: to, Subject: subject, HTML: body.String(), Text: text}); err != nil {
		return fmt.Errorf("send %s email: %w", tpl.Name(), err)
	}
	return nil
}
