package notifier

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/smtp"
	"net/url"
	"time"
)

// HTTPSMSProvider posts to a generic SMS vendor webhook
// (SMS_PROVIDER_URL/SMS_PROVIDER_TOKEN), the same shape as most
// third-party SMS gateways (a POST carrying "to" and "body" as URL query
// parameters, with no request body). It is deliberately
// vendor-agnostic.
type HTTPSMSProvider struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewHTTPSMSProvider builds a provider targeting endpoint, authenticated
// with a bearer token.
func NewHTTPSMSProvider(endpoint, token string) *HTTPSMSProvider {
	return &HTTPSMSProvider{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *HTTPSMSProvider) SendSMS(ctx context.Context, to, text string) error {
	if p.endpoint == "" {
		return fmt.Errorf("sms provider: no endpoint configured")
	}
	form := url.Values{"to": {to}, "body": {text}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, nil)
	if err != nil {
		return fmt.Errorf("sms provider: build request: %w", err)
	}
	req.URL.RawQuery = form.Encode()
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms provider: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sms provider: status %d", resp.StatusCode)
	}
	return nil
}

// SMTPEmailProvider sends email through a standard SMTP relay (SMTP_HOST,
// SMTP_PORT, SMTP_USER, SMTP_PASSWORD) using net/smtp.
type SMTPEmailProvider struct {
	addr string
	from string
	auth smtp.Auth
}

// NewSMTPEmailProvider builds a provider against host:port, authenticating
// with user/password when both are non-empty (anonymous relay otherwise).
func NewSMTPEmailProvider(host, port, user, password, from string) *SMTPEmailProvider {
	p := &SMTPEmailProvider{addr: host + ":" + port, from: from}
	if user != "" && password != "" {
		p.auth = smtp.PlainAuth("", user, password, host)
	}
	return p
}

func (p *SMTPEmailProvider) SendEmail(_ context.Context, to, subject, body string) error {
	if p.addr == ":" {
		return fmt.Errorf("smtp provider: no host configured")
	}
	msg := []byte("To: " + to + "\r\nFrom: " + p.from + "\r\nSubject: " + subject + "\r\n\r\n" + body)
	return smtp.SendMail(p.addr, p.auth, p.from, []string{to}, msg)
}

// LoggingSMSProvider and LoggingEmailProvider are the zero-config
// defaults used when no vendor credentials are set — they log the message
// instead of sending it, so Decision's R001/R002 actions still have
// somewhere to go in local dev and tests.
type LoggingSMSProvider struct{ logger *log.Logger }

func NewLoggingSMSProvider() *LoggingSMSProvider {
	return &LoggingSMSProvider{logger: log.New(log.Writer(), "[SMS-STUB] ", log.LstdFlags)}
}

func (p *LoggingSMSProvider) SendSMS(_ context.Context, to, text string) error {
	p.logger.Printf("to=%s text=%q", to, text)
	return nil
}

type LoggingEmailProvider struct{ logger *log.Logger }

func NewLoggingEmailProvider() *LoggingEmailProvider {
	return &LoggingEmailProvider{logger: log.New(log.Writer(), "[EMAIL-STUB] ", log.LstdFlags)}
}

func (p *LoggingEmailProvider) SendEmail(_ context.Context, to, subject, body string) error {
	p.logger.Printf("to=%s subject=%q body=%q", to, subject, body)
	return nil
}

var (
	_ SMSProvider  = (*HTTPSMSProvider)(nil)
	_ SMTPProvider = (*SMTPEmailProvider)(nil)
	_ SMSProvider  = (*LoggingSMSProvider)(nil)
	_ SMTPProvider = (*LoggingEmailProvider)(nil)
)
