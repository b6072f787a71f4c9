// Package smtpx performs the actual transport send. The engine treats it as
// a black box: one pass/fail submission of a rendered message through a
// credential.
package smtpx

import (
	"context"
	"fmt"
	"strings"

	"github.com/courierd/courier"
	"gopkg.in/gomail.v2"
)

// Message is a fully rendered email ready for submission.
type Message struct {
	To       string
	ToName   string
	CC       []courier.Recipient
	BCC      []courier.Recipient
	Subject  string
	Body     string
	BodyType courier.ContentType
}

// Sender submits one message through the given credential. Implementations
// must honor ctx cancellation by returning promptly, the dispatcher treats
// a timeout like any other transport failure.
type Sender interface {
	Send(ctx context.Context, key *courier.Credential, msg Message) error
}

// endpoint is the SMTP submission server for a provider. The provider enum
// is display/grouping data to the engine, only this table interprets it.
type endpoint struct {
	host string
	port int
}

var endpoints = map[courier.Provider]endpoint{
	courier.ProviderQQ:      {"smtp.qq.com", 465},
	courier.Provider163:     {"smtp.163.com", 465},
	courier.ProviderAli:     {"smtp.aliyun.com", 465},
	courier.ProviderGmail:   {"smtp.gmail.com", 587},
	courier.ProviderOutlook: {"smtp-mail.outlook.com", 587},
}

// resolveEndpoint falls back to smtp.<domain of the account> for the
// generic provider.
func resolveEndpoint(key *courier.Credential) (endpoint, error) {
	if e, ok := endpoints[key.Company]; ok {
		return e, nil
	}
	_, domain, found := strings.Cut(key.User, "@")
	if !found {
		return endpoint{}, fmt.Errorf("no smtp endpoint for account %q", key.User)
	}
	return endpoint{"smtp." + domain, 587}, nil
}

func NewGomailSender() *GomailSender {
	return &GomailSender{}
}

// GomailSender submits messages over SMTP with gomail.
type GomailSender struct{}

func (g *GomailSender) Send(ctx context.Context, key *courier.Credential, msg Message) error {
	e, err := resolveEndpoint(key)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", key.User)
	m.SetHeader("To", m.FormatAddress(msg.To, msg.ToName))
	if len(msg.CC) > 0 {
		cc := make([]string, 0, len(msg.CC))
		for _, r := range msg.CC {
			cc = append(cc, m.FormatAddress(r.Email, r.Name))
		}
		m.SetHeader("Cc", cc...)
	}
	if len(msg.BCC) > 0 {
		bcc := make([]string, 0, len(msg.BCC))
		for _, r := range msg.BCC {
			bcc = append(bcc, m.FormatAddress(r.Email, r.Name))
		}
		m.SetHeader("Bcc", bcc...)
	}
	m.SetHeader("Subject", msg.Subject)
	if msg.BodyType == courier.ContentText {
		m.SetBody("text/plain", msg.Body)
	} else {
		m.SetBody("text/html", msg.Body)
	}

	d := gomail.NewDialer(e.host, e.port, key.User, key.Pass)
	d.SSL = e.port == 465

	// gomail has no context support, run the dial+send aside and let the
	// deadline win
	done := make(chan error, 1)
	go func() {
		done <- d.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp submission via %s:%d failed: %w", e.host, e.port, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp submission via %s:%d: %w", e.host, e.port, ctx.Err())
	}
}
