package integrations

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strconv"
	"strings"

	"eventmitra/backend/internal/config"

	"github.com/PuerkitoBio/goquery"
	"github.com/domodwyer/mailyak/v3"
)

type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

type Email struct {
	To          string
	Subject     string
	HTML        string
	Attachments []Attachment
}

// Mailer sends transactional email over SMTP.
type Mailer struct {
	addr     string
	auth     smtp.Auth
	from     string
	fromName string
}

func NewMailer(cfg config.SMTPConfig) *Mailer {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &Mailer{
		addr:     cfg.Host + ":" + strconv.Itoa(cfg.Port),
		auth:     auth,
		from:     cfg.From,
		fromName: cfg.FromName,
	}
}

func (m *Mailer) Send(ctx context.Context, msg Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mail, err := m.build(msg)
	if err != nil {
		return err
	}
	return mail.Send()
}

func (m *Mailer) build(msg Email) (*mailyak.MailYak, error) {
	if strings.TrimSpace(msg.To) == "" {
		return nil, fmt.Errorf("recipient is required")
	}
	mail := mailyak.New(m.addr, m.auth)
	mail.To(msg.To)
	mail.From(m.from)
	mail.FromName(m.fromName)
	mail.Subject(msg.Subject)
	mail.HTML().Set(msg.HTML)
	mail.Plain().Set(PlainText(msg.HTML))
	for _, a := range msg.Attachments {
		contentType := a.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		mail.AttachWithMimeType(a.Name, bytes.NewReader(a.Data), contentType)
	}
	return mail, nil
}

// PlainText flattens an HTML fragment to text, one block element per line.
func PlainText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(html)
	}
	doc.Find("script,style").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p,div,li,h1,h2,h3,h4,tr").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	lines := strings.Split(doc.Text(), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
