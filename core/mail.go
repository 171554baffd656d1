package core

import (
	"bytes"
	"net/mail"
	texttmpl "text/template"
)

type (
	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Bcc     []mail.Address
		Subject string
		Body    string // text/plain
		HTML    string // optional text/html alternative
	}

	// EmailService is the notification sink. Delivery is best-effort: implementations log failures
	// instead of returning them.
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.Body != "") || (m.HTML != "") }

// RenderBody executes tmpl with data and stores the result as the plain-text body.
func (m *EmailMessage) RenderBody(tmpl *texttmpl.Template, data interface{}) error {
	var buff bytes.Buffer
	if err := tmpl.Execute(&buff, data); err != nil {
		return err
	}
	m.Body = buff.String()
	return nil
}

// Addresses converts plain e-mail addresses, skipping the invalid ones.
func Addresses(emails ...string) []mail.Address {
	addrs := make([]mail.Address, 0, len(emails))
	for _, e := range emails {
		if a, err := mail.ParseAddress(e); err == nil {
			addrs = append(addrs, *a)
		}
	}
	return addrs
}
