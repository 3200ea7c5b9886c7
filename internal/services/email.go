package services

import (
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

type SendgridMailer struct {
	client     *sendgrid.Client
	from       *sgmail.Email
	subjPrefix string
}

var _ Mailer = (*SendgridMailer)(nil)

func NewSendgridMailer(key, fromAddress, fromName string) *SendgridMailer {
	return &SendgridMailer{
		client:     sendgrid.NewSendClient(key),
		from:       sgmail.NewEmail(fromName, fromAddress),
		subjPrefix: "[" + fromName + "] ",
	}
}

func (m *SendgridMailer) SendEmail(toName, toAddress, subject, body string) error {
	msg := sgmail.NewSingleEmailPlainText(m.from, m.subjPrefix+subject, sgmail.NewEmail(toName, toAddress), body)
	resp, err := m.client.Send(msg)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
