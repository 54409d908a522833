package notify

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/raids-lab/staffdesk/dao/model"
	"github.com/raids-lab/staffdesk/pkg/logutils"
)

type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// MailChannel sends notifications as plain text e-mail.
type MailChannel struct {
	sender mailSender
	from   string
}

func NewMailChannel(host string, port int, user, password, from string) *MailChannel {
	return &MailChannel{
		sender: gomail.NewDialer(host, port, user, password),
		from:   from,
	}
}

func (m *MailChannel) Name() string { return "mail" }

func (m *MailChannel) Deliver(_ context.Context, recipient *model.User, n *model.Notification) error {
	if recipient.Email == nil || *recipient.Email == "" {
		logutils.Component("mail").Debugf("%s does not have an email address", recipient.Name)
		return nil
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", *recipient.Email)
	msg.SetHeader("Subject", n.Title)
	msg.SetBody("text/plain", n.Message)

	if err := m.sender.DialAndSend(msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", *recipient.Email, err)
	}
	logutils.Component("mail").Infof("sent notification %d to %s", n.ID, *recipient.Email)
	return nil
}
