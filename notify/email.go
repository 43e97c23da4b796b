package notify

import (
	"errors"
	"fmt"
	"html"

	"github.com/wneessen/go-mail"
	"github.com/yosssi/gohtml"

	"github.com/DIGIT-HABs/back/domain"
)

// DefaultSender is the address notifications go out from.
const DefaultSender = "noreply@digit-hab.com"

// SubjectPrefix marks every notification email in the recipient's inbox.
const SubjectPrefix = "[DigitHab CRM] "

// EmailChannel delivers notifications over SMTP.
type EmailChannel struct {
	client *mail.Client
	from   string
}

// NewEmailChannel connects the SMTP channel. An empty username skips
// authentication, for relays that allow it; an empty from falls back to
// DefaultSender.
func NewEmailChannel(host string, port int, username, password, from string) (*EmailChannel, error) {
	if from == "" {
		from = DefaultSender
	}

	options := []mail.Option{
		mail.WithPort(port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if username != "" {
		options = append(options,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(username),
			mail.WithPassword(password),
		)
	}

	client, err := mail.NewClient(host, options...)
	if err != nil {
		return nil, fmt.Errorf("creating smtp client : %w", err)
	}
	return &EmailChannel{client: client, from: from}, nil
}

// Deliver sends the rendered content as an HTML email, returning the
// generated Message-ID as the external reference.
func (channel *EmailChannel) Deliver(notification *domain.Notification, recipient *domain.User, content Content) (string, error) {
	if recipient.Email == "" {
		return "", errors.New("recipient has no email address")
	}

	message := mail.NewMsg()
	if err := message.From(channel.from); err != nil {
		return "", fmt.Errorf("setting sender : %w", err)
	}
	if err := message.To(recipient.Email); err != nil {
		return "", fmt.Errorf("setting recipient : %w", err)
	}
	message.Subject(SubjectPrefix + content.Subject)
	message.SetMessageID()
	message.SetBodyString(mail.TypeTextHTML, content.Body)

	if err := channel.client.DialAndSend(message); err != nil {
		return "", fmt.Errorf("sending email : %w", err)
	}

	if ids := message.GetGenHeader(mail.HeaderMessageID); len(ids) > 0 {
		return ids[0], nil
	}
	return "", nil
}

// FormatHTMLBody wraps a plain-text message as an indented HTML fragment,
// escaping it on the way.
func FormatHTMLBody(message string) string {
	return gohtml.Format("<p>" + html.EscapeString(message) + "</p>")
}
