package notify

import (
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/DIGIT-HABs/back/domain"
)

// SMSMaxLength is the single-segment SMS size bodies are truncated to.
const SMSMaxLength = 160

// SMSChannel delivers notifications through Twilio.
type SMSChannel struct {
	client *twilio.RestClient
	from   string
}

// NewSMSChannel creates the Twilio channel with the account credentials and
// the sending number.
func NewSMSChannel(accountSID, authToken, from string) *SMSChannel {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &SMSChannel{client: client, from: from}
}

// Deliver sends the body as a single SMS segment, returning the Twilio
// message SID as the external reference.
func (channel *SMSChannel) Deliver(notification *domain.Notification, recipient *domain.User, content Content) (string, error) {
	if recipient.Phone == "" {
		return "", errors.New("recipient has no phone number")
	}

	body := content.Body
	if runes := []rune(body); len(runes) > SMSMaxLength {
		body = string(runes[:SMSMaxLength])
	}

	params := &twilioapi.CreateMessageParams{}
	params.SetTo(recipient.Phone)
	params.SetFrom(channel.from)
	params.SetBody(body)

	message, err := channel.client.Api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("sending sms : %w", err)
	}
	if message.Sid != nil {
		return *message.Sid, nil
	}
	return "", nil
}
