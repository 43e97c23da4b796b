package notify

import (
	"errors"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/DIGIT-HABs/back/db"
	"github.com/DIGIT-HABs/back/domain"
)

func setupTestService(t *testing.T) (*Service, *db.Repository, func()) {
	t.Helper()

	tempFile, err := os.CreateTemp(t.TempDir(), "test_*.db")
	if err != nil {
		t.Fatalf("creating temp db file: %v", err)
	}

	dbConn, err := db.New(db.DialectSQLite, tempFile.Name())
	if err != nil {
		t.Fatalf("connecting to test db: %v", err)
	}

	repo := db.NewCRMRepo(dbConn)
	return NewService(repo, repo), repo, func() {
		repo.Close()
	}
}

func seedRecipient(t *testing.T, repo *db.Repository) *domain.User {
	t.Helper()

	agencyID, err := uuid.NewV7()
	if err != nil {
		t.Fatalf("creating uuid: %v", err)
	}
	now := time.Now().UTC().Truncate(time.Millisecond)

	agency := &domain.Agency{
		ID:            agencyID,
		Name:          "Agence du Port",
		Slug:          "agence-du-port-" + agencyID.String()[:8],
		Plan:          domain.PlanBasic,
		MaxAgents:     domain.DefaultMaxAgents,
		MaxProperties: domain.DefaultMaxProperties,
		MaxClients:    domain.DefaultMaxClients,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := repo.InsertAgency(agency); err != nil {
		t.Fatalf("creating test agency : %v", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		t.Fatalf("creating uuid: %v", err)
	}

	user := &domain.User{
		ID:        id,
		Email:     id.String()[:13] + "@digit-hab.com",
		Username:  "user_" + id.String()[:13],
		FirstName: "Camille",
		LastName:  "Durand",
		Phone:     "+33612345678",
		Role:      domain.RoleAgent,
		AgencyID:  &agency.ID,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.InsertUser(user); err != nil {
		t.Fatalf("creating test user : %v", err)
	}

	return user
}

type recordedDelivery struct {
	notification *domain.Notification
	content      Content
}

type recordingChannel struct {
	externalID string
	deliveries []recordedDelivery
}

func (channel *recordingChannel) Deliver(notification *domain.Notification, recipient *domain.User, content Content) (string, error) {
	channel.deliveries = append(channel.deliveries, recordedDelivery{notification: notification, content: content})
	return channel.externalID, nil
}

type failingChannel struct {
	calls int
}

func (channel *failingChannel) Deliver(notification *domain.Notification, recipient *domain.User, content Content) (string, error) {
	channel.calls++
	return "", errors.New("provider unavailable")
}

func intPtr(value int) *int {
	return &value
}

func TestService_Create(t *testing.T) {
	t.Run("should persist the inbox row and deliver in-app by default", func(t *testing.T) {
		service, repo, teardown := setupTestService(t)
		defer teardown()

		recipient := seedRecipient(t, repo)

		notification, err := service.Create(recipient.ID, "lead.created", "Nouveau lead", "Un nouveau lead est arrivé.", nil, nil)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if !reflect.DeepEqual(notification.Channels, domain.DefaultChannels) {
			t.Errorf("\nwanted:\n%v\ngot:\n%v", domain.DefaultChannels, notification.Channels)
		}

		saved, err := repo.GetNotification(notification.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if saved.Title != "Nouveau lead" || saved.Read {
			t.Errorf("\nwanted:\nunread Nouveau lead\ngot:\n%+v", saved)
		}

		// No websocket channel is registered here, so the only delivery on
		// record is the in-app one.
		logs, err := repo.GetDeliveryLogs(notification.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if len(logs) != 1 {
			t.Fatalf("\nwanted:\n1 log\ngot:\n%d", len(logs))
		}
		if logs[0].Channel != domain.ChannelInApp || logs[0].Status != "sent" || logs[0].Attempt != 1 {
			t.Errorf("\nwanted:\nsent in_app attempt 1\ngot:\n%+v", logs[0])
		}
	})

	t.Run("should render the kind's template per channel", func(t *testing.T) {
		service, repo, teardown := setupTestService(t)
		defer teardown()

		recipient := seedRecipient(t, repo)

		email := &recordingChannel{externalID: "<msg-1@digit-hab.com>"}
		sms := &recordingChannel{externalID: "SM1234567890"}
		push := &recordingChannel{}
		service.Register(domain.ChannelEmail, email)
		service.Register(domain.ChannelSMS, sms)
		service.Register(domain.ChannelPush, push)

		data := map[string]any{"LeadName": "Sophie Martin", "lead_id": uuid.NewString()}
		_, err := service.Create(recipient.ID, "lead.assigned", "Nouveau lead attribué", "Sophie Martin vous a été attribué.", data,
			[]string{domain.ChannelEmail, domain.ChannelSMS, domain.ChannelPush})
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if len(email.deliveries) != 1 {
			t.Fatalf("\nwanted:\n1 email\ngot:\n%d", len(email.deliveries))
		}
		if email.deliveries[0].content.Subject != "Prospect assigne" {
			t.Errorf("\nwanted:\nProspect assigne\ngot:\n%q", email.deliveries[0].content.Subject)
		}
		if !strings.Contains(email.deliveries[0].content.Body, "Sophie Martin") {
			t.Errorf("\nwanted:\nthe lead name in the body\ngot:\n%q", email.deliveries[0].content.Body)
		}

		if len(sms.deliveries) != 1 {
			t.Fatalf("\nwanted:\n1 sms\ngot:\n%d", len(sms.deliveries))
		}
		if sms.deliveries[0].content.Body != "Prospect assigne: Sophie Martin" {
			t.Errorf("\nwanted:\nProspect assigne: Sophie Martin\ngot:\n%q", sms.deliveries[0].content.Body)
		}

		if len(push.deliveries) != 1 {
			t.Fatalf("\nwanted:\n1 push\ngot:\n%d", len(push.deliveries))
		}
		if push.deliveries[0].content.Body != "Sophie Martin vous attend" {
			t.Errorf("\nwanted:\nSophie Martin vous attend\ngot:\n%q", push.deliveries[0].content.Body)
		}

		// The provider references land in the delivery logs.
		logs, err := repo.GetDeliveryLogs(email.deliveries[0].notification.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		externalIDs := map[string]bool{}
		for _, entry := range logs {
			externalIDs[entry.ExternalID] = true
		}
		if !externalIDs["<msg-1@digit-hab.com>"] || !externalIDs["SM1234567890"] {
			t.Errorf("\nwanted:\nboth provider references\ngot:\n%v", externalIDs)
		}
	})

	t.Run("should fall back to the raw message when data misses a template key", func(t *testing.T) {
		service, repo, teardown := setupTestService(t)
		defer teardown()

		recipient := seedRecipient(t, repo)

		sms := &recordingChannel{}
		service.Register(domain.ChannelSMS, sms)

		_, err := service.Create(recipient.ID, "lead.assigned", "Nouveau lead attribué", "Un lead vous a été attribué.", nil,
			[]string{domain.ChannelSMS})
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if len(sms.deliveries) != 1 {
			t.Fatalf("\nwanted:\n1 sms\ngot:\n%d", len(sms.deliveries))
		}
		if sms.deliveries[0].content.Body != "Un lead vous a été attribué." {
			t.Errorf("\nwanted:\nthe raw message\ngot:\n%q", sms.deliveries[0].content.Body)
		}
	})

	t.Run("should honor the recipient's channel settings", func(t *testing.T) {
		service, repo, teardown := setupTestService(t)
		defer teardown()

		recipient := seedRecipient(t, repo)

		err := repo.UpsertNotificationSettings(&domain.NotificationSettings{
			UserID:          recipient.ID,
			EnabledChannels: []string{domain.ChannelEmail},
			UpdatedAt:       time.Now().UTC().Truncate(time.Millisecond),
		})
		if err != nil {
			t.Fatalf("saving settings : %v", err)
		}

		notification, err := service.Create(recipient.ID, "lead.created", "Nouveau lead", "Un nouveau lead est arrivé.", nil,
			[]string{domain.ChannelEmail, domain.ChannelSMS, domain.ChannelPush, domain.ChannelWebsocket})
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		want := []string{domain.ChannelEmail, domain.ChannelWebsocket}
		if !reflect.DeepEqual(notification.Channels, want) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", want, notification.Channels)
		}
	})

	t.Run("should hold email and sms during quiet hours", func(t *testing.T) {
		service, repo, teardown := setupTestService(t)
		defer teardown()

		recipient := seedRecipient(t, repo)

		err := repo.UpsertNotificationSettings(&domain.NotificationSettings{
			UserID:          recipient.ID,
			EnabledChannels: []string{domain.ChannelEmail, domain.ChannelSMS, domain.ChannelPush},
			QuietHoursStart: intPtr(22),
			QuietHoursEnd:   intPtr(7),
			UpdatedAt:       time.Now().UTC().Truncate(time.Millisecond),
		})
		if err != nil {
			t.Fatalf("saving settings : %v", err)
		}

		service.now = func() time.Time {
			return time.Date(2026, time.September, 7, 23, 15, 0, 0, time.UTC)
		}

		notification, err := service.Create(recipient.ID, "lead.created", "Nouveau lead", "Un nouveau lead est arrivé.", nil,
			[]string{domain.ChannelEmail, domain.ChannelSMS, domain.ChannelPush})
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		want := []string{domain.ChannelPush}
		if !reflect.DeepEqual(notification.Channels, want) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", want, notification.Channels)
		}
	})

	t.Run("should retry a failing channel up to three attempts", func(t *testing.T) {
		service, repo, teardown := setupTestService(t)
		defer teardown()

		recipient := seedRecipient(t, repo)

		sms := &failingChannel{}
		service.Register(domain.ChannelSMS, sms)

		notification, err := service.Create(recipient.ID, "lead.created", "Nouveau lead", "Un nouveau lead est arrivé.", nil,
			[]string{domain.ChannelSMS})
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if sms.calls != domain.MaxDeliveryAttempts {
			t.Errorf("\nwanted:\n%d calls\ngot:\n%d", domain.MaxDeliveryAttempts, sms.calls)
		}

		logs, err := repo.GetDeliveryLogs(notification.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if len(logs) != domain.MaxDeliveryAttempts {
			t.Fatalf("\nwanted:\n%d logs\ngot:\n%d", domain.MaxDeliveryAttempts, len(logs))
		}
		for i, entry := range logs {
			if entry.Status != "failed" || entry.Attempt != i+1 {
				t.Errorf("\nwanted:\nfailed attempt %d\ngot:\n%+v", i+1, entry)
			}
			if !strings.Contains(entry.Error, "provider unavailable") {
				t.Errorf("\nwanted:\nthe provider error\ngot:\n%q", entry.Error)
			}
		}
	})
}

func TestService_List(t *testing.T) {
	t.Run("should page the inbox with the default size", func(t *testing.T) {
		service, repo, teardown := setupTestService(t)
		defer teardown()

		recipient := seedRecipient(t, repo)

		for i := 0; i < 3; i++ {
			if _, err := service.Create(recipient.ID, "lead.created", "Nouveau lead", "Un nouveau lead est arrivé.", nil, nil); err != nil {
				t.Fatalf("creating notification : %v", err)
			}
		}

		inbox, err := service.List(recipient.ID, 0, 0, false)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if inbox.Total != 3 || len(inbox.Notifications) != 3 || inbox.HasMore {
			t.Fatalf("\nwanted:\n3 of 3, no more\ngot:\n%d of %d, has_more %v", len(inbox.Notifications), inbox.Total, inbox.HasMore)
		}

		page, err := service.List(recipient.ID, 2, 0, false)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if len(page.Notifications) != 2 || !page.HasMore {
			t.Fatalf("\nwanted:\n2 of 3, has more\ngot:\n%d of %d, has_more %v", len(page.Notifications), page.Total, page.HasMore)
		}
	})
}

func TestService_UserStats(t *testing.T) {
	t.Run("should aggregate unread count and breakdowns", func(t *testing.T) {
		service, repo, teardown := setupTestService(t)
		defer teardown()

		recipient := seedRecipient(t, repo)

		first, err := service.Create(recipient.ID, "lead.assigned", "Nouveau lead attribué", "Un lead vous a été attribué.", nil, nil)
		if err != nil {
			t.Fatalf("creating notification : %v", err)
		}
		if _, err := service.Create(recipient.ID, "message.received", "Nouveau message", "Vous avez un nouveau message.", nil, nil); err != nil {
			t.Fatalf("creating notification : %v", err)
		}

		if err := service.MarkRead(first.ID, recipient.ID); err != nil {
			t.Fatalf("marking read : %v", err)
		}

		stats, err := service.UserStats(recipient.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if stats.Unread != 1 {
			t.Errorf("\nwanted:\n1 unread\ngot:\n%d", stats.Unread)
		}
		if stats.ByKind["lead.assigned"] != 1 || stats.ByKind["message.received"] != 1 {
			t.Errorf("\nwanted:\none of each kind\ngot:\n%v", stats.ByKind)
		}
		if stats.ByChannel[domain.ChannelInApp] != 2 {
			t.Errorf("\nwanted:\n2 in_app deliveries\ngot:\n%v", stats.ByChannel)
		}
	})
}

func TestService_Cleanup(t *testing.T) {
	t.Run("should delete only old read notifications", func(t *testing.T) {
		service, repo, teardown := setupTestService(t)
		defer teardown()

		recipient := seedRecipient(t, repo)

		oldID, err := uuid.NewV7()
		if err != nil {
			t.Fatalf("creating uuid: %v", err)
		}
		old := &domain.Notification{
			ID:          oldID,
			RecipientID: recipient.ID,
			Kind:        "lead.created",
			Title:       "Nouveau lead",
			Message:     "Un nouveau lead est arrivé.",
			Channels:    domain.DefaultChannels,
			CreatedAt:   time.Now().UTC().Add(-31 * 24 * time.Hour).Truncate(time.Millisecond),
		}
		if err := repo.InsertNotification(old); err != nil {
			t.Fatalf("creating notification : %v", err)
		}
		if err := repo.MarkNotificationRead(old.ID, recipient.ID); err != nil {
			t.Fatalf("marking read : %v", err)
		}

		// Recent and read, stays.
		recent, err := service.Create(recipient.ID, "lead.created", "Nouveau lead", "Un nouveau lead est arrivé.", nil, nil)
		if err != nil {
			t.Fatalf("creating notification : %v", err)
		}
		if err := repo.MarkNotificationRead(recent.ID, recipient.ID); err != nil {
			t.Fatalf("marking read : %v", err)
		}

		removed, err := service.Cleanup()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if removed != 1 {
			t.Fatalf("\nwanted:\n1 removed\ngot:\n%d", removed)
		}

		if _, err := repo.GetNotification(old.ID); err == nil {
			t.Fatalf("\nwanted:\nan error\ngot:\nnil")
		}
	})
}
