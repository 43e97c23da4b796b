package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/DIGIT-HABs/back/domain"
	"github.com/google/uuid"
)

var _ domain.NotificationRepository = (*Repository)(nil)

// dbNotification represents a notification as stored in the database. The
// structured payload and the targeted channels are stored as JSON.
type dbNotification struct {
	ID          uuid.UUID  `db:"id"`
	RecipientID uuid.UUID  `db:"recipient_id"`
	Kind        string     `db:"kind"`
	Title       string     `db:"title"`
	Message     string     `db:"message"`
	Data        Metadata   `db:"data"`
	Channels    StringList `db:"channels"`
	Read        bool       `db:"read"`
	CreatedAt   time.Time  `db:"created_at"`
}

// fromDomainNotification converts a domain.Notification into a dbNotification.
func fromDomainNotification(notification *domain.Notification) *dbNotification {
	return &dbNotification{
		ID:          notification.ID,
		RecipientID: notification.RecipientID,
		Kind:        notification.Kind,
		Title:       notification.Title,
		Message:     notification.Message,
		Data:        Metadata(notification.Data),
		Channels:    StringList(notification.Channels),
		Read:        notification.Read,
		CreatedAt:   notification.CreatedAt,
	}
}

// toDomainNotification converts a dbNotification into a domain.Notification.
func toDomainNotification(dbNotification *dbNotification) *domain.Notification {
	return &domain.Notification{
		ID:          dbNotification.ID,
		RecipientID: dbNotification.RecipientID,
		Kind:        dbNotification.Kind,
		Title:       dbNotification.Title,
		Message:     dbNotification.Message,
		Data:        map[string]any(dbNotification.Data),
		Channels:    []string(dbNotification.Channels),
		Read:        dbNotification.Read,
		CreatedAt:   dbNotification.CreatedAt,
	}
}

// InsertNotification saves a new notification.
func (repo *Repository) InsertNotification(notification *domain.Notification) error {
	dbNotification := fromDomainNotification(notification)
	query := `INSERT INTO notifications (id, recipient_id, kind, title, message, data, channels, read, created_at)
	          VALUES (:id, :recipient_id, :kind, :title, :message, :data, :channels, :read, :created_at)`

	_, err := repo.dbConn.NamedExec(query, dbNotification)
	if err != nil {
		return fmt.Errorf("inserting notification %s : %w", notification.ID, err)
	}
	return nil
}

// GetNotification retrieves a notification by ID.
func (repo *Repository) GetNotification(id uuid.UUID) (*domain.Notification, error) {
	var dbNotification dbNotification
	query := `SELECT * FROM notifications WHERE id = ?`

	err := repo.dbConn.Get(&dbNotification, repo.dbConn.Rebind(query), id)
	if err != nil {
		return nil, fmt.Errorf("getting notification %s : %w", id, err)
	}

	return toDomainNotification(&dbNotification), nil
}

// GetUserNotifications retrieves a user's notifications, newest first, with
// the total count for paging.
func (repo *Repository) GetUserNotifications(userID uuid.UUID, limit, offset int, unreadOnly bool) ([]*domain.Notification, int, error) {
	filter := ` WHERE recipient_id = ?`
	if unreadOnly {
		filter += ` AND read = FALSE`
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM notifications` + filter
	err := repo.dbConn.Get(&total, repo.dbConn.Rebind(countQuery), userID)
	if err != nil {
		return nil, 0, fmt.Errorf("counting notifications for user %s : %w", userID, err)
	}

	var dbNotifications []*dbNotification
	query := `SELECT * FROM notifications` + filter + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	err = repo.dbConn.Select(&dbNotifications, repo.dbConn.Rebind(query), userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("fetching notifications for user %s : %w", userID, err)
	}

	domainNotifications := make([]*domain.Notification, len(dbNotifications))
	for i, dbNotification := range dbNotifications {
		domainNotifications[i] = toDomainNotification(dbNotification)
	}
	return domainNotifications, total, nil
}

// MarkNotificationRead flags a notification as read by its recipient. The
// recipient check keeps a user from flagging someone else's notifications.
func (repo *Repository) MarkNotificationRead(id, userID uuid.UUID) error {
	query := `UPDATE notifications SET read = TRUE WHERE id = ? AND recipient_id = ?`

	result, err := repo.dbConn.Exec(repo.dbConn.Rebind(query), id, userID)
	if err != nil {
		return fmt.Errorf("marking notification %s read : %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected for notification %s : %w", id, err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("no notification found with id %s for user %s", id, userID)
	}
	return nil
}

// CountUnreadNotifications returns the unread count for a user.
func (repo *Repository) CountUnreadNotifications(userID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND read = FALSE`

	err := repo.dbConn.Get(&count, repo.dbConn.Rebind(query), userID)
	if err != nil {
		return 0, fmt.Errorf("counting unread notifications for user %s : %w", userID, err)
	}

	return count, nil
}

// DeleteReadNotificationsBefore removes read notifications older than the
// cutoff, returning how many were removed. Delivery logs go with them
// through the cascade.
func (repo *Repository) DeleteReadNotificationsBefore(cutoff time.Time) (int, error) {
	query := `DELETE FROM notifications WHERE read = TRUE AND created_at < ?`

	result, err := repo.dbConn.Exec(repo.dbConn.Rebind(query), cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting read notifications : %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking deletion rows affected : %w", err)
	}

	return int(rowsAffected), nil
}

// dbNotificationSettings represents per-user channel settings as stored in
// the database.
type dbNotificationSettings struct {
	UserID          uuid.UUID     `db:"user_id"`
	EnabledChannels StringList    `db:"enabled_channels"`
	QuietHoursStart sql.NullInt64 `db:"quiet_hours_start"`
	QuietHoursEnd   sql.NullInt64 `db:"quiet_hours_end"`
	UpdatedAt       time.Time     `db:"updated_at"`
}

// GetNotificationSettings retrieves a user's settings, or nil when the user
// never saved any. Callers fall back to the default channels on nil.
func (repo *Repository) GetNotificationSettings(userID uuid.UUID) (*domain.NotificationSettings, error) {
	var dbSettings dbNotificationSettings
	query := `SELECT * FROM notification_settings WHERE user_id = ?`

	err := repo.dbConn.Get(&dbSettings, repo.dbConn.Rebind(query), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting notification settings for %s : %w", userID, err)
	}

	settings := &domain.NotificationSettings{
		UserID:          dbSettings.UserID,
		EnabledChannels: []string(dbSettings.EnabledChannels),
		UpdatedAt:       dbSettings.UpdatedAt,
	}

	if dbSettings.QuietHoursStart.Valid {
		start := int(dbSettings.QuietHoursStart.Int64)
		settings.QuietHoursStart = &start
	}

	if dbSettings.QuietHoursEnd.Valid {
		end := int(dbSettings.QuietHoursEnd.Int64)
		settings.QuietHoursEnd = &end
	}

	return settings, nil
}

// UpsertNotificationSettings creates or replaces a user's settings.
func (repo *Repository) UpsertNotificationSettings(settings *domain.NotificationSettings) error {
	dbSettings := &dbNotificationSettings{
		UserID:          settings.UserID,
		EnabledChannels: StringList(settings.EnabledChannels),
		UpdatedAt:       settings.UpdatedAt,
	}

	if settings.QuietHoursStart != nil {
		dbSettings.QuietHoursStart = sql.NullInt64{Int64: int64(*settings.QuietHoursStart), Valid: true}
	}

	if settings.QuietHoursEnd != nil {
		dbSettings.QuietHoursEnd = sql.NullInt64{Int64: int64(*settings.QuietHoursEnd), Valid: true}
	}

	query := `INSERT INTO notification_settings (user_id, enabled_channels, quiet_hours_start, quiet_hours_end, updated_at)
	          VALUES (:user_id, :enabled_channels, :quiet_hours_start, :quiet_hours_end, :updated_at)
	          ON CONFLICT(user_id) DO UPDATE SET
	            enabled_channels = excluded.enabled_channels,
	            quiet_hours_start = excluded.quiet_hours_start,
	            quiet_hours_end = excluded.quiet_hours_end,
	            updated_at = excluded.updated_at`

	_, err := repo.dbConn.NamedExec(query, dbSettings)
	if err != nil {
		return fmt.Errorf("upserting notification settings for %s : %w", settings.UserID, err)
	}
	return nil
}

// dbNotificationTemplate represents a per-kind message template as stored in
// the database.
type dbNotificationTemplate struct {
	Kind         string    `db:"kind"`
	EmailSubject string    `db:"email_subject"`
	EmailBody    string    `db:"email_body"`
	SMSBody      string    `db:"sms_body"`
	PushTitle    string    `db:"push_title"`
	PushBody     string    `db:"push_body"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// GetTemplate retrieves the template for a notification kind, or nil when
// the kind has no template.
func (repo *Repository) GetTemplate(kind string) (*domain.NotificationTemplate, error) {
	var dbTemplate dbNotificationTemplate
	query := `SELECT * FROM notification_templates WHERE kind = ?`

	err := repo.dbConn.Get(&dbTemplate, repo.dbConn.Rebind(query), kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting template for %s : %w", kind, err)
	}

	return &domain.NotificationTemplate{
		Kind:         dbTemplate.Kind,
		EmailSubject: dbTemplate.EmailSubject,
		EmailBody:    dbTemplate.EmailBody,
		SMSBody:      dbTemplate.SMSBody,
		PushTitle:    dbTemplate.PushTitle,
		PushBody:     dbTemplate.PushBody,
		UpdatedAt:    dbTemplate.UpdatedAt,
	}, nil
}

// UpsertTemplate creates or replaces the template for a kind.
func (repo *Repository) UpsertTemplate(template *domain.NotificationTemplate) error {
	dbTemplate := &dbNotificationTemplate{
		Kind:         template.Kind,
		EmailSubject: template.EmailSubject,
		EmailBody:    template.EmailBody,
		SMSBody:      template.SMSBody,
		PushTitle:    template.PushTitle,
		PushBody:     template.PushBody,
		UpdatedAt:    template.UpdatedAt,
	}

	query := `INSERT INTO notification_templates (kind, email_subject, email_body, sms_body, push_title, push_body, updated_at)
	          VALUES (:kind, :email_subject, :email_body, :sms_body, :push_title, :push_body, :updated_at)
	          ON CONFLICT(kind) DO UPDATE SET
	            email_subject = excluded.email_subject,
	            email_body = excluded.email_body,
	            sms_body = excluded.sms_body,
	            push_title = excluded.push_title,
	            push_body = excluded.push_body,
	            updated_at = excluded.updated_at`

	_, err := repo.dbConn.NamedExec(query, dbTemplate)
	if err != nil {
		return fmt.Errorf("upserting template for %s : %w", template.Kind, err)
	}
	return nil
}

// dbDeliveryLog represents a delivery attempt as stored in the database.
type dbDeliveryLog struct {
	ID             uuid.UUID `db:"id"`
	NotificationID uuid.UUID `db:"notification_id"`
	Channel        string    `db:"channel"`
	Status         string    `db:"status"`
	Error          string    `db:"error"`
	ExternalID     string    `db:"external_id"`
	Attempt        int       `db:"attempt"`
	CreatedAt      time.Time `db:"created_at"`
}

// toDomainDeliveryLog converts a dbDeliveryLog into a domain.DeliveryLog.
func toDomainDeliveryLog(dbLog *dbDeliveryLog) *domain.DeliveryLog {
	return &domain.DeliveryLog{
		ID:             dbLog.ID,
		NotificationID: dbLog.NotificationID,
		Channel:        dbLog.Channel,
		Status:         dbLog.Status,
		Error:          dbLog.Error,
		ExternalID:     dbLog.ExternalID,
		Attempt:        dbLog.Attempt,
		CreatedAt:      dbLog.CreatedAt,
	}
}

// InsertDeliveryLog records a delivery attempt on a channel.
func (repo *Repository) InsertDeliveryLog(log *domain.DeliveryLog) error {
	dbLog := &dbDeliveryLog{
		ID:             log.ID,
		NotificationID: log.NotificationID,
		Channel:        log.Channel,
		Status:         log.Status,
		Error:          log.Error,
		ExternalID:     log.ExternalID,
		Attempt:        log.Attempt,
		CreatedAt:      log.CreatedAt,
	}

	query := `INSERT INTO delivery_logs (id, notification_id, channel, status, error, external_id, attempt, created_at)
	          VALUES (:id, :notification_id, :channel, :status, :error, :external_id, :attempt, :created_at)`

	_, err := repo.dbConn.NamedExec(query, dbLog)
	if err != nil {
		return fmt.Errorf("inserting delivery log %s : %w", log.ID, err)
	}
	return nil
}

// GetDeliveryLogs retrieves the delivery attempts for a notification, in
// attempt order.
func (repo *Repository) GetDeliveryLogs(notificationID uuid.UUID) ([]*domain.DeliveryLog, error) {
	var dbLogs []*dbDeliveryLog
	query := `SELECT * FROM delivery_logs WHERE notification_id = ? ORDER BY created_at ASC, attempt ASC`

	err := repo.dbConn.Select(&dbLogs, repo.dbConn.Rebind(query), notificationID)
	if err != nil {
		return nil, fmt.Errorf("fetching delivery logs for notification %s : %w", notificationID, err)
	}

	domainLogs := make([]*domain.DeliveryLog, len(dbLogs))
	for i, dbLog := range dbLogs {
		domainLogs[i] = toDomainDeliveryLog(dbLog)
	}
	return domainLogs, nil
}

// NotificationStats aggregates notification counts by kind and successful
// deliveries by channel for a user.
func (repo *Repository) NotificationStats(userID uuid.UUID) (map[string]int, map[string]int, error) {
	var kindRows []struct {
		Kind  string `db:"kind"`
		Count int    `db:"count"`
	}
	kindQuery := `SELECT kind, COUNT(*) AS count FROM notifications
	          WHERE recipient_id = ?
	          GROUP BY kind`

	err := repo.dbConn.Select(&kindRows, repo.dbConn.Rebind(kindQuery), userID)
	if err != nil {
		return nil, nil, fmt.Errorf("aggregating notifications by kind for %s : %w", userID, err)
	}

	var channelRows []struct {
		Channel string `db:"channel"`
		Count   int    `db:"count"`
	}
	channelQuery := `SELECT delivery_logs.channel, COUNT(*) AS count FROM delivery_logs
	          JOIN notifications ON notifications.id = delivery_logs.notification_id
	          WHERE notifications.recipient_id = ? AND delivery_logs.status = 'sent'
	          GROUP BY delivery_logs.channel`

	err = repo.dbConn.Select(&channelRows, repo.dbConn.Rebind(channelQuery), userID)
	if err != nil {
		return nil, nil, fmt.Errorf("aggregating deliveries by channel for %s : %w", userID, err)
	}

	byKind := make(map[string]int, len(kindRows))
	for _, row := range kindRows {
		byKind[row.Kind] = row.Count
	}

	byChannel := make(map[string]int, len(channelRows))
	for _, row := range channelRows {
		byChannel[row.Channel] = row.Count
	}

	return byKind, byChannel, nil
}
