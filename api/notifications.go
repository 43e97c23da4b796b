package api

import (
	"net/http"
	"time"

	"github.com/DIGIT-HABs/back/domain"
)

// inboxView is the paged notification listing.
type inboxView struct {
	Total         int                `json:"total"`
	Notifications []notificationView `json:"notifications"`
	HasMore       bool               `json:"has_more"`
}

func (server *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	unreadOnly := r.URL.Query().Get("unread") == "true"

	inbox, err := server.notifier.List(currentUser(r).ID, limit, offset, unreadOnly)
	if err != nil {
		failFrom(w, err)
		return
	}

	views := make([]notificationView, 0, len(inbox.Notifications))
	for _, notification := range inbox.Notifications {
		views = append(views, viewNotification(notification))
	}
	respond(w, http.StatusOK, inboxView{Total: inbox.Total, Notifications: views, HasMore: inbox.HasMore})
}

func (server *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	notificationID, err := pathID(r, "notificationID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid notification id")
		return
	}

	if err := server.notifier.MarkRead(notificationID, currentUser(r).ID); err != nil {
		failFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (server *Server) handleGetNotificationSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := server.repo.GetNotificationSettings(currentUser(r).ID)
	if err != nil {
		failFrom(w, err)
		return
	}
	if settings == nil {
		settings = &domain.NotificationSettings{EnabledChannels: domain.DefaultChannels}
	}

	respond(w, http.StatusOK, viewSettings(settings))
}

func (server *Server) handleUpdateNotificationSettings(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		EnabledChannels []string `json:"enabled_channels"`
		QuietHoursStart *int     `json:"quiet_hours_start"`
		QuietHoursEnd   *int     `json:"quiet_hours_end"`
	}
	if err := decode(r, &payload); err != nil {
		badBody(w, err)
		return
	}
	for _, channel := range payload.EnabledChannels {
		switch channel {
		case domain.ChannelWebsocket, domain.ChannelEmail, domain.ChannelSMS, domain.ChannelPush, domain.ChannelInApp:
		default:
			fail(w, http.StatusUnprocessableEntity, "unknown channel "+channel)
			return
		}
	}
	for _, hour := range []*int{payload.QuietHoursStart, payload.QuietHoursEnd} {
		if hour != nil && (*hour < 0 || *hour > 23) {
			fail(w, http.StatusUnprocessableEntity, "quiet hours must be between 0 and 23")
			return
		}
	}

	settings := &domain.NotificationSettings{
		UserID:          currentUser(r).ID,
		EnabledChannels: payload.EnabledChannels,
		QuietHoursStart: payload.QuietHoursStart,
		QuietHoursEnd:   payload.QuietHoursEnd,
		UpdatedAt:       time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := server.repo.UpsertNotificationSettings(settings); err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusOK, viewSettings(settings))
}

func (server *Server) handleNotificationStats(w http.ResponseWriter, r *http.Request) {
	stats, err := server.notifier.UserStats(currentUser(r).ID)
	if err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusOK, stats)
}
