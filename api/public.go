package api

import (
	"io"
	"log"
	"net/http"
)

// handleFeed serves the XML listing feed for one agency. Portals poll this
// endpoint, so it sits outside the authenticated API tree.
func (server *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if server.feeds == nil {
		fail(w, http.StatusServiceUnavailable, "the portal feed is not configured")
		return
	}

	slug := r.URL.Query().Get("agency")
	if slug == "" {
		fail(w, http.StatusBadRequest, "an agency parameter is required")
		return
	}

	agency, err := server.repo.GetAgencyBySlug(slug)
	if err != nil {
		failFrom(w, err)
		return
	}

	document, err := server.feeds.ExportAgency(agency.ID)
	if err != nil {
		failFrom(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	if _, err := w.Write(document); err != nil {
		log.Printf("warning: writing feed for %s: %v", slug, err)
	}
}

func (server *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if server.payer == nil {
		fail(w, http.StatusServiceUnavailable, "payments are not configured")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		fail(w, http.StatusBadRequest, "reading webhook body: "+err.Error())
		return
	}

	if err := server.payer.HandleWebhook(body, r.Header.Get("Stripe-Signature")); err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}

	respond(w, http.StatusOK, map[string]bool{"received": true})
}

// handleChat upgrades the connection and hands it to the chat consumer.
// Authentication happens in band: the first frame carries the access token.
func (server *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if server.consumer == nil {
		fail(w, http.StatusServiceUnavailable, "chat is not configured")
		return
	}

	conversationID, err := pathID(r, "conversationID")
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}

	server.consumer.Serve(w, r, conversationID)
}
