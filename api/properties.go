package api

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/DIGIT-HABs/back/domain"
	"github.com/DIGIT-HABs/back/matching"
)

// maxUploadBytes caps a single media upload at 20 MiB.
const maxUploadBytes = 20 << 20

// canManage reports whether the viewer may modify the property: admins
// always, agents only within their own agency.
func canManage(viewer *domain.User, property *domain.Property) bool {
	if viewer.Role == domain.RoleAdmin {
		return true
	}
	return viewer.AgencyID != nil && *viewer.AgencyID == property.AgencyID
}

func (server *Server) handleListProperties(w http.ResponseWriter, r *http.Request) {
	agencyID, err := scopeAgency(r)
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid agency_id filter")
		return
	}

	var properties []*domain.Property
	if currentUser(r).Role == domain.RoleClient {
		properties, err = server.repo.GetPublishedProperties(agencyID)
	} else {
		properties, err = server.repo.GetProperties(agencyID, r.URL.Query().Get("status"))
	}
	if err != nil {
		failFrom(w, err)
		return
	}

	limit, offset := pageParams(r)
	respond(w, http.StatusOK, paginate(viewProperties(properties), limit, offset))
}

func (server *Server) handleCreateProperty(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		AgencyID     *uuid.UUID      `json:"agency_id"`
		AgentID      *uuid.UUID      `json:"agent_id"`
		Reference    string          `json:"reference"`
		Title        string          `json:"title"`
		Description  string          `json:"description"`
		Type         string          `json:"type"`
		Price        decimal.Decimal `json:"price"`
		Surface      float64         `json:"surface"`
		Rooms        int             `json:"rooms"`
		Bedrooms     int             `json:"bedrooms"`
		Bathrooms    int             `json:"bathrooms"`
		Floor        *int            `json:"floor"`
		YearBuilt    *int            `json:"year_built"`
		EnergyRating string          `json:"energy_rating"`
		Features     []string        `json:"features"`
		Address      string          `json:"address"`
		City         string          `json:"city"`
		PostalCode   string          `json:"postal_code"`
		Latitude     *float64        `json:"latitude"`
		Longitude    *float64        `json:"longitude"`
	}
	if err := decode(r, &payload); err != nil {
		badBody(w, err)
		return
	}
	if strings.TrimSpace(payload.Title) == "" || payload.Type == "" {
		fail(w, http.StatusUnprocessableEntity, "title and type are required")
		return
	}

	viewer := currentUser(r)
	var agencyID uuid.UUID
	switch {
	case viewer.Role == domain.RoleAdmin && payload.AgencyID != nil:
		agencyID = *payload.AgencyID
	case viewer.AgencyID != nil:
		agencyID = *viewer.AgencyID
	default:
		fail(w, http.StatusUnprocessableEntity, "an agency is required to create a listing")
		return
	}

	agency, err := server.repo.GetAgency(agencyID)
	if err != nil {
		failFrom(w, err)
		return
	}
	_, properties, _, err := server.repo.CountAgencyUsage(agencyID)
	if err != nil {
		failFrom(w, err)
		return
	}
	if properties >= agency.MaxProperties {
		fail(w, http.StatusUnprocessableEntity, "property quota reached for the agency's plan")
		return
	}

	id, err := uuid.NewV7()
	if err != nil {
		failFrom(w, err)
		return
	}
	now := time.Now().UTC().Truncate(time.Millisecond)

	agentID := payload.AgentID
	if agentID == nil && viewer.Role == domain.RoleAgent {
		agentID = &viewer.ID
	}
	reference := strings.TrimSpace(payload.Reference)
	if reference == "" {
		reference = buildReference(payload.Type, now, id)
	}

	property := &domain.Property{
		ID:           id,
		AgencyID:     agencyID,
		AgentID:      agentID,
		Reference:    reference,
		Title:        payload.Title,
		Description:  payload.Description,
		Type:         payload.Type,
		Status:       domain.PropertyStatusDraft,
		Price:        payload.Price,
		Surface:      payload.Surface,
		Rooms:        payload.Rooms,
		Bedrooms:     payload.Bedrooms,
		Bathrooms:    payload.Bathrooms,
		Floor:        payload.Floor,
		YearBuilt:    payload.YearBuilt,
		EnergyRating: payload.EnergyRating,
		Features:     payload.Features,
		Address:      payload.Address,
		City:         payload.City,
		PostalCode:   payload.PostalCode,
		Latitude:     payload.Latitude,
		Longitude:    payload.Longitude,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := server.repo.InsertProperty(property); err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusCreated, viewProperty(property))
}

// buildReference derives a listing reference from the property type, the
// year, and a fragment of the ID, e.g. "APA-2026-4F9A2C".
func buildReference(propertyType string, now time.Time, id uuid.UUID) string {
	prefix := strings.ToUpper(propertyType)
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	fragment := strings.ToUpper(strings.ReplaceAll(id.String(), "-", ""))
	return fmt.Sprintf("%s-%d-%s", prefix, now.Year(), fragment[len(fragment)-6:])
}

func (server *Server) handleGetProperty(w http.ResponseWriter, r *http.Request) {
	propertyID, err := pathID(r, "propertyID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid property id")
		return
	}

	property, err := server.repo.GetProperty(propertyID)
	if err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusOK, viewProperty(property))
}

func (server *Server) handleUpdateProperty(w http.ResponseWriter, r *http.Request) {
	propertyID, err := pathID(r, "propertyID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid property id")
		return
	}

	var payload struct {
		AgentID      *uuid.UUID       `json:"agent_id"`
		Title        *string          `json:"title"`
		Description  *string          `json:"description"`
		Type         *string          `json:"type"`
		Status       *string          `json:"status"`
		Price        *decimal.Decimal `json:"price"`
		Surface      *float64         `json:"surface"`
		Rooms        *int             `json:"rooms"`
		Bedrooms     *int             `json:"bedrooms"`
		Bathrooms    *int             `json:"bathrooms"`
		Floor        *int             `json:"floor"`
		YearBuilt    *int             `json:"year_built"`
		EnergyRating *string          `json:"energy_rating"`
		Features     []string         `json:"features"`
		Address      *string          `json:"address"`
		City         *string          `json:"city"`
		PostalCode   *string          `json:"postal_code"`
		Latitude     *float64         `json:"latitude"`
		Longitude    *float64         `json:"longitude"`
	}
	if err := decode(r, &payload); err != nil {
		badBody(w, err)
		return
	}

	property, err := server.repo.GetProperty(propertyID)
	if err != nil {
		failFrom(w, err)
		return
	}
	if !canManage(currentUser(r), property) {
		fail(w, http.StatusNotFound, "not found")
		return
	}

	if payload.AgentID != nil {
		property.AgentID = payload.AgentID
	}
	if payload.Title != nil {
		property.Title = *payload.Title
	}
	if payload.Description != nil {
		property.Description = *payload.Description
	}
	if payload.Type != nil {
		property.Type = *payload.Type
	}
	if payload.Status != nil {
		property.Status = *payload.Status
	}
	if payload.Price != nil {
		property.Price = *payload.Price
	}
	if payload.Surface != nil {
		property.Surface = *payload.Surface
	}
	if payload.Rooms != nil {
		property.Rooms = *payload.Rooms
	}
	if payload.Bedrooms != nil {
		property.Bedrooms = *payload.Bedrooms
	}
	if payload.Bathrooms != nil {
		property.Bathrooms = *payload.Bathrooms
	}
	if payload.Floor != nil {
		property.Floor = payload.Floor
	}
	if payload.YearBuilt != nil {
		property.YearBuilt = payload.YearBuilt
	}
	if payload.EnergyRating != nil {
		property.EnergyRating = *payload.EnergyRating
	}
	if payload.Features != nil {
		property.Features = payload.Features
	}
	if payload.Address != nil {
		property.Address = *payload.Address
	}
	if payload.City != nil {
		property.City = *payload.City
	}
	if payload.PostalCode != nil {
		property.PostalCode = *payload.PostalCode
	}
	if payload.Latitude != nil {
		property.Latitude = payload.Latitude
	}
	if payload.Longitude != nil {
		property.Longitude = payload.Longitude
	}
	property.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)

	if err := server.repo.UpdateProperty(property); err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusOK, viewProperty(property))
}

// handlePublishProperty moves a listing to "available", fires the automation
// hook, and queues geocoding when the address has no coordinates yet.
func (server *Server) handlePublishProperty(w http.ResponseWriter, r *http.Request) {
	propertyID, err := pathID(r, "propertyID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid property id")
		return
	}

	property, err := server.repo.GetProperty(propertyID)
	if err != nil {
		failFrom(w, err)
		return
	}
	if !canManage(currentUser(r), property) {
		fail(w, http.StatusNotFound, "not found")
		return
	}
	if property.Status == domain.PropertyStatusAvailable {
		fail(w, http.StatusUnprocessableEntity, "property is already available")
		return
	}

	property.Status = domain.PropertyStatusAvailable
	property.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	if err := server.repo.UpdateProperty(property); err != nil {
		failFrom(w, err)
		return
	}

	// Re-read to pick up the PublishedAt stamp the storage layer sets on
	// the first transition.
	property, err = server.repo.GetProperty(propertyID)
	if err != nil {
		failFrom(w, err)
		return
	}

	if server.engine != nil {
		server.engine.PropertyPublished(property)
	}
	if server.runner != nil && !property.HasCoordinates() {
		if err := server.runner.GeocodeProperty(property.ID); err != nil {
			log.Printf("warning: queueing geocode for %s: %v", property.ID, err)
		}
	}

	respond(w, http.StatusOK, viewProperty(property))
}

func (server *Server) handlePropertyView(w http.ResponseWriter, r *http.Request) {
	propertyID, err := pathID(r, "propertyID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid property id")
		return
	}

	if err := server.repo.IncrementViewCount(propertyID); err != nil {
		failFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (server *Server) handlePropertyInquiry(w http.ResponseWriter, r *http.Request) {
	propertyID, err := pathID(r, "propertyID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid property id")
		return
	}

	if err := server.repo.IncrementInquiryCount(propertyID); err != nil {
		failFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (server *Server) handleListMedia(w http.ResponseWriter, r *http.Request) {
	propertyID, err := pathID(r, "propertyID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid property id")
		return
	}

	media, err := server.repo.GetMedia(propertyID)
	if err != nil {
		failFrom(w, err)
		return
	}

	views := make([]mediaView, 0, len(media))
	for _, item := range media {
		views = append(views, viewMedia(item))
	}
	respond(w, http.StatusOK, views)
}

// handleUploadMedia stores a photo or document under the uploads directory
// and records it against the listing. The content type comes from sniffing
// the bytes, never from the client.
func (server *Server) handleUploadMedia(w http.ResponseWriter, r *http.Request) {
	if server.uploadsDir == "" {
		fail(w, http.StatusServiceUnavailable, "uploads are not configured")
		return
	}

	propertyID, err := pathID(r, "propertyID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid property id")
		return
	}
	property, err := server.repo.GetProperty(propertyID)
	if err != nil {
		failFrom(w, err)
		return
	}
	if !canManage(currentUser(r), property) {
		fail(w, http.StatusNotFound, "not found")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		fail(w, http.StatusUnprocessableEntity, "a multipart \"file\" field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		fail(w, http.StatusRequestEntityTooLarge, "file exceeds the 20 MiB limit")
		return
	}

	kind := mimetype.Detect(data)
	if !strings.HasPrefix(kind.String(), "image/") && !kind.Is("application/pdf") {
		fail(w, http.StatusUnprocessableEntity, "only images and PDF documents are accepted")
		return
	}

	existing, err := server.repo.GetMedia(propertyID)
	if err != nil {
		failFrom(w, err)
		return
	}

	id, err := uuid.NewV7()
	if err != nil {
		failFrom(w, err)
		return
	}
	fileName := id.String() + kind.Extension()

	if err := os.WriteFile(filepath.Join(server.uploadsDir, fileName), data, 0o644); err != nil {
		failFrom(w, fmt.Errorf("storing upload : %w", err))
		return
	}

	media := &domain.PropertyMedia{
		ID:          id,
		PropertyID:  propertyID,
		FileName:    fileName,
		ContentType: kind.String(),
		Size:        int64(len(data)),
		Position:    len(existing),
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := server.repo.AttachMedia(media); err != nil {
		if removeErr := os.Remove(filepath.Join(server.uploadsDir, fileName)); removeErr != nil {
			log.Printf("warning: removing orphaned upload %s: %v", fileName, removeErr)
		}
		failFrom(w, err)
		return
	}

	respond(w, http.StatusCreated, viewMedia(media))
}

// handleDeleteMedia removes the media record. When ?property_id= names the
// listing, the stored file is removed from disk too.
func (server *Server) handleDeleteMedia(w http.ResponseWriter, r *http.Request) {
	mediaID, err := pathID(r, "mediaID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid media id")
		return
	}

	if propertyID, err := queryUUID(r, "property_id"); err == nil && propertyID != nil && server.uploadsDir != "" {
		if media, err := server.repo.GetMedia(*propertyID); err == nil {
			for _, item := range media {
				if item.ID != mediaID {
					continue
				}
				if err := os.Remove(filepath.Join(server.uploadsDir, item.FileName)); err != nil && !os.IsNotExist(err) {
					log.Printf("warning: removing media file %s: %v", item.FileName, err)
				}
			}
		}
	}

	if err := server.repo.DeleteMedia(mediaID); err != nil {
		failFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// clientMatchView pairs a client with the explanation of how well the
// listing fits their search profile.
type clientMatchView struct {
	ClientID    uuid.UUID            `json:"client_id"`
	Explanation matching.Explanation `json:"explanation"`
}

// handlePropertyExplanation runs the match the other way around: which
// clients does this listing fit, and why.
func (server *Server) handlePropertyExplanation(w http.ResponseWriter, r *http.Request) {
	propertyID, err := pathID(r, "propertyID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid property id")
		return
	}

	property, err := server.repo.GetProperty(propertyID)
	if err != nil {
		failFrom(w, err)
		return
	}

	profiles, err := server.repo.GetClientProfiles(nil, "")
	if err != nil {
		failFrom(w, err)
		return
	}

	minScore := queryInt(r, "min_score")
	if minScore <= 0 {
		minScore = matching.DefaultMinScore
	}
	limit := queryInt(r, "limit")
	if limit <= 0 {
		limit = matching.DefaultLimit
	}

	views := make([]clientMatchView, 0)
	for _, profile := range profiles {
		explanation := matching.Explain(profile, property)
		if explanation.Score < minScore {
			continue
		}
		views = append(views, clientMatchView{ClientID: profile.UserID, Explanation: explanation})
	}
	sort.Slice(views, func(i, j int) bool {
		return views[i].Explanation.Score > views[j].Explanation.Score
	})
	if len(views) > limit {
		views = views[:limit]
	}

	respond(w, http.StatusOK, views)
}
