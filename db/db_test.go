package db

import (
	"os"
	"testing"
	"time"

	"github.com/DIGIT-HABs/back/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func setupTestDB(t *testing.T) (*Repository, func()) {
	t.Helper()

	tempFile, err := os.CreateTemp(t.TempDir(), "test_*.db")
	if err != nil {
		t.Fatalf("os.CreateTemp() failed: %v", err)
	}
	tempFile.Close()

	dbConn, err := New(DialectSQLite, tempFile.Name())
	if err != nil {
		t.Fatalf("db.New() failed: %v", err)
	}

	repo := NewCRMRepo(dbConn)

	teardown := func() {
		repo.Close()
		os.Remove(tempFile.Name())
	}

	return repo, teardown
}

func testAgency(t *testing.T, repo *Repository) *domain.Agency {
	t.Helper()
	id, err := uuid.NewV7()
	if err != nil {
		t.Fatalf("creating uuid: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	agency := &domain.Agency{
		ID:            id,
		Name:          "Agence du Port",
		Slug:          "agence-du-port-" + id.String()[:8],
		Plan:          domain.PlanBasic,
		MaxAgents:     domain.DefaultMaxAgents,
		MaxProperties: domain.DefaultMaxProperties,
		MaxClients:    domain.DefaultMaxClients,
		Features:      map[string]bool{"automations": true},
		Email:         "contact@agence-du-port.fr",
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := repo.InsertAgency(agency); err != nil {
		t.Fatalf("inserting agency: %v", err)
	}
	return agency
}

func testUser(t *testing.T, repo *Repository, role string, agencyID *uuid.UUID) *domain.User {
	t.Helper()
	id, err := uuid.NewV7()
	if err != nil {
		t.Fatalf("creating uuid: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	user := &domain.User{
		ID:        id,
		Email:     id.String()[:13] + "@digit-hab.com",
		Username:  "user_" + id.String()[:13],
		FirstName: "Camille",
		LastName:  "Durand",
		Role:      role,
		AgencyID:  agencyID,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := repo.InsertUser(user); err != nil {
		t.Fatalf("inserting user: %v", err)
	}
	return user
}

func testProperty(t *testing.T, repo *Repository, agencyID uuid.UUID) *domain.Property {
	t.Helper()
	id, err := uuid.NewV7()
	if err != nil {
		t.Fatalf("creating uuid: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	property := &domain.Property{
		ID:        id,
		AgencyID:  agencyID,
		Reference: "APT-" + id.String()[:8],
		Title:     "T3 lumineux avec balcon",
		Type:      domain.PropertyTypeApartment,
		Status:    domain.PropertyStatusDraft,
		Price:     decimal.RequireFromString("285000"),
		Surface:   64.5,
		Rooms:     3,
		Bedrooms:  2,
		Bathrooms: 1,
		City:      "Nantes",
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := repo.InsertProperty(property); err != nil {
		t.Fatalf("inserting property: %v", err)
	}
	return property
}

func testLead(t *testing.T, repo *Repository, agencyID uuid.UUID) *domain.Lead {
	t.Helper()
	id, err := uuid.NewV7()
	if err != nil {
		t.Fatalf("creating uuid: %v", err)
	}

	budget := 300000.0
	now := time.Now().UTC().Truncate(time.Millisecond)
	lead := &domain.Lead{
		ID:           id,
		AgencyID:     agencyID,
		Source:       "website",
		FirstName:    "Sophie",
		LastName:     "Martin",
		Email:        id.String()[:13] + "@example.com",
		Message:      "Je cherche un appartement sur Nantes",
		Budget:       &budget,
		PropertyType: domain.PropertyTypeApartment,
		Locations:    []string{"Nantes"},
		Score:        40,
		Status:       domain.LeadStatusNew,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := repo.InsertLead(lead); err != nil {
		t.Fatalf("inserting lead: %v", err)
	}
	return lead
}
