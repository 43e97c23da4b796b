package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/DIGIT-HABs/back/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var _ domain.PropertyRepository = (*Repository)(nil)

// dbProperty represents a property listing as stored in the database.
// It uses sql.Null* types for the optional columns such as the floor number,
// the geocoded coordinates, and the publication timestamp.
type dbProperty struct {
	ID           uuid.UUID       `db:"id"`
	AgencyID     uuid.UUID       `db:"agency_id"`
	AgentID      uuid.NullUUID   `db:"agent_id"`
	Reference    string          `db:"reference"`
	Title        string          `db:"title"`
	Description  string          `db:"description"`
	Type         string          `db:"type"`
	Status       string          `db:"status"`
	Price        decimal.Decimal `db:"price"`
	Surface      float64         `db:"surface"`
	Rooms        int             `db:"rooms"`
	Bedrooms     int             `db:"bedrooms"`
	Bathrooms    int             `db:"bathrooms"`
	Floor        sql.NullInt64   `db:"floor"`
	YearBuilt    sql.NullInt64   `db:"year_built"`
	EnergyRating string          `db:"energy_rating"`
	Features     StringList      `db:"features"`
	Address      string          `db:"address"`
	City         string          `db:"city"`
	PostalCode   string          `db:"postal_code"`
	Latitude     sql.NullFloat64 `db:"latitude"`
	Longitude    sql.NullFloat64 `db:"longitude"`
	ViewCount    int             `db:"view_count"`
	InquiryCount int             `db:"inquiry_count"`
	PublishedAt  sql.NullTime    `db:"published_at"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

// fromDomainProperty converts a domain.Property into a dbProperty.
func fromDomainProperty(property *domain.Property) *dbProperty {
	dbProperty := &dbProperty{
		ID:           property.ID,
		AgencyID:     property.AgencyID,
		Reference:    property.Reference,
		Title:        property.Title,
		Description:  property.Description,
		Type:         property.Type,
		Status:       property.Status,
		Price:        property.Price,
		Surface:      property.Surface,
		Rooms:        property.Rooms,
		Bedrooms:     property.Bedrooms,
		Bathrooms:    property.Bathrooms,
		EnergyRating: property.EnergyRating,
		Features:     StringList(property.Features),
		Address:      property.Address,
		City:         property.City,
		PostalCode:   property.PostalCode,
		ViewCount:    property.ViewCount,
		InquiryCount: property.InquiryCount,
		CreatedAt:    property.CreatedAt,
		UpdatedAt:    property.UpdatedAt,
	}

	if property.AgentID != nil {
		dbProperty.AgentID = uuid.NullUUID{UUID: *property.AgentID, Valid: true}
	}

	if property.Floor != nil {
		dbProperty.Floor = sql.NullInt64{Int64: int64(*property.Floor), Valid: true}
	}

	if property.YearBuilt != nil {
		dbProperty.YearBuilt = sql.NullInt64{Int64: int64(*property.YearBuilt), Valid: true}
	}

	if property.Latitude != nil {
		dbProperty.Latitude = sql.NullFloat64{Float64: *property.Latitude, Valid: true}
	}

	if property.Longitude != nil {
		dbProperty.Longitude = sql.NullFloat64{Float64: *property.Longitude, Valid: true}
	}

	if property.PublishedAt != nil {
		dbProperty.PublishedAt = sql.NullTime{Time: *property.PublishedAt, Valid: true}
	}

	return dbProperty
}

// toDomainProperty converts a dbProperty into a domain.Property.
func toDomainProperty(dbProperty *dbProperty) *domain.Property {
	property := &domain.Property{
		ID:           dbProperty.ID,
		AgencyID:     dbProperty.AgencyID,
		Reference:    dbProperty.Reference,
		Title:        dbProperty.Title,
		Description:  dbProperty.Description,
		Type:         dbProperty.Type,
		Status:       dbProperty.Status,
		Price:        dbProperty.Price,
		Surface:      dbProperty.Surface,
		Rooms:        dbProperty.Rooms,
		Bedrooms:     dbProperty.Bedrooms,
		Bathrooms:    dbProperty.Bathrooms,
		EnergyRating: dbProperty.EnergyRating,
		Features:     []string(dbProperty.Features),
		Address:      dbProperty.Address,
		City:         dbProperty.City,
		PostalCode:   dbProperty.PostalCode,
		ViewCount:    dbProperty.ViewCount,
		InquiryCount: dbProperty.InquiryCount,
		CreatedAt:    dbProperty.CreatedAt,
		UpdatedAt:    dbProperty.UpdatedAt,
	}

	if dbProperty.AgentID.Valid {
		id := dbProperty.AgentID.UUID
		property.AgentID = &id
	}

	if dbProperty.Floor.Valid {
		floor := int(dbProperty.Floor.Int64)
		property.Floor = &floor
	}

	if dbProperty.YearBuilt.Valid {
		year := int(dbProperty.YearBuilt.Int64)
		property.YearBuilt = &year
	}

	if dbProperty.Latitude.Valid {
		lat := dbProperty.Latitude.Float64
		property.Latitude = &lat
	}

	if dbProperty.Longitude.Valid {
		lng := dbProperty.Longitude.Float64
		property.Longitude = &lng
	}

	if dbProperty.PublishedAt.Valid {
		published := dbProperty.PublishedAt.Time
		property.PublishedAt = &published
	}

	return property
}

// InsertProperty saves a new property listing.
func (repo *Repository) InsertProperty(property *domain.Property) error {
	dbProperty := fromDomainProperty(property)
	query := `INSERT INTO properties (id, agency_id, agent_id, reference, title, description, type, status, price, surface, rooms, bedrooms, bathrooms, floor, year_built, energy_rating, features, address, city, postal_code, latitude, longitude, view_count, inquiry_count, published_at, created_at, updated_at)
	          VALUES (:id, :agency_id, :agent_id, :reference, :title, :description, :type, :status, :price, :surface, :rooms, :bedrooms, :bathrooms, :floor, :year_built, :energy_rating, :features, :address, :city, :postal_code, :latitude, :longitude, :view_count, :inquiry_count, :published_at, :created_at, :updated_at)`

	_, err := repo.dbConn.NamedExec(query, dbProperty)
	if err != nil {
		return fmt.Errorf("inserting property %s : %w", property.Reference, err)
	}
	return nil
}

// GetProperty retrieves a property by ID.
func (repo *Repository) GetProperty(id uuid.UUID) (*domain.Property, error) {
	var dbProperty dbProperty
	query := `SELECT * FROM properties WHERE id = ?`

	err := repo.dbConn.Get(&dbProperty, repo.dbConn.Rebind(query), id)
	if err != nil {
		return nil, fmt.Errorf("getting property %s : %w", id, err)
	}

	return toDomainProperty(&dbProperty), nil
}

// GetPropertyByReference retrieves a property by agency and reference.
func (repo *Repository) GetPropertyByReference(agencyID uuid.UUID, reference string) (*domain.Property, error) {
	var dbProperty dbProperty
	query := `SELECT * FROM properties WHERE agency_id = ? AND reference = ?`

	err := repo.dbConn.Get(&dbProperty, repo.dbConn.Rebind(query), agencyID, reference)
	if err != nil {
		return nil, fmt.Errorf("getting property %s : %w", reference, err)
	}

	return toDomainProperty(&dbProperty), nil
}

// GetProperties retrieves properties filtered by agency and status, newest
// first.
func (repo *Repository) GetProperties(agencyID *uuid.UUID, status string) ([]*domain.Property, error) {
	query := `SELECT * FROM properties`

	var conditions []string
	var args []any
	if agencyID != nil {
		conditions = append(conditions, "agency_id = ?")
		args = append(args, *agencyID)
	}
	if status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, status)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	var dbProperties []*dbProperty
	err := repo.dbConn.Select(&dbProperties, repo.dbConn.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("fetching properties : %w", err)
	}

	domainProperties := make([]*domain.Property, len(dbProperties))
	for i, dbProperty := range dbProperties {
		domainProperties[i] = toDomainProperty(dbProperty)
	}
	return domainProperties, nil
}

// GetPublishedProperties retrieves available, published listings for matching
// and feed generation.
func (repo *Repository) GetPublishedProperties(agencyID *uuid.UUID) ([]*domain.Property, error) {
	query := `SELECT * FROM properties WHERE status = 'available' AND published_at IS NOT NULL`

	var args []any
	if agencyID != nil {
		query += " AND agency_id = ?"
		args = append(args, *agencyID)
	}
	query += " ORDER BY published_at DESC"

	var dbProperties []*dbProperty
	err := repo.dbConn.Select(&dbProperties, repo.dbConn.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("fetching published properties : %w", err)
	}

	domainProperties := make([]*domain.Property, len(dbProperties))
	for i, dbProperty := range dbProperties {
		domainProperties[i] = toDomainProperty(dbProperty)
	}
	return domainProperties, nil
}

// UpdateProperty updates a property's details and status. The first
// transition to "available" stamps the publication time, later updates keep
// the original stamp.
func (repo *Repository) UpdateProperty(property *domain.Property) error {
	dbProperty := fromDomainProperty(property)
	if property.Status == domain.PropertyStatusAvailable && !dbProperty.PublishedAt.Valid {
		dbProperty.PublishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}

	query := `UPDATE properties SET
	            agent_id = :agent_id,
	            title = :title,
	            description = :description,
	            type = :type,
	            status = :status,
	            price = :price,
	            surface = :surface,
	            rooms = :rooms,
	            bedrooms = :bedrooms,
	            bathrooms = :bathrooms,
	            floor = :floor,
	            year_built = :year_built,
	            energy_rating = :energy_rating,
	            features = :features,
	            address = :address,
	            city = :city,
	            postal_code = :postal_code,
	            latitude = :latitude,
	            longitude = :longitude,
	            published_at = COALESCE(published_at, :published_at),
	            updated_at = :updated_at
	          WHERE id = :id`

	result, err := repo.dbConn.NamedExec(query, dbProperty)
	if err != nil {
		return fmt.Errorf("updating property %s : %w", property.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected for property %s : %w", property.ID, err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("no property found with id %s to update", property.ID)
	}
	return nil
}

// IncrementViewCount adds one to the listing's view counter.
func (repo *Repository) IncrementViewCount(id uuid.UUID) error {
	query := `UPDATE properties SET view_count = view_count + 1 WHERE id = ?`

	_, err := repo.dbConn.Exec(repo.dbConn.Rebind(query), id)
	if err != nil {
		return fmt.Errorf("incrementing view count for property %s : %w", id, err)
	}
	return nil
}

// IncrementInquiryCount adds one to the listing's inquiry counter.
func (repo *Repository) IncrementInquiryCount(id uuid.UUID) error {
	query := `UPDATE properties SET inquiry_count = inquiry_count + 1 WHERE id = ?`

	_, err := repo.dbConn.Exec(repo.dbConn.Rebind(query), id)
	if err != nil {
		return fmt.Errorf("incrementing inquiry count for property %s : %w", id, err)
	}
	return nil
}

// dbPropertyMedia represents an uploaded media file as stored in the database.
type dbPropertyMedia struct {
	ID          uuid.UUID `db:"id"`
	PropertyID  uuid.UUID `db:"property_id"`
	FileName    string    `db:"file_name"`
	ContentType string    `db:"content_type"`
	Size        int64     `db:"size"`
	Position    int       `db:"sort_order"` // Display order, the first image is the cover.
	CreatedAt   time.Time `db:"created_at"`
}

// toDomainPropertyMedia converts a dbPropertyMedia into a domain.PropertyMedia.
func toDomainPropertyMedia(dbMedia *dbPropertyMedia) *domain.PropertyMedia {
	return &domain.PropertyMedia{
		ID:          dbMedia.ID,
		PropertyID:  dbMedia.PropertyID,
		FileName:    dbMedia.FileName,
		ContentType: dbMedia.ContentType,
		Size:        dbMedia.Size,
		Position:    dbMedia.Position,
		CreatedAt:   dbMedia.CreatedAt,
	}
}

// AttachMedia records an uploaded media file for the property.
func (repo *Repository) AttachMedia(media *domain.PropertyMedia) error {
	dbMedia := &dbPropertyMedia{
		ID:          media.ID,
		PropertyID:  media.PropertyID,
		FileName:    media.FileName,
		ContentType: media.ContentType,
		Size:        media.Size,
		Position:    media.Position,
		CreatedAt:   media.CreatedAt,
	}

	query := `INSERT INTO property_media (id, property_id, file_name, content_type, size, sort_order, created_at)
	          VALUES (:id, :property_id, :file_name, :content_type, :size, :sort_order, :created_at)`

	_, err := repo.dbConn.NamedExec(query, dbMedia)
	if err != nil {
		return fmt.Errorf("attaching media %s to property %s : %w", media.FileName, media.PropertyID, err)
	}
	return nil
}

// GetMedia retrieves the media attached to a property, in display order.
func (repo *Repository) GetMedia(propertyID uuid.UUID) ([]*domain.PropertyMedia, error) {
	var dbMedias []*dbPropertyMedia
	query := `SELECT * FROM property_media WHERE property_id = ? ORDER BY sort_order ASC, created_at ASC`

	err := repo.dbConn.Select(&dbMedias, repo.dbConn.Rebind(query), propertyID)
	if err != nil {
		return nil, fmt.Errorf("fetching media for property %s : %w", propertyID, err)
	}

	domainMedias := make([]*domain.PropertyMedia, len(dbMedias))
	for i, dbMedia := range dbMedias {
		domainMedias[i] = toDomainPropertyMedia(dbMedia)
	}
	return domainMedias, nil
}

// DeleteMedia removes a media record.
func (repo *Repository) DeleteMedia(id uuid.UUID) error {
	query := `DELETE FROM property_media WHERE id = ?`

	result, err := repo.dbConn.Exec(repo.dbConn.Rebind(query), id)
	if err != nil {
		return fmt.Errorf("deleting media %s : %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking deletion rows affected for media %s : %w", id, err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("no media found with id %s to delete", id)
	}
	return nil
}
