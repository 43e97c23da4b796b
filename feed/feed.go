// Package feed renders the XML interchange feed listing portals poll for an
// agency's published properties.
package feed

import (
	"fmt"
	"strconv"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"

	"github.com/DIGIT-HABs/back/domain"
)

// Exporter renders property feeds. The base URL is the public address media
// paths are joined to.
type Exporter struct {
	properties domain.PropertyRepository
	agencies   domain.AgencyRepository
	baseURL    string
	now        func() time.Time
}

// NewExporter creates a feed exporter.
func NewExporter(properties domain.PropertyRepository, agencies domain.AgencyRepository, baseURL string) *Exporter {
	return &Exporter{
		properties: properties,
		agencies:   agencies,
		baseURL:    baseURL,
		now:        time.Now,
	}
}

// ExportAgency renders the feed of an agency's published listings.
func (exporter *Exporter) ExportAgency(agencyID uuid.UUID) ([]byte, error) {
	agency, err := exporter.agencies.GetAgency(agencyID)
	if err != nil {
		return nil, fmt.Errorf("fetching agency %s : %w", agencyID, err)
	}
	properties, err := exporter.properties.GetPublishedProperties(&agencyID)
	if err != nil {
		return nil, fmt.Errorf("fetching published listings : %w", err)
	}
	return exporter.Export(agency, properties)
}

// Export renders the feed document for the given listings. Element order is
// fixed so portals can diff consecutive exports.
func (exporter *Exporter) Export(agency *domain.Agency, properties []*domain.Property) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	feed := doc.CreateElement("feed")
	feed.CreateAttr("generated", exporter.now().UTC().Format(time.RFC3339))

	contact := feed.CreateElement("agency")
	contact.CreateElement("name").SetText(agency.Name)
	if agency.Email != "" {
		contact.CreateElement("email").SetText(agency.Email)
	}
	if agency.Phone != "" {
		contact.CreateElement("phone").SetText(agency.Phone)
	}
	if agency.Address != "" {
		address := agency.Address
		if agency.City != "" {
			address += ", " + agency.City
		}
		contact.CreateElement("address").SetText(address)
	}

	listings := feed.CreateElement("listings")
	listings.CreateAttr("count", strconv.Itoa(len(properties)))
	for _, property := range properties {
		media, err := exporter.properties.GetMedia(property.ID)
		if err != nil {
			return nil, fmt.Errorf("fetching media for %s : %w", property.Reference, err)
		}
		exporter.writeListing(listings, property, media)
	}

	doc.Indent(2)
	output, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("writing feed : %w", err)
	}
	return output, nil
}

func (exporter *Exporter) writeListing(parent *etree.Element, property *domain.Property, media []*domain.PropertyMedia) {
	listing := parent.CreateElement("listing")
	listing.CreateAttr("id", property.ID.String())

	listing.CreateElement("reference").SetText(property.Reference)
	listing.CreateElement("title").SetText(property.Title)
	listing.CreateElement("type").SetText(property.Type)

	price := listing.CreateElement("price")
	price.CreateAttr("currency", "EUR")
	price.SetText(property.Price.String())

	surface := listing.CreateElement("surface")
	surface.CreateAttr("unit", "m2")
	surface.SetText(strconv.FormatFloat(property.Surface, 'f', -1, 64))

	listing.CreateElement("rooms").SetText(strconv.Itoa(property.Rooms))
	if property.Bedrooms > 0 {
		listing.CreateElement("bedrooms").SetText(strconv.Itoa(property.Bedrooms))
	}

	listing.CreateElement("city").SetText(property.City)
	listing.CreateElement("postal_code").SetText(property.PostalCode)

	if property.HasCoordinates() {
		geo := listing.CreateElement("geo")
		geo.CreateElement("latitude").SetText(strconv.FormatFloat(*property.Latitude, 'f', -1, 64))
		geo.CreateElement("longitude").SetText(strconv.FormatFloat(*property.Longitude, 'f', -1, 64))
	}

	if property.EnergyRating != "" {
		listing.CreateElement("energy_rating").SetText(property.EnergyRating)
	}

	if len(media) > 0 {
		pictures := listing.CreateElement("media")
		for _, item := range media {
			pictures.CreateElement("url").SetText(exporter.baseURL + "/media/" + item.FileName)
		}
	}

	if property.Description != "" {
		listing.CreateElement("description").SetText(property.Description)
	}
}
