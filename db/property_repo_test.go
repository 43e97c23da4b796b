package db

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/DIGIT-HABs/back/domain"
)

func TestPropertyRepo_GetPropertyByReference(t *testing.T) {
	t.Run("should scope the reference lookup to the agency", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		agency := testAgency(t, repo)
		other := testAgency(t, repo)
		property := testProperty(t, repo, agency.ID)

		got, err := repo.GetPropertyByReference(agency.ID, property.Reference)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if got.ID != property.ID {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", property.ID, got.ID)
		}

		_, err = repo.GetPropertyByReference(other.ID, property.Reference)
		if err == nil {
			t.Fatalf("\nwanted:\nan error\ngot:\nnil")
		}
		if !strings.Contains(err.Error(), "no rows") {
			t.Fatalf("\nwanted:\na no rows error\ngot:\n%v", err)
		}
	})
}

func TestPropertyRepo_UpdateProperty(t *testing.T) {
	t.Run("should stamp the publication date on the first transition to available", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		agency := testAgency(t, repo)
		property := testProperty(t, repo, agency.ID)

		if property.PublishedAt != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", property.PublishedAt)
		}

		property.Status = domain.PropertyStatusAvailable
		err := repo.UpdateProperty(property)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		published, err := repo.GetProperty(property.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if published.PublishedAt == nil {
			t.Fatalf("\nwanted:\na publication date\ngot:\nnil")
		}

		firstPublished := *published.PublishedAt

		published.Status = domain.PropertyStatusUnderOffer
		if err := repo.UpdateProperty(published); err != nil {
			t.Fatalf("updating property : %v", err)
		}
		published.Status = domain.PropertyStatusAvailable
		if err := repo.UpdateProperty(published); err != nil {
			t.Fatalf("updating property : %v", err)
		}

		got, err := repo.GetProperty(property.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if got.PublishedAt == nil || !got.PublishedAt.Equal(firstPublished) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", firstPublished, got.PublishedAt)
		}
	})

	t.Run("should persist the price as an exact decimal", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		agency := testAgency(t, repo)
		property := testProperty(t, repo, agency.ID)

		want := "312499.99"
		property.Price = decimal.RequireFromString(want)

		err := repo.UpdateProperty(property)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		got, err := repo.GetProperty(property.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if got.Price.StringFixed(2) != want {
			t.Fatalf("\nwanted:\n%q\ngot:\n%q", want, got.Price.StringFixed(2))
		}
	})
}

func TestPropertyRepo_GetPublishedProperties(t *testing.T) {
	t.Run("should only return available listings that carry a publication date", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		agency := testAgency(t, repo)

		draft := testProperty(t, repo, agency.ID)

		published := testProperty(t, repo, agency.ID)
		published.Status = domain.PropertyStatusAvailable
		if err := repo.UpdateProperty(published); err != nil {
			t.Fatalf("publishing property : %v", err)
		}

		got, err := repo.GetPublishedProperties(&agency.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if len(got) != 1 {
			t.Fatalf("\nwanted:\n1\ngot:\n%d", len(got))
		}
		if got[0].ID == draft.ID {
			t.Fatalf("\nwanted:\nonly published listings\ngot:\na draft")
		}
	})
}

func TestPropertyRepo_Counters(t *testing.T) {
	t.Run("should increment the view and inquiry counters", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		agency := testAgency(t, repo)
		property := testProperty(t, repo, agency.ID)

		for i := 0; i < 3; i++ {
			if err := repo.IncrementViewCount(property.ID); err != nil {
				t.Fatalf("incrementing views : %v", err)
			}
		}
		if err := repo.IncrementInquiryCount(property.ID); err != nil {
			t.Fatalf("incrementing inquiries : %v", err)
		}

		got, err := repo.GetProperty(property.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if got.ViewCount != 3 {
			t.Fatalf("\nwanted:\n3\ngot:\n%d", got.ViewCount)
		}
		if got.InquiryCount != 1 {
			t.Fatalf("\nwanted:\n1\ngot:\n%d", got.InquiryCount)
		}
	})
}

func TestPropertyRepo_Media(t *testing.T) {
	t.Run("should return media in position order", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		agency := testAgency(t, repo)
		property := testProperty(t, repo, agency.ID)
		now := time.Now().UTC().Truncate(time.Millisecond)

		cover := attachTestMedia(t, repo, property.ID, "salon.jpg", 0, now)
		second := attachTestMedia(t, repo, property.ID, "cuisine.jpg", 1, now)

		got, err := repo.GetMedia(property.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if len(got) != 2 {
			t.Fatalf("\nwanted:\n2\ngot:\n%d", len(got))
		}
		if got[0].ID != cover.ID {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", cover.ID, got[0].ID)
		}
		if got[1].ID != second.ID {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", second.ID, got[1].ID)
		}
	})

	t.Run("should return an error when deleting media that doesn't exist", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		id, err := uuid.NewV7()
		if err != nil {
			t.Fatalf("creating uuid: %v", err)
		}

		err = repo.DeleteMedia(id)

		if err == nil {
			t.Fatalf("\nwanted:\nan error\ngot:\nnil")
		}
	})
}

func attachTestMedia(t *testing.T, repo *Repository, propertyID uuid.UUID, fileName string, position int, now time.Time) *domain.PropertyMedia {
	t.Helper()

	id, err := uuid.NewV7()
	if err != nil {
		t.Fatalf("creating uuid: %v", err)
	}

	media := &domain.PropertyMedia{
		ID:          id,
		PropertyID:  propertyID,
		FileName:    fileName,
		ContentType: "image/jpeg",
		Size:        204800,
		Position:    position,
		CreatedAt:   now,
	}

	err = repo.AttachMedia(media)
	if err != nil {
		t.Fatalf("attaching media : %v", err)
	}

	return media
}
