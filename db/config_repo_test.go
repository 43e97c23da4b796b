package db

import (
	"reflect"
	"testing"
)

func TestConfigRepo_WorkingHours(t *testing.T) {
	t.Run("should carry the seeded monday-to-friday hours", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		got, err := repo.GetWorkingHours()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if len(got) != 5 {
			t.Fatalf("\nwanted:\n5\ngot:\n%d", len(got))
		}
		if got[1] != "09:00-18:00" {
			t.Fatalf("\nwanted:\n%q\ngot:\n%q", "09:00-18:00", got[1])
		}
	})

	t.Run("should save and return the configured hours", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		want := map[int]string{
			1: "09:30-19:00",
			2: "09:30-19:00",
			3: "09:30-19:00",
			4: "09:30-19:00",
			5: "09:30-17:00",
			6: "10:00-13:00",
		}

		err := repo.SetWorkingHours(want)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		got, err := repo.GetWorkingHours()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if !reflect.DeepEqual(got, want) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", want, got)
		}
	})
}

func TestConfigRepo_FeedPortals(t *testing.T) {
	t.Run("should start with no portals enabled", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		got, err := repo.GetFeedPortals()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if len(got) != 0 {
			t.Fatalf("\nwanted:\n0\ngot:\n%d", len(got))
		}
	})

	t.Run("should save and return the enabled portals", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		want := []string{"seloger", "leboncoin"}

		err := repo.SetFeedPortals(want)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		got, err := repo.GetFeedPortals()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if !reflect.DeepEqual(got, want) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", want, got)
		}
	})
}
