package db

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/DIGIT-HABs/back/domain"
)

func testReservation(t *testing.T, repo *Repository, propertyID, clientID, agentID uuid.UUID, scheduledAt time.Time) *domain.Reservation {
	t.Helper()

	id, err := uuid.NewV7()
	if err != nil {
		t.Fatalf("creating uuid: %v", err)
	}
	now := time.Now().UTC().Truncate(time.Millisecond)

	reservation := &domain.Reservation{
		ID:           id,
		PropertyID:   propertyID,
		ClientID:     clientID,
		AgentID:      agentID,
		Kind:         domain.ReservationVisit,
		Status:       domain.ReservationPending,
		ScheduledAt:  scheduledAt,
		Minutes:      domain.DefaultReservationMinutes,
		Participants: 2,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = repo.InsertReservation(reservation)
	if err != nil {
		t.Fatalf("creating test reservation : %v", err)
	}

	return reservation
}

func TestReservationRepo_GetPropertyReservations(t *testing.T) {
	t.Run("should return the reservations overlapping the window", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		agency := testAgency(t, repo)
		agent := testUser(t, repo, domain.RoleAgent, &agency.ID)
		client := testUser(t, repo, domain.RoleClient, &agency.ID)
		property := testProperty(t, repo, agency.ID)

		base := time.Date(2026, time.September, 7, 9, 0, 0, 0, time.UTC)

		inside := testReservation(t, repo, property.ID, client.ID, agent.ID, base.Add(2*time.Hour))
		testReservation(t, repo, property.ID, client.ID, agent.ID, base.Add(48*time.Hour))

		// Starts before the window but its hour-long slot runs into it.
		straddling := testReservation(t, repo, property.ID, client.ID, agent.ID, base.Add(-30*time.Minute))

		got, err := repo.GetPropertyReservations(property.ID, base, base.Add(8*time.Hour))
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if len(got) != 2 {
			t.Fatalf("\nwanted:\n2\ngot:\n%d", len(got))
		}

		gotIDs := map[uuid.UUID]bool{}
		for _, reservation := range got {
			gotIDs[reservation.ID] = true
		}
		if !gotIDs[inside.ID] || !gotIDs[straddling.ID] {
			t.Fatalf("\nwanted:\n%v and %v\ngot:\n%v", inside.ID, straddling.ID, gotIDs)
		}
	})

	t.Run("should ignore cancelled reservations", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		agency := testAgency(t, repo)
		agent := testUser(t, repo, domain.RoleAgent, &agency.ID)
		client := testUser(t, repo, domain.RoleClient, &agency.ID)
		property := testProperty(t, repo, agency.ID)

		base := time.Date(2026, time.September, 7, 9, 0, 0, 0, time.UTC)

		cancelled := testReservation(t, repo, property.ID, client.ID, agent.ID, base.Add(2*time.Hour))
		cancelled.Status = domain.ReservationCancelled
		if err := repo.UpdateReservation(cancelled); err != nil {
			t.Fatalf("updating reservation : %v", err)
		}

		got, err := repo.GetPropertyReservations(property.ID, base, base.Add(8*time.Hour))
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if len(got) != 0 {
			t.Fatalf("\nwanted:\n0\ngot:\n%d", len(got))
		}
	})
}

func TestReservationRepo_GetAgentReservations(t *testing.T) {
	t.Run("should only return the agent's own active reservations", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		agency := testAgency(t, repo)
		agent := testUser(t, repo, domain.RoleAgent, &agency.ID)
		other := testUser(t, repo, domain.RoleAgent, &agency.ID)
		client := testUser(t, repo, domain.RoleClient, &agency.ID)
		property := testProperty(t, repo, agency.ID)

		base := time.Date(2026, time.September, 7, 9, 0, 0, 0, time.UTC)

		mine := testReservation(t, repo, property.ID, client.ID, agent.ID, base.Add(2*time.Hour))
		testReservation(t, repo, property.ID, client.ID, other.ID, base.Add(2*time.Hour))

		cancelled := testReservation(t, repo, property.ID, client.ID, agent.ID, base.Add(4*time.Hour))
		cancelled.Status = domain.ReservationCancelled
		if err := repo.UpdateReservation(cancelled); err != nil {
			t.Fatalf("updating reservation : %v", err)
		}

		got, err := repo.GetAgentReservations(agent.ID, base, base.Add(8*time.Hour))
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if len(got) != 1 {
			t.Fatalf("\nwanted:\n1\ngot:\n%d", len(got))
		}
		if got[0].ID != mine.ID {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", mine.ID, got[0].ID)
		}
	})
}

func TestReservationRepo_ExpirePending(t *testing.T) {
	t.Run("should only expire pending reservations past the cutoff", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		agency := testAgency(t, repo)
		agent := testUser(t, repo, domain.RoleAgent, &agency.ID)
		client := testUser(t, repo, domain.RoleClient, &agency.ID)
		property := testProperty(t, repo, agency.ID)

		now := time.Now().UTC()

		stale := testReservation(t, repo, property.ID, client.ID, agent.ID, now.Add(-48*time.Hour))
		upcoming := testReservation(t, repo, property.ID, client.ID, agent.ID, now.Add(48*time.Hour))

		confirmed := testReservation(t, repo, property.ID, client.ID, agent.ID, now.Add(-48*time.Hour))
		confirmed.Status = domain.ReservationConfirmed
		if err := repo.UpdateReservation(confirmed); err != nil {
			t.Fatalf("updating reservation : %v", err)
		}

		expired, err := repo.ExpirePending(now.Add(-domain.ReservationExpiryDelay))
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if expired != 1 {
			t.Fatalf("\nwanted:\n1\ngot:\n%d", expired)
		}

		got, err := repo.GetReservation(stale.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if got.Status != domain.ReservationExpired {
			t.Fatalf("\nwanted:\n%q\ngot:\n%q", domain.ReservationExpired, got.Status)
		}

		got, err = repo.GetReservation(upcoming.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if got.Status != domain.ReservationPending {
			t.Fatalf("\nwanted:\n%q\ngot:\n%q", domain.ReservationPending, got.Status)
		}
	})
}

func TestReservationRepo_Reminders(t *testing.T) {
	t.Run("should return each due reminder exactly once", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		agency := testAgency(t, repo)
		agent := testUser(t, repo, domain.RoleAgent, &agency.ID)
		client := testUser(t, repo, domain.RoleClient, &agency.ID)
		property := testProperty(t, repo, agency.ID)

		now := time.Now().UTC()

		due := testReservation(t, repo, property.ID, client.ID, agent.ID, now.Add(23*time.Hour))
		due.Status = domain.ReservationConfirmed
		if err := repo.UpdateReservation(due); err != nil {
			t.Fatalf("updating reservation : %v", err)
		}

		// Still pending, never reminded.
		testReservation(t, repo, property.ID, client.ID, agent.ID, now.Add(23*time.Hour))

		got, err := repo.GetDueReminders(now, now.Add(domain.ReservationReminderBefore))
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if len(got) != 1 {
			t.Fatalf("\nwanted:\n1\ngot:\n%d", len(got))
		}
		if got[0].ID != due.ID {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", due.ID, got[0].ID)
		}

		err = repo.MarkReminderSent(due.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		got, err = repo.GetDueReminders(now, now.Add(domain.ReservationReminderBefore))
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if len(got) != 0 {
			t.Fatalf("\nwanted:\n0\ngot:\n%d", len(got))
		}
	})
}
