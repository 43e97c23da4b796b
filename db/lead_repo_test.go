package db

import (
	"testing"

	"github.com/DIGIT-HABs/back/domain"
)

func TestLeadRepo_GetUnassignedLeads(t *testing.T) {
	t.Run("should return open unassigned leads ordered by score", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		agency := testAgency(t, repo)
		agent := testUser(t, repo, domain.RoleAgent, &agency.ID)

		low := testLead(t, repo, agency.ID)
		low.Score = 20
		if err := repo.UpdateLead(low); err != nil {
			t.Fatalf("updating lead : %v", err)
		}

		high := testLead(t, repo, agency.ID)
		high.Score = 80
		if err := repo.UpdateLead(high); err != nil {
			t.Fatalf("updating lead : %v", err)
		}

		assigned := testLead(t, repo, agency.ID)
		if err := repo.AssignLead(assigned.ID, agent.ID); err != nil {
			t.Fatalf("assigning lead : %v", err)
		}

		got, err := repo.GetUnassignedLeads(agency.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if len(got) != 2 {
			t.Fatalf("\nwanted:\n2\ngot:\n%d", len(got))
		}
		if got[0].ID != high.ID {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", high.ID, got[0].ID)
		}
		if got[1].ID != low.ID {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", low.ID, got[1].ID)
		}
	})
}

func TestLeadRepo_AssignLead(t *testing.T) {
	t.Run("should move a new lead to contacted on assignment", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		agency := testAgency(t, repo)
		agent := testUser(t, repo, domain.RoleAgent, &agency.ID)
		lead := testLead(t, repo, agency.ID)

		err := repo.AssignLead(lead.ID, agent.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		got, err := repo.GetLead(lead.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if got.AssignedTo == nil || *got.AssignedTo != agent.ID {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", agent.ID, got.AssignedTo)
		}
		if got.Status != domain.LeadStatusContacted {
			t.Fatalf("\nwanted:\n%q\ngot:\n%q", domain.LeadStatusContacted, got.Status)
		}
	})

	t.Run("should not change the status of a qualified lead on reassignment", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		agency := testAgency(t, repo)
		agent := testUser(t, repo, domain.RoleAgent, &agency.ID)

		lead := testLead(t, repo, agency.ID)
		lead.Status = domain.LeadStatusQualified
		if err := repo.UpdateLead(lead); err != nil {
			t.Fatalf("updating lead : %v", err)
		}

		err := repo.AssignLead(lead.ID, agent.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		got, err := repo.GetLead(lead.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if got.Status != domain.LeadStatusQualified {
			t.Fatalf("\nwanted:\n%q\ngot:\n%q", domain.LeadStatusQualified, got.Status)
		}
	})
}

func TestLeadRepo_MarkConverted(t *testing.T) {
	t.Run("should stamp the lead as converted and link the created user", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		agency := testAgency(t, repo)
		lead := testLead(t, repo, agency.ID)
		client := testUser(t, repo, domain.RoleClient, &agency.ID)

		err := repo.MarkConverted(lead.ID, client.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		got, err := repo.GetLead(lead.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if got.Status != domain.LeadStatusConverted {
			t.Fatalf("\nwanted:\n%q\ngot:\n%q", domain.LeadStatusConverted, got.Status)
		}
		if got.ConvertedTo == nil || *got.ConvertedTo != client.ID {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", client.ID, got.ConvertedTo)
		}
	})
}

func TestLeadRepo_CountOpenLeads(t *testing.T) {
	t.Run("should only count leads that are still in the funnel", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		agency := testAgency(t, repo)
		agent := testUser(t, repo, domain.RoleAgent, &agency.ID)

		open := testLead(t, repo, agency.ID)
		if err := repo.AssignLead(open.ID, agent.ID); err != nil {
			t.Fatalf("assigning lead : %v", err)
		}

		lost := testLead(t, repo, agency.ID)
		if err := repo.AssignLead(lost.ID, agent.ID); err != nil {
			t.Fatalf("assigning lead : %v", err)
		}
		lost.Status = domain.LeadStatusLost
		if err := repo.UpdateLead(lost); err != nil {
			t.Fatalf("updating lead : %v", err)
		}

		got, err := repo.CountOpenLeads(agent.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if got != 1 {
			t.Fatalf("\nwanted:\n1\ngot:\n%d", got)
		}
	})
}
