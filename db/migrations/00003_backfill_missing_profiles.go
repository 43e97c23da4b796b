package migrations

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upBackfillMissingProfiles, downBackfillMissingProfiles)
}

// upBackfillMissingProfiles creates a default profile row for every user whose
// role implies one but who was created before profile creation became part of
// registration. Clients get a prospect profile, agents get an empty profile
// tied to their agency.
func upBackfillMissingProfiles(ctx context.Context, tx *sql.Tx) error {
	clientRows, err := tx.QueryContext(ctx, `
		SELECT users.id FROM users
		LEFT JOIN client_profiles ON client_profiles.user_id = users.id
		WHERE users.role = 'client' AND client_profiles.user_id IS NULL`)
	if err != nil {
		return fmt.Errorf("selecting clients without profile : %w", err)
	}

	var clientIDs []string
	for clientRows.Next() {
		var id string
		if err := clientRows.Scan(&id); err != nil {
			clientRows.Close()
			return fmt.Errorf("scanning client id : %w", err)
		}
		clientIDs = append(clientIDs, id)
	}
	if err := clientRows.Err(); err != nil {
		clientRows.Close()
		return fmt.Errorf("iterating clients without profile : %w", err)
	}
	clientRows.Close()

	for _, id := range clientIDs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO client_profiles (user_id, status, priority)
			VALUES ($1, 'prospect', 'medium')`, id)
		if err != nil {
			return fmt.Errorf("creating client profile for %s : %w", id, err)
		}
	}

	agentRows, err := tx.QueryContext(ctx, `
		SELECT users.id, users.agency_id FROM users
		LEFT JOIN agent_profiles ON agent_profiles.user_id = users.id
		WHERE users.role = 'agent' AND users.agency_id IS NOT NULL AND agent_profiles.user_id IS NULL`)
	if err != nil {
		return fmt.Errorf("selecting agents without profile : %w", err)
	}

	type agent struct {
		id       string
		agencyID string
	}
	var agents []agent
	for agentRows.Next() {
		var a agent
		if err := agentRows.Scan(&a.id, &a.agencyID); err != nil {
			agentRows.Close()
			return fmt.Errorf("scanning agent id : %w", err)
		}
		agents = append(agents, a)
	}
	if err := agentRows.Err(); err != nil {
		agentRows.Close()
		return fmt.Errorf("iterating agents without profile : %w", err)
	}
	agentRows.Close()

	for _, a := range agents {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO agent_profiles (user_id, agency_id)
			VALUES ($1, $2)`, a.id, a.agencyID)
		if err != nil {
			return fmt.Errorf("creating agent profile for %s : %w", a.id, err)
		}
	}

	return nil
}

// downBackfillMissingProfiles leaves the created profiles in place. There is
// no way to tell a backfilled profile apart from one created at registration.
func downBackfillMissingProfiles(ctx context.Context, tx *sql.Tx) error {
	return nil
}
