// Command digithab runs the DIGIT-HAB CRM backend and its operational
// tooling: the API server, the tenant gateway, database maintenance, account
// repair, and automation script management.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	digithab "github.com/DIGIT-HABs/back"
	"github.com/DIGIT-HABs/back/auth"
	"github.com/DIGIT-HABs/back/automations"
	"github.com/DIGIT-HABs/back/db"
	"github.com/DIGIT-HABs/back/domain"
)

// defaultAdminEmail is the account db reset recreates so a fresh deployment
// is never locked out.
const defaultAdminEmail = "admin@digit-hab.com"

var (
	flagConfigDir string

	flagAdminEmail    string
	flagAdminFirst    string
	flagAdminLast     string
	flagAdminPassword string

	flagResetYes bool
)

var rootCmd = &cobra.Command{
	Use:   "digithab",
	Short: "DIGIT-HAB real-estate CRM backend",
	Long: `digithab is the backend for the DIGIT-HAB real-estate CRM.

It serves the REST API, the chat WebSocket, and the portal feeds; runs the
background job queues; and fronts co-hosted tenant applications through the
gateway. Configuration lives in config.yaml under the config directory and
is written out with defaults on first run.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the CRM backend until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		server, err := openServer()
		if err != nil {
			return err
		}
		defer server.Repo.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return server.Start(ctx)
	},
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the tenant gateway until interrupted",
	Long: `Runs the host-routing reverse proxy on the configured gateway
address. Routing rules come from config.yaml merged with the routes stored
in the database; TLS pairs, when configured, are served by SNI.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		server, err := openServer()
		if err != nil {
			return err
		}
		defer server.Repo.Close()

		proxy, err := server.BuildGateway()
		if err != nil {
			return err
		}
		gatewayListener, err := proxy.GetListener(server.Config.Gateway.Address, server.Config.Gateway.Port)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		go func() {
			<-ctx.Done()
			proxy.Close()
		}()

		log.Printf("[*] gateway listening on %s:%s", proxy.Addr, proxy.Port)
		if err := proxy.Serve(gatewayListener); err != nil && ctx.Err() == nil {
			return fmt.Errorf("serving gateway : %w", err)
		}
		return nil
	},
}

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database maintenance",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}
		conn, err := db.New(config.Database.Dialect, config.Database.DSN)
		if err != nil {
			return err
		}
		defer conn.Close()
		fmt.Println("database schema is up to date")
		return nil
	},
}

var dbResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop all data, rebuild the schema, and recreate the default admin",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !flagResetYes {
			return fmt.Errorf("refusing to drop all data without --yes")
		}

		config, err := loadConfig()
		if err != nil {
			return err
		}
		conn, err := db.Reset(config.Database.Dialect, config.Database.DSN)
		if err != nil {
			return err
		}
		repo := db.NewCRMRepo(conn)
		defer repo.Close()

		password := flagAdminPassword
		if password == "" {
			if password, err = randomPassword(); err != nil {
				return err
			}
		}
		admin, err := createAdmin(repo, defaultAdminEmail, "Admin", "Digit-Hab", password)
		if err != nil {
			return err
		}

		fmt.Println("database reset")
		fmt.Printf("admin account: %s\n", admin.Email)
		if flagAdminPassword == "" {
			fmt.Printf("admin password: %s\n", password)
		}
		return nil
	},
}

var dbSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load a small development dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}
		conn, err := db.New(config.Database.Dialect, config.Database.DSN)
		if err != nil {
			return err
		}
		repo := db.NewCRMRepo(conn)
		defer repo.Close()

		if err := seed(repo); err != nil {
			return err
		}
		fmt.Println("development dataset loaded")
		return nil
	},
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Account maintenance",
}

var usersCreateAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an administrator account",
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagAdminEmail == "" {
			return fmt.Errorf("--email is required")
		}

		repo, err := openRepo()
		if err != nil {
			return err
		}
		defer repo.Close()

		password := flagAdminPassword
		if password == "" {
			if password, err = randomPassword(); err != nil {
				return err
			}
		}
		admin, err := createAdmin(repo, flagAdminEmail, flagAdminFirst, flagAdminLast, password)
		if err != nil {
			return err
		}

		fmt.Printf("admin account: %s\n", admin.Email)
		if flagAdminPassword == "" {
			fmt.Printf("admin password: %s\n", password)
		}
		return nil
	},
}

var usersBackfillCmd = &cobra.Command{
	Use:   "backfill-profiles",
	Short: "Create the profile rows missing for existing agents and clients",
	Long: `Accounts created before profile auto-creation can exist without the
agent or client profile their role requires, which breaks matching and
reporting for them. This walks both roles and creates the missing rows.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepo()
		if err != nil {
			return err
		}
		defer repo.Close()

		agents, clients, err := backfillProfiles(repo)
		if err != nil {
			return err
		}
		fmt.Printf("created %d agent profiles and %d client profiles\n", agents, clients)
		return nil
	},
}

var automationsCmd = &cobra.Command{
	Use:   "automations",
	Short: "Automation script management",
}

var automationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed automation scripts",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepo()
		if err != nil {
			return err
		}
		defer repo.Close()

		scripts, err := repo.GetScripts()
		if err != nil {
			return err
		}

		writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "NAME\tVERSION\tAUTHOR\tENABLED")
		for _, script := range scripts {
			fmt.Fprintf(writer, "%s\t%s\t%s\t%t\n", script.Name, script.Version, script.Author, script.Enabled)
		}
		return writer.Flush()
	},
}

var automationsInstallCmd = &cobra.Command{
	Use:   "install [slug]",
	Short: "Install an automation script from the hub",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}
		repo, err := openRepo()
		if err != nil {
			return err
		}
		defer repo.Close()

		hub, err := automations.NewRegistry(config.ScriptHub)
		if err != nil {
			return err
		}
		script, err := hub.Install(repo, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("installed %s %s by %s\n", script.Name, script.Version, script.Author)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config", "", "config directory (default: the digithab folder under the user config directory)")

	dbResetCmd.Flags().BoolVar(&flagResetYes, "yes", false, "confirm dropping all data")
	dbResetCmd.Flags().StringVar(&flagAdminPassword, "admin-password", "", "password for the recreated admin (default: generated)")

	usersCreateAdminCmd.Flags().StringVar(&flagAdminEmail, "email", "", "login email")
	usersCreateAdminCmd.Flags().StringVar(&flagAdminFirst, "first-name", "", "given name")
	usersCreateAdminCmd.Flags().StringVar(&flagAdminLast, "last-name", "", "family name")
	usersCreateAdminCmd.Flags().StringVar(&flagAdminPassword, "password", "", "password (default: generated)")

	dbCmd.AddCommand(dbMigrateCmd, dbResetCmd, dbSeedCmd)
	usersCmd.AddCommand(usersCreateAdminCmd, usersBackfillCmd)
	automationsCmd.AddCommand(automationsListCmd, automationsInstallCmd)
	rootCmd.AddCommand(serveCmd, gatewayCmd, dbCmd, usersCmd, automationsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func configDir() string {
	if flagConfigDir != "" {
		return flagConfigDir
	}
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return path.Join(base, "digithab")
}

// loadConfig reads config.yaml without opening the database.
func loadConfig() (*digithab.Config, error) {
	server, err := digithab.New(digithab.WithConfigDir(configDir()))
	if err != nil {
		return nil, err
	}
	return server.Config, nil
}

// openRepo opens the configured database and wraps it in the repository.
func openRepo() (*db.Repository, error) {
	config, err := loadConfig()
	if err != nil {
		return nil, err
	}
	conn, err := db.New(config.Database.Dialect, config.Database.DSN)
	if err != nil {
		return nil, err
	}
	return db.NewCRMRepo(conn), nil
}

// openServer assembles a fully configured server with its repository.
func openServer() (*digithab.Server, error) {
	server, err := digithab.New(digithab.WithConfigDir(configDir()))
	if err != nil {
		return nil, err
	}
	conn, err := db.New(server.Config.Database.Dialect, server.Config.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := server.WithOptions(digithab.WithRepo(db.NewCRMRepo(conn))); err != nil {
		return nil, err
	}
	return server, nil
}

func randomPassword() (string, error) {
	raw := make([]byte, 12)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating password : %w", err)
	}
	return hex.EncodeToString(raw), nil
}

func createAdmin(repo *db.Repository, email, firstName, lastName, password string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("creating user id : %w", err)
	}
	now := time.Now().UTC().Truncate(time.Millisecond)

	admin := &domain.User{
		ID:           id,
		Email:        email,
		Username:     emailLocalPart(email),
		PasswordHash: hash,
		FirstName:    firstName,
		LastName:     lastName,
		Role:         domain.RoleAdmin,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := repo.InsertUser(admin); err != nil {
		return nil, fmt.Errorf("creating admin account : %w", err)
	}
	return admin, nil
}

func emailLocalPart(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}

// backfillProfiles creates the missing profile rows. Agents without an
// agency cannot get a profile and are reported instead of failing the run.
func backfillProfiles(repo *db.Repository) (agents int, clients int, err error) {
	now := time.Now().UTC().Truncate(time.Millisecond)

	orphanedAgents, err := repo.GetUsersWithoutProfile(domain.RoleAgent)
	if err != nil {
		return 0, 0, fmt.Errorf("listing agents without profile : %w", err)
	}
	for _, agent := range orphanedAgents {
		if agent.AgencyID == nil {
			log.Printf("warning: agent %s has no agency, skipping", agent.Email)
			continue
		}
		profile := &domain.AgentProfile{
			UserID:    agent.ID,
			AgencyID:  *agent.AgencyID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := repo.InsertAgentProfile(profile); err != nil {
			return agents, clients, fmt.Errorf("creating agent profile for %s : %w", agent.Email, err)
		}
		agents++
	}

	orphanedClients, err := repo.GetUsersWithoutProfile(domain.RoleClient)
	if err != nil {
		return agents, 0, fmt.Errorf("listing clients without profile : %w", err)
	}
	for _, client := range orphanedClients {
		profile := &domain.ClientProfile{
			UserID:    client.ID,
			Status:    domain.ClientStatusProspect,
			Priority:  domain.PriorityMedium,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := repo.InsertClientProfile(profile); err != nil {
			return agents, clients, fmt.Errorf("creating client profile for %s : %w", client.Email, err)
		}
		clients++
	}
	return agents, clients, nil
}

// seed loads a small Lyon agency with one agent, one client, and two
// published listings, enough to click through every screen.
func seed(repo *db.Repository) error {
	now := time.Now().UTC().Truncate(time.Millisecond)

	agencyID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("creating agency id : %w", err)
	}
	agency := &domain.Agency{
		ID:            agencyID,
		Name:          "DIGIT-HAB Lyon",
		Slug:          "digit-hab-lyon",
		Plan:          domain.PlanPremium,
		MaxAgents:     domain.DefaultMaxAgents,
		MaxProperties: domain.DefaultMaxProperties,
		MaxClients:    domain.DefaultMaxClients,
		Email:         "contact@digit-hab.com",
		City:          "Lyon",
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := repo.InsertAgency(agency); err != nil {
		return fmt.Errorf("seeding agency : %w", err)
	}

	agent, err := seedUser(repo, "laurent@digit-hab.com", "Laurent", "Mercier", domain.RoleAgent, &agencyID)
	if err != nil {
		return err
	}
	if err := repo.InsertAgentProfile(&domain.AgentProfile{
		UserID:      agent.ID,
		AgencyID:    agencyID,
		Bio:         "Conseiller immobilier sur Lyon et sa périphérie.",
		Specialties: []string{"sale", "rental"},
		Sectors:     []string{"Lyon 3", "Lyon 6", "Villeurbanne"},
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		return fmt.Errorf("seeding agent profile : %w", err)
	}

	client, err := seedUser(repo, "camille@example.com", "Camille", "Dubois", domain.RoleClient, nil)
	if err != nil {
		return err
	}
	budgetMax := 350000.0
	if err := repo.InsertClientProfile(&domain.ClientProfile{
		UserID:        client.ID,
		AssignedAgent: &agent.ID,
		Status:        domain.ClientStatusProspect,
		Priority:      domain.PriorityMedium,
		BudgetMax:     &budgetMax,
		PropertyType:  domain.PropertyTypeApartment,
		Locations:     []string{"Lyon"},
		CreatedAt:     now,
		UpdatedAt:     now,
	}); err != nil {
		return fmt.Errorf("seeding client profile : %w", err)
	}

	listings := []*domain.Property{
		{
			Reference:   "APA-2026-SEED01",
			Title:       "T3 lumineux avec balcon, Lyon 6e",
			Description: "Appartement traversant au calme, proche du parc de la Tête d'Or.",
			Type:        domain.PropertyTypeApartment,
			Price:       decimal.NewFromInt(329000),
			Surface:     68,
			Rooms:       3,
			Bedrooms:    2,
			Bathrooms:   1,
			Features:    []string{"balcony", "elevator"},
			Address:     "12 cours Vitton",
			City:        "Lyon",
			PostalCode:  "69006",
		},
		{
			Reference:   "MAI-2026-SEED02",
			Title:       "Maison familiale avec jardin, Villeurbanne",
			Description: "Maison des années 30 rénovée, jardin clos de 200 m².",
			Type:        domain.PropertyTypeHouse,
			Price:       decimal.NewFromInt(485000),
			Surface:     110,
			Rooms:       5,
			Bedrooms:    4,
			Bathrooms:   2,
			Features:    []string{"garden", "garage"},
			Address:     "8 rue des Bienvenus",
			City:        "Villeurbanne",
			PostalCode:  "69100",
		},
	}
	for _, listing := range listings {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("creating property id : %w", err)
		}
		listing.ID = id
		listing.AgencyID = agencyID
		listing.AgentID = &agent.ID
		listing.Status = domain.PropertyStatusDraft
		listing.CreatedAt = now
		listing.UpdatedAt = now
		if err := repo.InsertProperty(listing); err != nil {
			return fmt.Errorf("seeding property %s : %w", listing.Reference, err)
		}
		listing.Status = domain.PropertyStatusAvailable
		if err := repo.UpdateProperty(listing); err != nil {
			return fmt.Errorf("publishing property %s : %w", listing.Reference, err)
		}
	}
	return nil
}

func seedUser(repo *db.Repository, email, firstName, lastName, role string, agencyID *uuid.UUID) (*domain.User, error) {
	password, err := randomPassword()
	if err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("creating user id : %w", err)
	}
	now := time.Now().UTC().Truncate(time.Millisecond)

	user := &domain.User{
		ID:           id,
		Email:        email,
		Username:     emailLocalPart(email),
		PasswordHash: hash,
		FirstName:    firstName,
		LastName:     lastName,
		Role:         role,
		AgencyID:     agencyID,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := repo.InsertUser(user); err != nil {
		return nil, fmt.Errorf("seeding user %s : %w", email, err)
	}
	fmt.Printf("seeded %s account %s (password: %s)\n", role, email, password)
	return user, nil
}
