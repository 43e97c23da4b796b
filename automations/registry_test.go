package automations

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

const testManifest = `scripts:
  - slug: welcome-lead
    name: Welcome Lead
    author: DIGIT-HAB
    version: 1.2.0
    description: Greets every new lead with a notification.
    file: welcome-lead.lua
  - slug: hot-lead-alert
    name: Hot Lead Alert
    author: DIGIT-HAB
    version: 0.9.1
    description: Pings the assigned agent when a lead scores above 70.
`

func setupHubServer(t *testing.T) (*httptest.Server, *Registry) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/manifest.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testManifest))
	})
	mux.HandleFunc("/welcome-lead.lua", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`function on_lead_created(lead) digithab:log("INFO", "welcome " .. lead:name()) end`))
	})
	mux.HandleFunc("/hot-lead-alert.lua", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`function on_lead_created(lead) if lead:score() > 70 then hot = true end end`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	registry := &Registry{
		client:  server.Client(),
		repoURL: "https://github.com/DIGIT-HABs/crm-automations",
		baseURL: server.URL,
	}
	return server, registry
}

func TestExtractAuthorRepo(t *testing.T) {
	tests := []struct {
		name      string
		githubURL string
		want      string
		wantErr   bool
	}{
		{
			name:      "should extract author/repo from a repository URL",
			githubURL: "https://github.com/DIGIT-HABs/crm-automations",
			want:      "DIGIT-HABs/crm-automations",
		},
		{
			name:      "should ignore extra path segments",
			githubURL: "https://github.com/DIGIT-HABs/crm-automations/tree/main/scripts",
			want:      "DIGIT-HABs/crm-automations",
		},
		{
			name:      "should reject non-GitHub hosts",
			githubURL: "https://gitlab.com/DIGIT-HABs/crm-automations",
			wantErr:   true,
		},
		{
			name:      "should reject URLs without a repo segment",
			githubURL: "https://github.com/DIGIT-HABs",
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractAuthorRepo(tt.githubURL)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("\nwanted:\nerror\ngot:\nnil")
				}
				return
			}
			if err != nil {
				t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
			}
			if got != tt.want {
				t.Errorf("\nwanted:\n%s\ngot:\n%s", tt.want, got)
			}
		})
	}
}

func TestNewRegistry(t *testing.T) {
	t.Run("should derive the raw content URL", func(t *testing.T) {
		registry, err := NewRegistry("https://github.com/DIGIT-HABs/crm-automations")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		want := "https://raw.githubusercontent.com/DIGIT-HABs/crm-automations/main"
		if registry.baseURL != want {
			t.Errorf("\nwanted:\n%s\ngot:\n%s", want, registry.baseURL)
		}
	})

	t.Run("should reject invalid repository URLs", func(t *testing.T) {
		_, err := NewRegistry("https://example.com/not/github")
		if err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}
	})
}

func TestRegistry_Manifest(t *testing.T) {
	_, registry := setupHubServer(t)

	manifest, err := registry.Manifest()
	if err != nil {
		t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
	}

	if len(manifest.Scripts) != 2 {
		t.Fatalf("\nwanted:\n2 scripts\ngot:\n%d", len(manifest.Scripts))
	}

	first := manifest.Scripts[0]
	if first.Slug != "welcome-lead" {
		t.Errorf("\nwanted:\nwelcome-lead\ngot:\n%s", first.Slug)
	}
	if first.Version != "1.2.0" {
		t.Errorf("\nwanted:\n1.2.0\ngot:\n%s", first.Version)
	}
	if first.File != "welcome-lead.lua" {
		t.Errorf("\nwanted:\nwelcome-lead.lua\ngot:\n%s", first.File)
	}

	second := manifest.Scripts[1]
	if second.Slug != "hot-lead-alert" {
		t.Errorf("\nwanted:\nhot-lead-alert\ngot:\n%s", second.Slug)
	}
	if second.File != "" {
		t.Errorf("\nwanted:\nempty file field\ngot:\n%s", second.File)
	}
}

func TestRegistry_Fetch(t *testing.T) {
	t.Run("should download the script body and metadata", func(t *testing.T) {
		_, registry := setupHubServer(t)

		script, err := registry.Fetch("welcome-lead")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if script.Name != "welcome-lead" {
			t.Errorf("\nwanted:\nwelcome-lead\ngot:\n%s", script.Name)
		}
		if script.Author != "DIGIT-HAB" {
			t.Errorf("\nwanted:\nDIGIT-HAB\ngot:\n%s", script.Author)
		}
		if script.Version != "1.2.0" {
			t.Errorf("\nwanted:\n1.2.0\ngot:\n%s", script.Version)
		}
		if script.SourceURL != "https://github.com/DIGIT-HABs/crm-automations" {
			t.Errorf("\nwanted:\nhub repo url\ngot:\n%s", script.SourceURL)
		}
		if !strings.Contains(script.LuaContent, "on_lead_created") {
			t.Errorf("\nwanted:\nlua content with on_lead_created\ngot:\n%s", script.LuaContent)
		}
		if script.Enabled {
			t.Errorf("\nwanted:\ndisabled after install\ngot:\nenabled")
		}
		if script.ID == uuid.Nil {
			t.Errorf("\nwanted:\na generated ID\ngot:\nnil UUID")
		}
	})

	t.Run("should default the file name to slug.lua", func(t *testing.T) {
		_, registry := setupHubServer(t)

		script, err := registry.Fetch("hot-lead-alert")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if !strings.Contains(script.LuaContent, "lead:score() > 70") {
			t.Errorf("\nwanted:\nhot lead alert body\ngot:\n%s", script.LuaContent)
		}
	})

	t.Run("should return error for unknown slugs", func(t *testing.T) {
		_, registry := setupHubServer(t)

		_, err := registry.Fetch("does-not-exist")
		if err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}
		if !strings.Contains(err.Error(), "no script named does-not-exist") {
			t.Errorf("\nwanted:\nerror containing 'no script named does-not-exist'\ngot:\n%v", err)
		}
	})

	t.Run("should return error when the hub is unreachable", func(t *testing.T) {
		server, registry := setupHubServer(t)
		server.Close()

		_, err := registry.Fetch("welcome-lead")
		if err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}
	})
}

func TestRegistry_Install(t *testing.T) {
	t.Run("should store the fetched script", func(t *testing.T) {
		_, registry := setupHubServer(t)
		repo := &mockScriptRepo{}

		script, err := registry.Install(repo, "welcome-lead")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if len(repo.upserted) != 1 {
			t.Fatalf("\nwanted:\n1 upsert\ngot:\n%d", len(repo.upserted))
		}
		if repo.upserted[0].Name != "welcome-lead" {
			t.Errorf("\nwanted:\nwelcome-lead\ngot:\n%s", repo.upserted[0].Name)
		}
		if script.Enabled {
			t.Errorf("\nwanted:\ndisabled after install\ngot:\nenabled")
		}
	})

	t.Run("should return error for unknown slugs", func(t *testing.T) {
		_, registry := setupHubServer(t)
		repo := &mockScriptRepo{}

		_, err := registry.Install(repo, "does-not-exist")
		if err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}
		if len(repo.upserted) != 0 {
			t.Errorf("\nwanted:\nno upserts\ngot:\n%d", len(repo.upserted))
		}
	})
}
