package automations

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/DIGIT-HABs/back/domain"
)

// DefaultScriptHub is the GitHub repository holding the curated automation
// catalog. A manifest at the repository root lists the published scripts.
const DefaultScriptHub = "https://github.com/DIGIT-HABs/crm-automations"

// ManifestEntry describes one script published in the hub's manifest.
type ManifestEntry struct {
	Slug        string `yaml:"slug"`
	Name        string `yaml:"name"`
	Author      string `yaml:"author"`
	Version     string `yaml:"version"`
	Description string `yaml:"description"`
	File        string `yaml:"file"`
}

// Manifest is the script catalog served from the hub repository root.
type Manifest struct {
	Scripts []ManifestEntry `yaml:"scripts"`
}

// Registry fetches the automation catalog and script bodies from a GitHub
// repository over its raw content endpoint.
type Registry struct {
	client  *http.Client
	repoURL string
	baseURL string
}

// NewRegistry builds a registry client for the given GitHub repository URL.
func NewRegistry(repoURL string) (*Registry, error) {
	authorRepo, err := ExtractAuthorRepo(repoURL)
	if err != nil {
		return nil, fmt.Errorf("parsing author/repo from url %s : %w", repoURL, err)
	}

	return &Registry{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		repoURL: repoURL,
		baseURL: fmt.Sprintf("https://raw.githubusercontent.com/%s/main", authorRepo),
	}, nil
}

// ExtractAuthorRepo extracts the author/repo format from a GitHub URL.
func ExtractAuthorRepo(githubURL string) (string, error) {
	parsedURL, err := url.Parse(githubURL)
	if err != nil {
		return "", err
	}

	// Ensure the host is GitHub
	if parsedURL.Host != "github.com" {
		return "", fmt.Errorf("not a valid GitHub URL")
	}

	// Split the path and extract the author/repo part
	parts := strings.Split(strings.Trim(parsedURL.Path, "/"), "/")
	if len(parts) < 2 {
		return "", fmt.Errorf("URL path is not in the expected format")
	}

	authorRepo := fmt.Sprintf("%s/%s", parts[0], parts[1])
	return authorRepo, nil
}

func (registry *Registry) fetch(name string) ([]byte, error) {
	resp, err := registry.client.Get(fmt.Sprintf("%s/%s", registry.baseURL, name))
	if err != nil {
		return nil, fmt.Errorf("getting %s : %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("getting %s : unexpected status %s", name, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading resp body : %w", err)
	}
	return body, nil
}

// Manifest downloads and parses the hub's script catalog.
func (registry *Registry) Manifest() (*Manifest, error) {
	body, err := registry.fetch("manifest.yaml")
	if err != nil {
		return nil, err
	}

	var manifest Manifest
	if err := yaml.Unmarshal(body, &manifest); err != nil {
		return nil, fmt.Errorf("unmarshalling manifest : %w", err)
	}
	return &manifest, nil
}

// Fetch downloads the script published under the given slug and returns it
// as a disabled script ready to be stored. Enabling is a separate, explicit
// step so a fresh install never runs unreviewed code.
func (registry *Registry) Fetch(slug string) (*domain.Script, error) {
	manifest, err := registry.Manifest()
	if err != nil {
		return nil, err
	}

	var entry *ManifestEntry
	for index := range manifest.Scripts {
		if manifest.Scripts[index].Slug == slug {
			entry = &manifest.Scripts[index]
			break
		}
	}
	if entry == nil {
		return nil, fmt.Errorf("no script named %s in the hub manifest", slug)
	}

	file := entry.File
	if file == "" {
		file = entry.Slug + ".lua"
	}

	code, err := registry.fetch(file)
	if err != nil {
		return nil, fmt.Errorf("downloading script %s : %w", slug, err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating uuid : %w", err)
	}

	return &domain.Script{
		ID:          id,
		Name:        entry.Slug,
		SourceURL:   registry.repoURL,
		Author:      entry.Author,
		Version:     entry.Version,
		LuaContent:  string(code),
		Enabled:     false,
		Description: entry.Description,
		Settings:    map[string]any{},
	}, nil
}

// Install fetches the script for the slug and upserts it into the
// repository. An existing script keeps its enabled flag and settings.
func (registry *Registry) Install(repo domain.ScriptRepository, slug string) (*domain.Script, error) {
	script, err := registry.Fetch(slug)
	if err != nil {
		return nil, err
	}

	if err := repo.UpsertScript(script); err != nil {
		return nil, fmt.Errorf("storing script %s : %w", slug, err)
	}
	return script, nil
}
