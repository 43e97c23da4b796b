package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// hubEntryView is one installable script from the hub catalog.
type hubEntryView struct {
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Author      string `json:"author"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

func (server *Server) handleListScripts(w http.ResponseWriter, r *http.Request) {
	scripts, err := server.repo.GetScripts()
	if err != nil {
		failFrom(w, err)
		return
	}

	loaded := make(map[string]bool)
	if server.engine != nil {
		for _, name := range server.engine.Names() {
			loaded[name] = true
		}
	}

	views := make([]scriptView, 0, len(scripts))
	for _, script := range scripts {
		views = append(views, viewScript(script, loaded[script.Name]))
	}
	respond(w, http.StatusOK, views)
}

func (server *Server) handleHubManifest(w http.ResponseWriter, r *http.Request) {
	if server.hub == nil {
		fail(w, http.StatusServiceUnavailable, "the script hub is not configured")
		return
	}

	manifest, err := server.hub.Manifest()
	if err != nil {
		failFrom(w, err)
		return
	}

	views := make([]hubEntryView, 0, len(manifest.Scripts))
	for _, entry := range manifest.Scripts {
		views = append(views, hubEntryView{
			Slug:        entry.Slug,
			Name:        entry.Name,
			Author:      entry.Author,
			Version:     entry.Version,
			Description: entry.Description,
		})
	}
	respond(w, http.StatusOK, views)
}

func (server *Server) handleInstallScript(w http.ResponseWriter, r *http.Request) {
	if server.hub == nil {
		fail(w, http.StatusServiceUnavailable, "the script hub is not configured")
		return
	}

	var payload struct {
		Slug string `json:"slug"`
	}
	if err := decode(r, &payload); err != nil {
		badBody(w, err)
		return
	}
	if strings.TrimSpace(payload.Slug) == "" {
		fail(w, http.StatusUnprocessableEntity, "slug is required")
		return
	}

	script, err := server.hub.Install(server.repo, payload.Slug)
	if err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusCreated, viewScript(script, false))
}

// handleEnableScript loads the script into the engine before flipping the
// flag, so a broken script reports its error instead of silently arming.
func (server *Server) handleEnableScript(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		fail(w, http.StatusBadRequest, "a script name is required")
		return
	}

	script, err := server.repo.GetScriptByName(name)
	if err != nil {
		failFrom(w, err)
		return
	}

	if server.engine != nil {
		if err := server.engine.Load(script); err != nil {
			fail(w, http.StatusUnprocessableEntity, "script failed to load: "+err.Error())
			return
		}
	}

	if err := server.repo.SetScriptEnabledByName(name, true); err != nil {
		failFrom(w, err)
		return
	}

	script.Enabled = true
	respond(w, http.StatusOK, viewScript(script, server.engine != nil))
}

func (server *Server) handleDisableScript(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		fail(w, http.StatusBadRequest, "a script name is required")
		return
	}

	script, err := server.repo.GetScriptByName(name)
	if err != nil {
		failFrom(w, err)
		return
	}

	if err := server.repo.SetScriptEnabledByName(name, false); err != nil {
		failFrom(w, err)
		return
	}
	if server.engine != nil {
		server.engine.Unload(name)
	}

	script.Enabled = false
	respond(w, http.StatusOK, viewScript(script, false))
}
