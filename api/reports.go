package api

import (
	"log"
	"net/http"
	"time"

	"github.com/DIGIT-HABs/back/domain"
)

// respondCSV writes a CSV export with a download filename.
func respondCSV(w http.ResponseWriter, name string, data []byte) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Printf("warning: writing csv response: %v", err)
	}
}

// reportWindow reads the optional ?from= and ?to= bounds. Zero values let
// the reporting service apply its default window.
func reportWindow(r *http.Request) (time.Time, time.Time, error) {
	from, err := queryTime(r, "from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := queryTime(r, "to")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

func (server *Server) handleClientReport(w http.ResponseWriter, r *http.Request) {
	clientID, err := pathID(r, "clientID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid client id")
		return
	}

	report, err := server.reporter.ClientReport(clientID)
	if err != nil {
		failFrom(w, err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		data, err := report.CSV()
		if err != nil {
			failFrom(w, err)
			return
		}
		respondCSV(w, "client-"+clientID.String()+".csv", data)
		return
	}

	respond(w, http.StatusOK, report)
}

func (server *Server) handleAgentReport(w http.ResponseWriter, r *http.Request) {
	agentID, err := pathID(r, "agentID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid agent id")
		return
	}

	viewer := currentUser(r)
	if viewer.Role != domain.RoleAdmin && viewer.ID != agentID {
		fail(w, http.StatusForbidden, "agents may only view their own performance")
		return
	}

	from, to, err := reportWindow(r)
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}

	performance, err := server.reporter.AgentPerformance(agentID, from, to)
	if err != nil {
		failFrom(w, err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		data, err := performance.CSV()
		if err != nil {
			failFrom(w, err)
			return
		}
		respondCSV(w, "agent-"+agentID.String()+".csv", data)
		return
	}

	respond(w, http.StatusOK, performance)
}

func (server *Server) handleAgencyReport(w http.ResponseWriter, r *http.Request) {
	agencyID, err := pathID(r, "agencyID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid agency id")
		return
	}

	from, to, err := reportWindow(r)
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}

	overview, err := server.reporter.AgencyOverview(agencyID, from, to)
	if err != nil {
		failFrom(w, err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		data, err := overview.CSV()
		if err != nil {
			failFrom(w, err)
			return
		}
		respondCSV(w, "agency-"+agencyID.String()+".csv", data)
		return
	}

	respond(w, http.StatusOK, overview)
}
