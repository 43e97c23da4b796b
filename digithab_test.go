package digithab

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/DIGIT-HABs/back/core"
	"github.com/DIGIT-HABs/back/db"
	"github.com/DIGIT-HABs/back/domain"
	"github.com/DIGIT-HABs/back/gateway"
)

func openTestRepo(t *testing.T) (*db.Repository, func()) {
	t.Helper()

	tempFile, err := os.CreateTemp(t.TempDir(), "test_*.db")
	if err != nil {
		t.Fatalf("os.CreateTemp() failed: %v", err)
	}
	tempFile.Close()

	dbConn, err := db.New(db.DialectSQLite, tempFile.Name())
	if err != nil {
		t.Fatalf("db.New() failed: %v", err)
	}

	repo := db.NewCRMRepo(dbConn)
	return repo, func() {
		repo.Close()
	}
}

func TestWriteLog(t *testing.T) {
	t.Run("should queue a stamped entry", func(t *testing.T) {
		server, err := New()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		err = server.WriteLog("INFO", "backend started")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		select {
		case entry := <-server.activity:
			if entry.Level != "INFO" {
				t.Errorf("\nwanted:\nINFO\ngot:\n%s", entry.Level)
			}
			if entry.Message != "backend started" {
				t.Errorf("\nwanted:\nbackend started\ngot:\n%s", entry.Message)
			}
			if entry.ID == uuid.Nil {
				t.Errorf("\nwanted:\na generated id\ngot:\n%v", entry.ID)
			}
			if entry.Timestamp.IsZero() {
				t.Errorf("\nwanted:\na timestamp\ngot:\nzero time")
			}
		default:
			t.Fatalf("\nwanted:\nan entry on the activity channel\ngot:\nnothing")
		}
	})

	t.Run("should reject an unknown level", func(t *testing.T) {
		server, err := New()
		if err != nil {
			t.Fatalf("creating server : %v", err)
		}

		err = server.WriteLog("NOTICE", "unsupported")
		if err == nil {
			t.Fatalf("\nwanted:\nan error\ngot:\nnil")
		}
		want := "level should be either: debug, info, warn, error, fatal"
		if err.Error() != want {
			t.Fatalf("\nwanted:\n%s\ngot:\n%v", want, err)
		}
	})

	t.Run("should apply entry options", func(t *testing.T) {
		server, err := New()
		if err != nil {
			t.Fatalf("creating server : %v", err)
		}
		scriptID, err := uuid.NewV7()
		if err != nil {
			t.Fatalf("generating uuid : %v", err)
		}

		err = server.WriteLog("DEBUG", "script output", core.LogWithScriptID(scriptID))
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		entry := <-server.activity
		if entry.ScriptID == nil || *entry.ScriptID != scriptID {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", scriptID, entry.ScriptID)
		}
	})

	t.Run("should abort when an option fails", func(t *testing.T) {
		server, err := New()
		if err != nil {
			t.Fatalf("creating server : %v", err)
		}
		failing := func(entry *domain.Log) error {
			return errors.New("refused")
		}

		err = server.WriteLog("INFO", "doomed", failing)
		if err == nil {
			t.Fatalf("\nwanted:\nan error\ngot:\nnil")
		}
		if !strings.Contains(err.Error(), "applying log option") {
			t.Fatalf("\nwanted:\napplying log option\ngot:\n%v", err)
		}

		select {
		case entry := <-server.activity:
			t.Fatalf("\nwanted:\nno queued entry\ngot:\n%v", entry)
		default:
		}
	})
}

func TestServerNotify(t *testing.T) {
	t.Run("should refuse when notifications are not wired", func(t *testing.T) {
		server, err := New()
		if err != nil {
			t.Fatalf("creating server : %v", err)
		}
		recipientID, err := uuid.NewV7()
		if err != nil {
			t.Fatalf("generating uuid : %v", err)
		}

		err = server.Notify(recipientID, "title", "message", nil)
		if err == nil {
			t.Fatalf("\nwanted:\nan error\ngot:\nnil")
		}
	})
}

func TestGetScriptRepo(t *testing.T) {
	t.Run("should refuse without a repository", func(t *testing.T) {
		server, err := New()
		if err != nil {
			t.Fatalf("creating server : %v", err)
		}

		_, err = server.GetScriptRepo()
		if err == nil {
			t.Fatalf("\nwanted:\nan error\ngot:\nnil")
		}
	})

	t.Run("should hand out the configured repository", func(t *testing.T) {
		repo, teardown := openTestRepo(t)
		defer teardown()

		server, err := New(WithRepo(repo))
		if err != nil {
			t.Fatalf("creating server : %v", err)
		}

		got, err := server.GetScriptRepo()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if got == nil {
			t.Fatalf("\nwanted:\nthe repository\ngot:\nnil")
		}
	})
}

func TestGetCRMReader(t *testing.T) {
	t.Run("should refuse without a repository", func(t *testing.T) {
		server, err := New()
		if err != nil {
			t.Fatalf("creating server : %v", err)
		}

		_, err = server.GetCRMReader()
		if err == nil {
			t.Fatalf("\nwanted:\nan error\ngot:\nnil")
		}
	})
}

func TestGatewayRules(t *testing.T) {
	t.Run("should serve the configured rules without a repository", func(t *testing.T) {
		server, err := New()
		if err != nil {
			t.Fatalf("creating server : %v", err)
		}
		server.Config = &Config{Gateway: GatewayConfig{Rules: []gateway.Rule{
			{Host: "crm.digit-hab.com", Upstream: "http://127.0.0.1:8080"},
		}}}

		rules, err := server.GatewayRules()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if len(rules) != 1 || rules[0].Host != "crm.digit-hab.com" {
			t.Fatalf("\nwanted:\nthe configured rule\ngot:\n%v", rules)
		}
	})

	t.Run("should let stored routes win over configured rules", func(t *testing.T) {
		repo, teardown := openTestRepo(t)
		defer teardown()

		server, err := New(WithRepo(repo))
		if err != nil {
			t.Fatalf("creating server : %v", err)
		}
		server.Config = &Config{Gateway: GatewayConfig{Rules: []gateway.Rule{
			{Host: "crm.digit-hab.com", Upstream: "http://127.0.0.1:8080"},
			{Host: "al-toppe.com", Upstream: "http://127.0.0.1:8002"},
		}}}

		err = repo.CreateOrUpdateRoute("crm.digit-hab.com", "http://127.0.0.1:9090")
		if err != nil {
			t.Fatalf("storing route : %v", err)
		}

		rules, err := server.GatewayRules()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if len(rules) != 2 {
			t.Fatalf("\nwanted:\n2 rules\ngot:\n%v", rules)
		}

		byHost := make(map[string]string, len(rules))
		for _, rule := range rules {
			byHost[rule.Host] = rule.Upstream
		}
		if byHost["crm.digit-hab.com"] != "http://127.0.0.1:9090" {
			t.Errorf("\nwanted:\nhttp://127.0.0.1:9090\ngot:\n%s", byHost["crm.digit-hab.com"])
		}
		if byHost["al-toppe.com"] != "http://127.0.0.1:8002" {
			t.Errorf("\nwanted:\nhttp://127.0.0.1:8002\ngot:\n%s", byHost["al-toppe.com"])
		}
	})
}
