package automations

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/DIGIT-HABs/back/domain"
)

type mockCRMService struct {
	WriteLogFunc      func(level string, message string, options ...func(log *domain.Log) error) error
	NotifyFunc        func(recipientID uuid.UUID, title string, message string, data map[string]any) error
	GetScriptRepoFunc func() (domain.ScriptRepository, error)
	GetCRMReaderFunc  func() (CRMReader, error)
}

func (m *mockCRMService) WriteLog(level string, message string, options ...func(log *domain.Log) error) error {
	if m.WriteLogFunc != nil {
		return m.WriteLogFunc(level, message, options...)
	}
	return nil
}

func (m *mockCRMService) Notify(recipientID uuid.UUID, title string, message string, data map[string]any) error {
	if m.NotifyFunc != nil {
		return m.NotifyFunc(recipientID, title, message, data)
	}
	return nil
}

func (m *mockCRMService) GetScriptRepo() (domain.ScriptRepository, error) {
	if m.GetScriptRepoFunc != nil {
		return m.GetScriptRepoFunc()
	}
	return nil, nil
}

func (m *mockCRMService) GetCRMReader() (CRMReader, error) {
	if m.GetCRMReaderFunc != nil {
		return m.GetCRMReaderFunc()
	}
	return nil, nil
}

type mockScriptRepo struct {
	scripts       []*domain.Script
	settingsStore map[uuid.UUID]map[string]any
	upserted      []*domain.Script
	forceSetError bool
}

func (m *mockScriptRepo) GetScripts() ([]*domain.Script, error) { return m.scripts, nil }

func (m *mockScriptRepo) GetScriptByName(name string) (*domain.Script, error) {
	for _, script := range m.scripts {
		if script.Name == name {
			return script, nil
		}
	}
	return nil, fmt.Errorf("no script found with name %s", name)
}

func (m *mockScriptRepo) GetScriptLuaCodeByName(name string) (string, error) {
	script, err := m.GetScriptByName(name)
	if err != nil {
		return "", err
	}
	return script.LuaContent, nil
}

func (m *mockScriptRepo) UpdateScriptLuaCodeByName(name string, code string) error {
	script, err := m.GetScriptByName(name)
	if err != nil {
		return err
	}
	script.LuaContent = code
	return nil
}

func (m *mockScriptRepo) SetScriptEnabledByName(name string, enabled bool) error {
	script, err := m.GetScriptByName(name)
	if err != nil {
		return err
	}
	script.Enabled = enabled
	return nil
}

func (m *mockScriptRepo) UpsertScript(script *domain.Script) error {
	m.upserted = append(m.upserted, script)
	for _, existing := range m.scripts {
		if existing.Name == script.Name {
			existing.SourceURL = script.SourceURL
			existing.Author = script.Author
			existing.Version = script.Version
			existing.LuaContent = script.LuaContent
			existing.Description = script.Description
			return nil
		}
	}
	m.scripts = append(m.scripts, script)
	return nil
}

func (m *mockScriptRepo) GetScriptSettingsByUUID(id uuid.UUID) (map[string]any, error) {
	if settings, ok := m.settingsStore[id]; ok {
		return settings, nil
	}
	return make(map[string]any), nil
}

func (m *mockScriptRepo) SetScriptSettingsByUUID(id uuid.UUID, settings map[string]any) error {
	if m.forceSetError {
		return errors.New("forced set error")
	}
	if m.settingsStore == nil {
		m.settingsStore = make(map[uuid.UUID]map[string]any)
	}
	m.settingsStore[id] = settings
	return nil
}

type mockCRMReader struct {
	properties map[uuid.UUID]*domain.Property
	leads      map[uuid.UUID]*domain.Lead
	clients    map[uuid.UUID]*domain.ClientProfile
	users      map[uuid.UUID]*domain.User

	propertyCount int
	clientCount   int
	openLeadCount int
}

func (m *mockCRMReader) GetProperty(id uuid.UUID) (*domain.Property, error) {
	if property, ok := m.properties[id]; ok {
		return property, nil
	}
	return nil, fmt.Errorf("no property found with id %s", id)
}

func (m *mockCRMReader) GetLead(id uuid.UUID) (*domain.Lead, error) {
	if lead, ok := m.leads[id]; ok {
		return lead, nil
	}
	return nil, fmt.Errorf("no lead found with id %s", id)
}

func (m *mockCRMReader) GetClientProfile(userID uuid.UUID) (*domain.ClientProfile, error) {
	if client, ok := m.clients[userID]; ok {
		return client, nil
	}
	return nil, fmt.Errorf("no client profile found for user %s", userID)
}

func (m *mockCRMReader) GetUser(id uuid.UUID) (*domain.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return nil, fmt.Errorf("no user found with id %s", id)
}

func (m *mockCRMReader) CountProperties() (int, error)     { return m.propertyCount, nil }
func (m *mockCRMReader) CountClients() (int, error)        { return m.clientCount, nil }
func (m *mockCRMReader) CountOpenLeadsTotal() (int, error) { return m.openLeadCount, nil }

func setupTestScript(t *testing.T, luaCode string, options ...func(*Runtime) error) (*Runtime, *mockCRMService) {
	t.Helper()

	id, err := uuid.NewV7()
	if err != nil {
		t.Fatalf("generating uuid : %v", err)
	}
	script := &domain.Script{
		ID:         id,
		Name:       "test-script",
		LuaContent: luaCode,
	}
	runtime := &Runtime{Data: script}

	mockService := &mockCRMService{}

	err = runtime.PrepareState(mockService, options)
	if err != nil {
		t.Fatalf("preparing state: %v", err)
	}

	return runtime, mockService
}

func testLead(t *testing.T) *domain.Lead {
	t.Helper()

	id, err := uuid.NewV7()
	if err != nil {
		t.Fatalf("generating uuid : %v", err)
	}
	budget := 450000.0
	return &domain.Lead{
		ID:           id,
		Source:       "website",
		FirstName:    "Claire",
		LastName:     "Fontaine",
		Email:        "claire.fontaine@example.com",
		Phone:        "+33612345678",
		Message:      "Recherche un T3 lumineux",
		Budget:       &budget,
		PropertyType: "apartment",
		Locations:    []string{"Lyon 3e", "Lyon 6e"},
		Score:        55,
		Status:       domain.LeadStatusNew,
	}
}

func testAgent(t *testing.T) *domain.User {
	t.Helper()

	id, err := uuid.NewV7()
	if err != nil {
		t.Fatalf("generating uuid : %v", err)
	}
	return &domain.User{
		ID:        id,
		Email:     "m.leroy@digit-hab.com",
		Username:  "m.leroy",
		FirstName: "Marc",
		LastName:  "Leroy",
		Role:      domain.RoleAgent,
		Active:    true,
	}
}
