package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/auth"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/backends"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/bus"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/comms"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/dispatch"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/domain"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/governance"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/memory"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/monitor"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/policy"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/registry"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/secrets"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/signature"
)

const testSigningKey = "test-signing-key"

func testSecrets() secrets.Store {
	return secrets.NewStaticStore(map[string]string{
		secrets.KeySigningKey:     testSigningKey,
		secrets.KeyAppKey:         "test-app-key",
		secrets.KeyAPITokenSecret: "test-token-secret",
	})
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	reg := registry.New()
	reg.Replace([]domain.Agent{
		{ID: "claude-dispatcher", Name: "Claude Dispatcher", Active: true, Capabilities: []string{"filesystem", "version-control"}},
		{ID: "gizmo-builder", Name: "Gizmo Builder", Active: false, Capabilities: []string{"filesystem"}},
	})

	validator := signature.NewValidator(testSecrets())

	policyEngine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	fsHandler, err := backends.NewFilesystemHandler(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystemHandler failed: %v", err)
	}
	handlers := backends.NewRegistry()
	handlers.MustRegister(domain.OperationFilesystem, fsHandler)

	eventBus := bus.New(log)
	gov := governance.NewLogger(io.Discard)
	mon := monitor.New(reg, eventBus, gov, nil, log, time.Second)

	dispatcher := dispatch.New(reg, validator, policyEngine, handlers, gov, memory.NewInMemoryStore(), eventBus, log, 5*time.Second)

	router := comms.NewRouter(reg, gov, log)
	router.MustRegister(domain.ChannelQueue, comms.NewGovernanceChannel(gov))

	return NewHandler(dispatcher, router, mon, eventBus, log)
}

func signInstruction(t *testing.T, instr *domain.Instruction) {
	t.Helper()
	validator := signature.NewValidator(testSecrets())
	sig, err := validator.Sign(context.Background(), *instr)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	instr.Signature = sig
}

func fsInstruction(id string) domain.Instruction {
	return domain.Instruction{
		InstructionID: id,
		AgentID:       "claude-dispatcher",
		Timestamp:     time.Now().UTC(),
		Operation: domain.Operation{
			Type:       domain.OperationFilesystem,
			Action:     "write",
			Parameters: json.RawMessage(`{"path":"out/x.json","content":"{\"ok\":true}"}`),
		},
	}
}

func postJSON(t *testing.T, e *echo.Echo, h echo.HandlerFunc, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return rec
}

func TestSubmitInstructionValidation(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/instructions", strings.NewReader(`{"agentId":"claude-dispatcher"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.SubmitInstruction(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSubmitInstructionFilesystemWrite(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)

	instr := fsInstruction("instr-fs-1")
	signInstruction(t, &instr)

	rec := postJSON(t, e, h.SubmitInstruction, "/api/v1/instructions", instr)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result domain.ExecutionResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.Status != domain.ExecutionStatusSuccess {
		t.Fatalf("expected success, got %s (%s)", result.Status, result.Error)
	}
	path, _ := result.Output["path"].(string)
	if !strings.HasSuffix(path, "x.json") {
		t.Fatalf("expected output path ending in x.json, got %q", path)
	}
	if len(result.Artifacts) != 1 {
		t.Fatalf("expected one artifact, got %v", result.Artifacts)
	}
	if result.GovernanceLogID == "" {
		t.Fatal("expected a governance log id")
	}
}

func TestSubmitInstructionIdempotent(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)

	instr := fsInstruction("instr-repeat")
	signInstruction(t, &instr)

	first := postJSON(t, e, h.SubmitInstruction, "/api/v1/instructions", instr)
	second := postJSON(t, e, h.SubmitInstruction, "/api/v1/instructions", instr)
	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("expected 200/200, got %d/%d", first.Code, second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("expected identical cached result, got\n%s\n%s", first.Body.String(), second.Body.String())
	}
}

func TestSubmitInstructionTamperedSignature(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)

	instr := fsInstruction("instr-tampered")
	signInstruction(t, &instr)
	instr.Operation.Action = "delete"

	rec := postJSON(t, e, h.SubmitInstruction, "/api/v1/instructions", instr)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var result domain.ExecutionResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.Status != domain.ExecutionStatusFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if result.Error != "Invalid instruction signature" {
		t.Fatalf("unexpected error message: %q", result.Error)
	}
}

func TestExecutionHistoryEndpoint(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)

	for i := 0; i < 15; i++ {
		instr := fsInstruction(fmt.Sprintf("instr-%02d", i))
		signInstruction(t, &instr)
		rec := postJSON(t, e, h.SubmitInstruction, "/api/v1/instructions", instr)
		if rec.Code != http.StatusOK {
			t.Fatalf("submission %d: expected 200, got %d", i, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/executions", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.ListExecutions(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var body struct {
		Count      int                       `json:"count"`
		Executions []*domain.ExecutionResult `json:"executions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body.Count != 10 {
		t.Fatalf("expected 10 retained executions, got %d", body.Count)
	}
	if body.Executions[0].InstructionID != "instr-14" {
		t.Fatalf("expected most recent first, got %s", body.Executions[0].InstructionID)
	}
	if body.Executions[9].InstructionID != "instr-05" {
		t.Fatalf("expected instr-05 last, got %s", body.Executions[9].InstructionID)
	}
}

func TestSendMessageEndpoint(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)

	rec := postJSON(t, e, h.SendMessage, "/api/v1/messages", comms.SendRequest{
		TargetAgentID: "claude-dispatcher",
		Message:       json.RawMessage(`{"text":"hello"}`),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var result comms.SendResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if !result.Success || result.ResponseID == "" {
		t.Fatalf("unexpected result: %+v", result)
	}

	rec = postJSON(t, e, h.SendMessage, "/api/v1/messages", comms.SendRequest{
		TargetAgentID: "ghost-agent",
		Message:       json.RawMessage(`{}`),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.Success || !strings.Contains(result.Error, "agent not found") {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestIngestAgentEvent(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)

	events, cancel := h.events.Subscribe(1)
	defer cancel()

	body := strings.NewReader(`{"kind":"error","message":"critical: oom"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/agents/claude-dispatcher/events", body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("agent_id")
	c.SetParamValues("claude-dispatcher")

	if err := h.IngestAgentEvent(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	select {
	case ev := <-events:
		if ev.AgentID != "claude-dispatcher" || ev.Kind != domain.EventError {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("event never reached the bus")
	}
}

func TestAgentStatusEndpoints(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/agents/status", nil)
	rec := httptest.NewRecorder()
	if err := h.AgentStatuses(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var listing struct {
		Count  int                  `json:"count"`
		Agents []domain.AgentStatus `json:"agents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if listing.Count != 2 {
		t.Fatalf("expected 2 agents, got %d", listing.Count)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/agents/gizmo-builder/status", nil)
	rec = httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("agent_id")
	c.SetParamValues("gizmo-builder")
	if err := h.AgentStatus(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var status domain.AgentStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if status.Health != domain.HealthOffline {
		t.Fatalf("expected inactive agent offline, got %s", status.Health)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/agents/ghost/status", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("agent_id")
	c.SetParamValues("ghost")
	if err := h.AgentStatus(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSystemHealthEndpoint(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/system/health", nil)
	rec := httptest.NewRecorder()
	if err := h.SystemHealth(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var health domain.SystemHealth
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if health.Overall != domain.HealthHealthy {
		t.Fatalf("expected healthy system, got %s", health.Overall)
	}
	if health.AgentCount != 2 || health.ActiveCount != 1 {
		t.Fatalf("unexpected counts: %+v", health)
	}
}

func TestAlertEndpoints(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)

	h.monitor.OnCatalogReloadError(fmt.Errorf("yaml: bad indent"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts?active=true", nil)
	rec := httptest.NewRecorder()
	if err := h.ListAlerts(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var listing struct {
		Count  int            `json:"count"`
		Alerts []domain.Alert `json:"alerts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if listing.Count != 1 {
		t.Fatalf("expected 1 active alert, got %d", listing.Count)
	}
	alertID := listing.Alerts[0].ID

	ack := httptest.NewRequest(http.MethodPost, "/api/v1/alerts/"+alertID+"/acknowledge", nil)
	rec = httptest.NewRecorder()
	c := e.NewContext(ack, rec)
	c.SetParamNames("alert_id")
	c.SetParamValues(alertID)
	if err := h.AcknowledgeAlert(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	res := httptest.NewRequest(http.MethodPost, "/api/v1/alerts/"+alertID+"/resolve", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(res, rec)
	c.SetParamNames("alert_id")
	c.SetParamValues(alertID)
	if err := h.ResolveAlert(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	// Resolved alerts drop out of the active view.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/alerts?active=true", nil)
	rec = httptest.NewRecorder()
	if err := h.ListAlerts(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if listing.Count != 0 {
		t.Fatalf("expected no active alerts, got %d", listing.Count)
	}

	missing := httptest.NewRequest(http.MethodPost, "/api/v1/alerts/nope/acknowledge", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(missing, rec)
	c.SetParamNames("alert_id")
	c.SetParamValues("nope")
	if err := h.AcknowledgeAlert(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRoutesGuardedByAuth(t *testing.T) {
	h := newTestHandler(t)
	authn := auth.NewAuthenticator(testSecrets(), nil)

	e := echo.New()
	h.RegisterRoutes(e, authn.Middleware())

	// No credentials: rejected before any processing.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/executions", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	// App key without a bearer token is still rejected.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/executions", nil)
	req.Header.Set(auth.HeaderAppKey, "test-app-key")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	// Bearer token plus app key passes.
	token, err := authn.Tokens().Issue(context.Background(), "claude-dispatcher", time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/v1/executions", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	req.Header.Set(auth.HeaderAppKey, "test-app-key")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	// Health and metrics stay public.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected public health 200, got %d", rec.Code)
	}
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected public metrics 200, got %d", rec.Code)
	}
}

func TestRateLimitedSubmission(t *testing.T) {
	h := newTestHandler(t)
	limiter := auth.NewRateLimiter(1, 1)

	e := echo.New()
	h.RegisterRoutes(e, limiter.Middleware())

	get := func() int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/executions", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := get(); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := get(); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
}
