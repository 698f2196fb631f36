package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"hazardline/internal/catalog"
	"hazardline/internal/config"
	"hazardline/internal/db"
	"hazardline/internal/domain"
	"hazardline/internal/engine"
	"hazardline/internal/engine/auth"
	"hazardline/internal/errclass"
	"hazardline/internal/events"
	"hazardline/internal/logging"
	"hazardline/internal/metrics"
	"hazardline/internal/migrate"
	"hazardline/internal/repo"
	"hazardline/internal/stage"
	hazardlinesdk "hazardline/sdk/go"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Repo   repo.Repo
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	return newTestServerWith(t, func(*Config) {})
}

func newTestServerWith(t *testing.T, adjust func(*Config)) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if _, err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	r := repo.Repo{DB: conn}
	rec := events.Writer{Log: r}
	e := engine.New(r, rec, cfg)
	e.Logger = logging.Discard()
	srvCfg := Config{
		Engine:   e,
		Catalog:  catalog.Service{Store: r, Events: rec, Logger: e.Logger},
		Events:   r,
		Keys:     r,
		Metrics:  metrics.New(),
		Logger:   e.Logger,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testSecret, AllowLegacyActorHeader: true},
	}
	adjust(&srvCfg)
	handler, err := New(srvCfg)
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Repo:   r,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func as(actor string) map[string]string { return map[string]string{"X-Actor-Id": actor} }

func submitHazard(t *testing.T, srv *testServer) domain.Hazard {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/hazards", map[string]any{
		"title":       "Leaking valve",
		"description": "Hydraulic fluid under hangar 3 pump",
		"severity":    "High",
		"reported_by": "john",
	}, as("john"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit status %d: %s", res.StatusCode, string(data))
	}
	var h domain.Hazard
	if err := json.Unmarshal(data, &h); err != nil {
		t.Fatalf("unmarshal hazard: %v", err)
	}
	return h
}

func advanceTo(t *testing.T, srv *testServer, id string, target stage.Stage) domain.Hazard {
	t.Helper()
	var h domain.Hazard
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/hazards/"+id, nil, as("local-user"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get status %d: %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &h)
	for h.Stage != target {
		next, ok := stage.Next(h.Stage)
		if !ok {
			t.Fatalf("cannot reach %s", target)
		}
		res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/hazards/"+id+"/advance", map[string]string{"stage": string(next)}, as("local-user"))
		if res.StatusCode != http.StatusOK {
			t.Fatalf("advance to %s status %d: %s", next, res.StatusCode, string(data))
		}
		h = domain.Hazard{}
		_ = json.Unmarshal(data, &h)
	}
	return h
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env.Error.Code
}

func TestSubmitAndAdvance(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	h := submitHazard(t, srv)
	if h.ID != "HZ-001" || h.Stage != stage.Submitted {
		t.Fatalf("submitted hazard = %s in %s", h.ID, h.Stage)
	}

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/hazards/HZ-001/advance", map[string]string{"stage": "SmInitialReview"}, as("local-user"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("advance status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/hazards/HZ-001/advance", map[string]string{"stage": "SmCaReview"}, as("local-user"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("skip status %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "invalid_transition" {
		t.Fatalf("skip code = %s", code)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/hazards/HZ-001/history", nil, as("local-user"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("history status %d: %s", res.StatusCode, string(data))
	}
	var history []domain.HistoryEntry
	_ = json.Unmarshal(data, &history)
	if len(history) != 2 || history[1].Stage != stage.SmInitialReview || history[1].Actor != "local-user" {
		t.Fatalf("history = %+v", history)
	}
}

func TestAuthRequiredAndPermissions(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/hazards", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous list status %d: %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}

	submitHazard(t, srv)
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/hazards/HZ-001/advance", map[string]string{"stage": "SmInitialReview"}, as("john"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("reporter advance status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/hazards/HZ-001/navigate", map[string]string{"stage": "Closed"}, as("john"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("reporter navigate status %d: %s", res.StatusCode, string(data))
	}
}

func TestValidationAndNotFound(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/hazards", map[string]any{
		"title": "", "description": "d", "severity": "High", "reported_by": "john",
	}, as("john"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty title status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/hazards/HZ-404", nil, as("local-user"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing hazard status %d: %s", res.StatusCode, string(data))
	}

	submitHazard(t, srv)
	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/hazards/HZ-001/risk", map[string]int{"severity": 6, "likelihood": 2}, as("local-user"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("out of range risk status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/hazards/HZ-001/approve", map[string]string{}, as("local-user"))
	if res.StatusCode != http.StatusConflict || errorCode(t, data) != "invalid_state" {
		t.Fatalf("approve outside approval stage status %d: %s", res.StatusCode, string(data))
	}
}

func TestPaceResponsesFlowIntoReport(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx := context.Background()

	token, err := signDevToken(testSecret, "local-user", time.Now())
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	client := hazardlinesdk.New(srv.URL)
	client.BearerToken = token

	h, err := client.Submit(ctx, hazardlinesdk.SubmitRequest{Title: "Leaking valve", Description: "Pump 3", Severity: "High", ReportedBy: "john"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	advanceTo(t, srv, h.ID, stage.SmCaReview)

	if _, err := client.SetProcessOwner(ctx, h.ID, hazardlinesdk.Slot{AssigneeType: "user", AssigneeRef: "maria"}); err != nil {
		t.Fatalf("set process owner: %v", err)
	}
	_, slotID, err := client.AddContributor(ctx, h.ID, hazardlinesdk.Slot{AssigneeType: "custom", CustomName: "Ops Desk", CustomEmail: "ops@example.com"})
	if err != nil {
		t.Fatalf("add contributor: %v", err)
	}
	if slotID == "" {
		t.Fatalf("contributor slot id missing")
	}
	if _, err := client.Respond(ctx, h.ID, "processOwner", "Fixed the valve"); err != nil {
		t.Fatalf("respond: %v", err)
	}

	rep, err := client.Report(ctx, h.ID)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(rep.Feedback) != 2 {
		t.Fatalf("feedback = %+v", rep.Feedback)
	}
	if rep.Feedback[0].Response != "Fixed the valve" || rep.Feedback[0].Pending {
		t.Fatalf("process owner feedback = %+v", rep.Feedback[0])
	}
	if !rep.Feedback[1].Pending || rep.Feedback[1].Response != "Pending response" {
		t.Fatalf("contributor feedback = %+v", rep.Feedback[1])
	}

	_, err = client.Respond(ctx, h.ID, "contributor:missing", "x")
	var apiErr *hazardlinesdk.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown contributor response: %v", err)
	}
}

func TestRejectReturnsToRework(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	h := submitHazard(t, srv)
	advanceTo(t, srv, h.ID, stage.LineManagerApproval)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/hazards/"+h.ID+"/reject", map[string]string{"comments": "Needs cost estimate"}, as("local-user"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("reject status %d: %s", res.StatusCode, string(data))
	}
	var got domain.Hazard
	_ = json.Unmarshal(data, &got)
	if got.Stage != stage.AssignedCorrectiveAction {
		t.Fatalf("rejected hazard in %s", got.Stage)
	}
	if got.Approvals.LineManager == nil || got.Approvals.LineManager.Comments != "Needs cost estimate" {
		t.Fatalf("decision = %+v", got.Approvals.LineManager)
	}
}

func TestEventsPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	h := submitHazard(t, srv)
	advanceTo(t, srv, h.ID, stage.SmCaReview)

	client := hazardlinesdk.New(srv.URL)
	token, _ := signDevToken(testSecret, "local-user", time.Now())
	client.BearerToken = token
	ctx := context.Background()

	seen := map[int64]bool{}
	cursor := ""
	for pages := 0; pages < 10; pages++ {
		page, err := client.EventsPage(ctx, 2, cursor)
		if err != nil {
			t.Fatalf("events page: %v", err)
		}
		for _, evt := range page.Items {
			if seen[evt.ID] {
				t.Fatalf("event %d returned twice", evt.ID)
			}
			seen[evt.ID] = true
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	// submitted + 3 advances
	if len(seen) != 4 {
		t.Fatalf("saw %d events", len(seen))
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/api-keys", map[string]string{"name": "ci"}, as("local-user"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key status %d: %s", res.StatusCode, string(data))
	}
	var key APIKeyResponse
	_ = json.Unmarshal(data, &key)
	if !strings.HasPrefix(key.Key, "hzl_") {
		t.Fatalf("key = %q", key.Key)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": key.Key})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var me WhoAmIResponse
	_ = json.Unmarshal(data, &me)
	if me.ActorID != "local-user" || me.Source != "api_key" {
		t.Fatalf("me = %+v", me)
	}

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": "hzl_bogus"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bogus key status %d", res.StatusCode)
	}
}

func TestDevLoginToken(t *testing.T) {
	srv, cleanup := newTestServerWith(t, func(c *Config) { c.Auth.DevLogin = true })
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{"actor_id": "maria"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	_ = json.Unmarshal(data, &login)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"Authorization": "Bearer " + login.Token})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var me WhoAmIResponse
	_ = json.Unmarshal(data, &me)
	if me.ActorID != "maria" || me.Source != "jwt" {
		t.Fatalf("me = %+v", me)
	}
	if len(me.Roles) != 1 || me.Roles[0] != "reporter" {
		t.Fatalf("maria should fall back to the default role, got %v", me.Roles)
	}

	submitHazard(t, srv)
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/hazards/HZ-001/navigate", map[string]string{"stage": "Closed"}, map[string]string{"Authorization": "Bearer " + login.Token})
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("dev token navigate status %d: %s", res.StatusCode, string(data))
	}
}

func TestDevLoginDisabledByDefault(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{"actor_id": "john"}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("dev login should require auth when disabled, status %d: %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{"actor_id": "john"}, as("local-user"))
	if res.StatusCode != http.StatusNotFound && res.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("dev login route should not exist, status %d", res.StatusCode)
	}
}

func TestTokenClaimsCannotGrantPermissions(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	submitHazard(t, srv)

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":         "john",
		"iat":         now.Unix(),
		"exp":         now.Add(time.Hour).Unix(),
		"roles":       []string{"owner"},
		"permissions": []string{"*"},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	bearer := map[string]string{"Authorization": "Bearer " + token}

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/hazards/HZ-001/navigate", map[string]string{"stage": "Closed"}, bearer)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("navigate with asserted permissions status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/hazards/HZ-001", nil, as("local-user"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get status %d: %s", res.StatusCode, string(data))
	}
	var h domain.Hazard
	_ = json.Unmarshal(data, &h)
	if h.Stage != stage.Submitted {
		t.Fatalf("hazard moved to %s", h.Stage)
	}
}

func TestHandleErrorClasses(t *testing.T) {
	h := handlers{logger: logging.Discard()}
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{errclass.ErrNotFound.WithMessage("x"), http.StatusNotFound, "not_found"},
		{errclass.ErrValidation.WithMessage("x"), http.StatusBadRequest, "bad_request"},
		{errclass.ErrInvalidTransition.WithMessage("x"), http.StatusConflict, "invalid_transition"},
		{errclass.ErrInvalidState.WithMessage("x"), http.StatusConflict, "invalid_state"},
		{auth.ForbiddenError{ActorID: "a", Permission: "p"}, http.StatusForbidden, "forbidden"},
		{errclass.ErrConflict.WithMessage("x"), http.StatusPreconditionFailed, "version_conflict"},
		{errclass.Storage(errors.New("disk full")), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		se := h.handleError(context.Background(), tc.err)
		ae, ok := se.(*apiError)
		if !ok {
			t.Fatalf("%v: not an apiError", tc.err)
		}
		if ae.GetStatus() != tc.status || ae.Body.Code != tc.code {
			t.Fatalf("%v: got %d %s", tc.err, ae.GetStatus(), ae.Body.Code)
		}
	}
}

func TestWebhookDispatchDeliversFilteredEvents(t *testing.T) {
	var mu sync.Mutex
	var got []string
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		got = append(got, r.Header.Get("X-Hazardline-Event"))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	ctx := context.Background()
	mem := &events.Memory{}
	// Recorded before the dispatcher starts; must not be replayed.
	_, _ = mem.Record(ctx, domain.Event{Type: events.TypeHazardSubmitted, EntityKind: events.EntityHazard, EntityID: "HZ-001"})

	d := NewWebhookDispatcher(mem, []config.WebhookConfig{{URL: hook.URL, Events: []string{events.TypeHazardAdvanced}}}, logging.Discard())
	d.DispatchAll(ctx)

	_, _ = mem.Record(ctx, domain.Event{Type: events.TypeHazardAdvanced, EntityKind: events.EntityHazard, EntityID: "HZ-001"})
	_, _ = mem.Record(ctx, domain.Event{Type: events.TypeHazardUpdated, EntityKind: events.EntityHazard, EntityID: "HZ-001"})
	d.DispatchAll(ctx)
	d.DispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != events.TypeHazardAdvanced {
		t.Fatalf("delivered = %v", got)
	}
}
