package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/oarkflow/identityd/facade"
	"github.com/oarkflow/identityd/pdp"
	"github.com/oarkflow/identityd/scim"
	"github.com/oarkflow/identityd/store"
	"github.com/oarkflow/identityd/token"
)

const scenarioPolicies = `{
  "policies": [
    {
      "ruleId": "ADMIN-RELOAD-01",
      "effect": "Permit",
      "priority": 100,
      "target": {"actions": ["policies:reload"]},
      "condition": {"op": "contains", "path": "subject.groups", "value": "ADMINS"}
    }
  ]
}`

type testServer struct {
	app    *fiber.App
	users  *store.UserStore
	groups *store.GroupStore
	tokens *token.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.json")
	if err := os.WriteFile(path, []byte(scenarioPolicies), 0o644); err != nil {
		t.Fatal(err)
	}
	loader := pdp.NewLoader(path, nil)
	if err := loader.Load(); err != nil {
		t.Fatal(err)
	}
	engine := pdp.NewEngine(loader, nil)

	users := store.NewUserStore()
	groups := store.NewGroupStore()
	scimSvc := scim.NewService(users, groups, nil)

	authenticator := scim.NewUserAuthenticator(users, groups)
	clients := scim.NewStaticClientStore()
	tokens := token.NewHS256Service([]byte("test-secret-key-value-123456"), 15*time.Minute, authenticator, clients)

	audit := facade.NewLogAuditSink(nil)
	authzSvc := facade.NewService(engine, audit, nil)

	app := New(tokens, scimSvc, authzSvc, loader)
	return &testServer{app: app, users: users, groups: groups, tokens: tokens}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := ts.app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatal(err)
	}
}

func TestS6SCIMCreateThenConflict(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "POST", "/scim/v2/Users", scim.CreateUserRequest{UserName: "jdoe", Password: "x"}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first create: want 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp2 := ts.do(t, "POST", "/scim/v2/Users", scim.CreateUserRequest{UserName: "jdoe", Password: "y"}, nil)
	if resp2.StatusCode != http.StatusConflict {
		t.Fatalf("second create: want 409, got %d", resp2.StatusCode)
	}
	resp2.Body.Close()

	listResp := ts.do(t, "GET", `/scim/v2/Users?filter=`+`userName%20eq%20%22jdoe%22`, nil, nil)
	var lr scim.ListResponse
	decode(t, listResp, &lr)
	if lr.TotalResults != 1 {
		t.Fatalf("expected exactly one jdoe, got %d", lr.TotalResults)
	}
}

func TestS5TokenRoundTrip(t *testing.T) {
	ts := newTestServer(t)

	now := time.Now()
	group := store.GroupRecord{ID: store.NewGroupID(), DisplayName: "ADMINS", Created: now, LastModified: now}
	if err := ts.groups.Upsert(context.Background(), group); err != nil {
		t.Fatal(err)
	}
	verifier := store.NewPasswordVerifier("admin_pass")
	user := store.UserRecord{
		ID: store.NewUserID(), UserName: "mrios", Active: true, Groups: []string{group.ID},
		Verifier: &verifier, Created: now, LastModified: now,
	}
	if err := ts.users.Upsert(context.Background(), user); err != nil {
		t.Fatal(err)
	}

	resp := ts.do(t, "POST", "/auth/token", map[string]string{
		"grant_type": "password", "username": "mrios", "password": "admin_pass",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("issue token: want 200, got %d", resp.StatusCode)
	}
	var tr tokenResponse
	decode(t, resp, &tr)
	if tr.AccessToken == "" || tr.TokenType != "Bearer" {
		t.Fatalf("malformed token response: %+v", tr)
	}

	meResp := ts.do(t, "GET", "/auth/me", nil, map[string]string{"Authorization": "Bearer " + tr.AccessToken})
	if meResp.StatusCode != http.StatusOK {
		t.Fatalf("/auth/me: want 200, got %d", meResp.StatusCode)
	}
	var claims token.Claims
	decode(t, meResp, &claims)
	if claims.Subject != user.ID {
		t.Fatalf("claims.sub = %q, want %q", claims.Subject, user.ID)
	}
	found := false
	for _, g := range claims.Groups {
		if g == "ADMINS" {
			found = true
		}
	}
	if !found {
		t.Fatalf("claims.groups = %v, want to contain ADMINS", claims.Groups)
	}
}

func TestReloadEndpointRequiresAdminGroup(t *testing.T) {
	ts := newTestServer(t)

	now := time.Now()
	verifier := store.NewPasswordVerifier("pw")
	user := store.UserRecord{ID: store.NewUserID(), UserName: "plain", Active: true, Verifier: &verifier, Created: now, LastModified: now}
	if err := ts.users.Upsert(context.Background(), user); err != nil {
		t.Fatal(err)
	}
	tokResp := ts.do(t, "POST", "/auth/token", map[string]string{"grant_type": "password", "username": "plain", "password": "pw"}, nil)
	var tr tokenResponse
	decode(t, tokResp, &tr)

	resp := ts.do(t, "POST", "/authz/policies/reload", nil, map[string]string{"Authorization": "Bearer " + tr.AccessToken})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("reload without ADMINS: want 403, got %d", resp.StatusCode)
	}
}

func TestReloadEndpointIsGatedByThePDP(t *testing.T) {
	ts := newTestServer(t)

	now := time.Now()
	group := store.GroupRecord{ID: store.NewGroupID(), DisplayName: "ADMINS", Created: now, LastModified: now}
	if err := ts.groups.Upsert(context.Background(), group); err != nil {
		t.Fatal(err)
	}
	verifier := store.NewPasswordVerifier("pw")
	user := store.UserRecord{
		ID: store.NewUserID(), UserName: "admin", Active: true, Groups: []string{group.ID},
		Verifier: &verifier, Created: now, LastModified: now,
	}
	if err := ts.users.Upsert(context.Background(), user); err != nil {
		t.Fatal(err)
	}
	tokResp := ts.do(t, "POST", "/auth/token", map[string]string{"grant_type": "password", "username": "admin", "password": "pw"}, nil)
	var tr tokenResponse
	decode(t, tokResp, &tr)

	resp := ts.do(t, "POST", "/authz/policies/reload", nil, map[string]string{"Authorization": "Bearer " + tr.AccessToken})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reload with ADMINS and a permitting policy: want 200, got %d", resp.StatusCode)
	}
}

func TestAuthzEvaluateRequiresBearer(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, "POST", "/authz/evaluate", pdp.Request{Subject: map[string]any{}, Resource: map[string]any{}, Context: map[string]any{}}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("evaluate without bearer: want 401, got %d", resp.StatusCode)
	}
}

func TestHealthEndpointsNeedNoAuth(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/auth/health", "/authz/health"} {
		resp := ts.do(t, "GET", path, nil, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: want 200, got %d", path, resp.StatusCode)
		}
	}
}
