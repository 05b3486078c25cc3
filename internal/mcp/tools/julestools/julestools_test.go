package julestools

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/julesmcp/internal/jules"
	"github.com/MrWong99/julesmcp/internal/mcp/mcpserver"
	"github.com/MrWong99/julesmcp/internal/mcp/tools"
	"github.com/MrWong99/julesmcp/internal/render"
)

// ─── helpers ─────────────────────────────────────────────────────────────────

// recordedRequest captures what the fake API received.
type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Key    string
	Body   map[string]any
}

// fakeAPI is an httptest server answering every request with a fixed status
// and body, recording each request.
type fakeAPI struct {
	srv  *httptest.Server
	mu   sync.Mutex
	reqs []recordedRequest
	hits atomic.Int32
}

func newFakeAPI(t *testing.T, status int, body string) *fakeAPI {
	t.Helper()
	f := &fakeAPI{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		rec := recordedRequest{
			Method: r.Method,
			Path:   r.URL.EscapedPath(),
			Query:  r.URL.RawQuery,
			Key:    r.Header.Get(jules.APIKeyHeader),
		}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &rec.Body)
		}
		f.mu.Lock()
		f.reqs = append(f.reqs, rec)
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAPI) last(t *testing.T) recordedRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reqs) == 0 {
		t.Fatal("no request reached the API")
	}
	return f.reqs[len(f.reqs)-1]
}

// newRegistry binds all Jules tools to a client for baseURL.
func newRegistry(t *testing.T, baseURL string, creds jules.CredentialSource, opts ...jules.Option) *mcpserver.Registry {
	t.Helper()
	opts = append([]jules.Option{jules.WithBaseURL(baseURL)}, opts...)
	ts, err := Tools(jules.New(creds, opts...))
	if err != nil {
		t.Fatalf("Tools: %v", err)
	}
	r, err := mcpserver.New(ts)
	if err != nil {
		t.Fatalf("mcpserver.New: %v", err)
	}
	return r
}

func call(t *testing.T, r *mcpserver.Registry, name, args string) *mcp.CallToolResult {
	t.Helper()
	return r.Execute(context.Background(), name, json.RawMessage(args))
}

// ─── descriptors ─────────────────────────────────────────────────────────────

func TestTools_Descriptors(t *testing.T) {
	t.Parallel()

	ts, err := Tools(jules.New(jules.StaticCredential("k")))
	if err != nil {
		t.Fatalf("Tools: %v", err)
	}

	want := map[string]tools.Annotations{
		ListSourcesName:   {ReadOnly: true, Idempotent: true},
		CreateSessionName: {},
		ListSessionsName:  {ReadOnly: true, Idempotent: true},
		GetSessionName:    {ReadOnly: true, Idempotent: true},
		ApprovePlanName:   {Destructive: true},
	}
	if len(ts) != len(want) {
		t.Fatalf("got %d tools, want %d", len(ts), len(want))
	}
	for _, tool := range ts {
		ann, ok := want[tool.Name]
		if !ok {
			t.Errorf("unexpected tool %q", tool.Name)
			continue
		}
		if diff := cmp.Diff(ann, tool.Annotations); diff != "" {
			t.Errorf("%s annotations (-want +got):\n%s", tool.Name, diff)
		}
		if tool.Title == "" || tool.Description == "" {
			t.Errorf("%s lacks title or description", tool.Name)
		}
	}
}

// ─── list_sources ────────────────────────────────────────────────────────────

func TestListSources_Markdown(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t, http.StatusOK, `{"sources":[{"name":"sources/github/acme/api","id":"github/acme/api","githubRepo":{"owner":"acme","repo":"api"}}],"nextPageToken":"p2"}`)
	r := newRegistry(t, api.srv.URL, jules.StaticCredential("secret"))

	res := call(t, r, ListSourcesName, `{}`)
	if res.IsError {
		t.Fatalf("unexpected error: %s", tools.Text(res))
	}
	text := tools.Text(res)
	for _, want := range []string{"# Jules Sources", "## sources/github/acme/api", "- **GitHub Repo**: acme/api", "**Next Page Token**: p2"} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q:\n%s", want, text)
		}
	}

	req := api.last(t)
	if req.Method != http.MethodGet || req.Path != "/v1alpha/sources" {
		t.Errorf("request = %s %s", req.Method, req.Path)
	}
	if req.Query != "pageSize=20" {
		t.Errorf("query = %q, want pageSize=20", req.Query)
	}
	if req.Key != "secret" {
		t.Errorf("api key = %q, want secret", req.Key)
	}

	structured, ok := res.StructuredContent.(map[string]any)
	if !ok {
		t.Fatalf("structured = %T", res.StructuredContent)
	}
	if structured["nextPageToken"] != "p2" {
		t.Errorf("nextPageToken = %v", structured["nextPageToken"])
	}
}

func TestListSources_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t, http.StatusOK, `{"sources":[{"name":"sources/a","id":"a"},{"name":"sources/b","id":"b"}]}`)
	r := newRegistry(t, api.srv.URL, jules.StaticCredential("k"))

	res := call(t, r, ListSourcesName, `{"pageSize":5,"pageToken":"tok","response_format":"json"}`)
	if res.IsError {
		t.Fatalf("unexpected error: %s", tools.Text(res))
	}

	var parsed any
	if err := json.Unmarshal([]byte(tools.Text(res)), &parsed); err != nil {
		t.Fatalf("text is not JSON: %v", err)
	}
	if diff := cmp.Diff(res.StructuredContent, parsed); diff != "" {
		t.Errorf("text and structured differ (-structured +text):\n%s", diff)
	}
	if _, has := parsed.(map[string]any)["nextPageToken"]; has {
		t.Error("nextPageToken should be absent on the last page")
	}

	if q := api.last(t).Query; q != "pageSize=5&pageToken=tok" {
		t.Errorf("query = %q", q)
	}
}

func TestListSources_Empty(t *testing.T) {
	t.Parallel()

	for _, body := range []string{`{}`, `{"sources":[]}`, ``} {
		api := newFakeAPI(t, http.StatusOK, body)
		r := newRegistry(t, api.srv.URL, jules.StaticCredential("k"))

		res := call(t, r, ListSourcesName, `{"response_format":"json"}`)
		if res.IsError {
			t.Fatalf("body %q: unexpected error: %s", body, tools.Text(res))
		}
		if got := tools.Text(res); got != render.NoSources {
			t.Errorf("body %q: text = %q, want %q", body, got, render.NoSources)
		}
		if res.StructuredContent != nil {
			t.Errorf("body %q: empty listing carries structured content", body)
		}
	}
}

func TestListSources_InvalidPageSize(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t, http.StatusOK, `{}`)
	r := newRegistry(t, api.srv.URL, jules.StaticCredential("k"))

	for _, args := range []string{`{"pageSize":0}`, `{"pageSize":101}`, `{"response_format":"yaml"}`} {
		res := call(t, r, ListSourcesName, args)
		if !res.IsError || !strings.HasPrefix(tools.Text(res), "Error: Invalid input: ") {
			t.Errorf("args %s: result = %q", args, tools.Text(res))
		}
	}
	if n := api.hits.Load(); n != 0 {
		t.Errorf("API hits = %d, want 0", n)
	}
}

// ─── failures ────────────────────────────────────────────────────────────────

func TestListSources_Unauthorized(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t, http.StatusUnauthorized, `{"error":{"message":"Unauthorized"}}`)
	r := newRegistry(t, api.srv.URL, jules.StaticCredential("bad"))

	res := call(t, r, ListSourcesName, `{}`)
	if !res.IsError {
		t.Fatal("expected error envelope")
	}
	text := tools.Text(res)
	if !strings.Contains(text, "401") || !strings.Contains(text, "Unauthorized") {
		t.Errorf("text = %q", text)
	}
	if res.StructuredContent != nil {
		t.Error("error envelope carries structured content")
	}
}

func TestListSessions_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	r := newRegistry(t, srv.URL, jules.StaticCredential("k"), jules.WithTimeout(50*time.Millisecond))
	res := call(t, r, ListSessionsName, `{}`)

	if !res.IsError {
		t.Fatal("expected error envelope")
	}
	if got := tools.Text(res); got != jules.TimeoutMessage {
		t.Errorf("text = %q, want %q", got, jules.TimeoutMessage)
	}
}

func TestMissingCredential_NoNetwork(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t, http.StatusOK, `{"sessions":[]}`)
	r := newRegistry(t, api.srv.URL, jules.StaticCredential(""))

	for _, tc := range []struct{ name, args string }{
		{ListSourcesName, `{}`},
		{ListSessionsName, `{}`},
		{GetSessionName, `{"sessionId":"1"}`},
		{ApprovePlanName, `{"sessionId":"1"}`},
		{CreateSessionName, `{"prompt":"p","source":"s","title":"t"}`},
	} {
		res := call(t, r, tc.name, tc.args)
		if !res.IsError {
			t.Errorf("%s: expected error envelope", tc.name)
			continue
		}
		if got := tools.Text(res); got != "JULES_API_KEY environment variable is missing." {
			t.Errorf("%s: text = %q", tc.name, got)
		}
	}
	if n := api.hits.Load(); n != 0 {
		t.Errorf("API hits = %d, want 0", n)
	}
}

// ─── list_sessions ───────────────────────────────────────────────────────────

func TestListSessions_PendingApproval(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t, http.StatusOK, `{"sessions":[{"name":"sessions/9","title":"Refactor","state":"AWAITING_PLAN_APPROVAL","prompt":"p","pendingPlanApproval":true}]}`)
	r := newRegistry(t, api.srv.URL, jules.StaticCredential("k"))

	res := call(t, r, ListSessionsName, `{"pageSize":1}`)
	text := tools.Text(res)
	if !strings.Contains(text, "## Refactor (sessions/9)") {
		t.Errorf("text missing heading:\n%s", text)
	}
	if !strings.Contains(text, "Requires Plan Approval") {
		t.Errorf("text missing approval marker:\n%s", text)
	}
	if api.last(t).Path != "/v1alpha/sessions" {
		t.Errorf("path = %q", api.last(t).Path)
	}
}

func TestListSessions_Empty(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t, http.StatusOK, `{"sessions":[]}`)
	r := newRegistry(t, api.srv.URL, jules.StaticCredential("k"))

	res := call(t, r, ListSessionsName, `{}`)
	if got := tools.Text(res); got != render.NoSessions {
		t.Errorf("text = %q, want %q", got, render.NoSessions)
	}
	if res.StructuredContent != nil {
		t.Error("empty listing carries structured content")
	}
}

func TestListSessions_TruncatesTextOnly(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", render.CharacterLimit)
	body, _ := json.Marshal(map[string]any{
		"sessions": []any{map[string]any{"name": "sessions/1", "prompt": long}},
	})
	api := newFakeAPI(t, http.StatusOK, string(body))
	r := newRegistry(t, api.srv.URL, jules.StaticCredential("k"))

	res := call(t, r, ListSessionsName, `{}`)
	if !strings.HasSuffix(tools.Text(res), render.TruncationMarker) {
		t.Error("long text was not truncated")
	}
	structured := res.StructuredContent.(map[string]any)
	prompt := structured["sessions"].([]any)[0].(map[string]any)["prompt"]
	if prompt != long {
		t.Error("structured content was truncated")
	}
}

// ─── create_session ──────────────────────────────────────────────────────────

func TestCreateSession_Body(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t, http.StatusOK, `{"name":"sessions/77","title":"Add tests","prompt":"add tests","state":"QUEUED"}`)
	r := newRegistry(t, api.srv.URL, jules.StaticCredential("k"))

	res := call(t, r, CreateSessionName, `{"prompt":"add tests","source":"sources/github/acme/api","title":"Add tests"}`)
	if res.IsError {
		t.Fatalf("unexpected error: %s", tools.Text(res))
	}

	req := api.last(t)
	if req.Method != http.MethodPost || req.Path != "/v1alpha/sessions" {
		t.Errorf("request = %s %s", req.Method, req.Path)
	}
	want := map[string]any{
		"prompt": "add tests",
		"sourceContext": map[string]any{
			"source":            "sources/github/acme/api",
			"githubRepoContext": map[string]any{"startingBranch": "main"},
		},
		"automationMode":      "NONE",
		"title":               "Add tests",
		"requirePlanApproval": false,
	}
	if diff := cmp.Diff(want, req.Body); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}

	text := tools.Text(res)
	for _, line := range []string{"# Created Session: Add tests", "- **Name/ID**: sessions/77", "- **Status**: QUEUED"} {
		if !strings.Contains(text, line) {
			t.Errorf("text missing %q:\n%s", line, text)
		}
	}
	structured := res.StructuredContent.(map[string]any)
	if structured["name"] != "sessions/77" {
		t.Errorf("structured = %v, want raw response", structured)
	}
}

func TestCreateSession_Overrides(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t, http.StatusOK, `{"name":"sessions/1"}`)
	r := newRegistry(t, api.srv.URL, jules.StaticCredential("k"))

	res := call(t, r, CreateSessionName, `{"prompt":"p","source":"s","title":"t","startingBranch":"dev","automationMode":"AUTO_CREATE_PR","requirePlanApproval":true,"response_format":"json"}`)
	if res.IsError {
		t.Fatalf("unexpected error: %s", tools.Text(res))
	}
	body := api.last(t).Body
	if body["automationMode"] != "AUTO_CREATE_PR" || body["requirePlanApproval"] != true {
		t.Errorf("body = %v", body)
	}
	branch := body["sourceContext"].(map[string]any)["githubRepoContext"].(map[string]any)["startingBranch"]
	if branch != "dev" {
		t.Errorf("startingBranch = %v, want dev", branch)
	}
}

func TestCreateSession_Validation(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t, http.StatusOK, `{}`)
	r := newRegistry(t, api.srv.URL, jules.StaticCredential("k"))

	for _, args := range []string{
		`{"source":"s","title":"t"}`,
		`{"prompt":"p","title":"t"}`,
		`{"prompt":"p","source":"s"}`,
		`{"prompt":"p","source":"s","title":"t","automationMode":"SOMETIMES"}`,
		`{"prompt":"p","source":"s","title":"t","requirePlanApproval":"yes"}`,
	} {
		res := call(t, r, CreateSessionName, args)
		if !res.IsError || !strings.HasPrefix(tools.Text(res), "Error: Invalid input: ") {
			t.Errorf("args %s: result = %q", args, tools.Text(res))
		}
	}
	if n := api.hits.Load(); n != 0 {
		t.Errorf("API hits = %d, want 0", n)
	}
}

// ─── approve_plan / get_session ──────────────────────────────────────────────

func TestApprovePlan_Paths(t *testing.T) {
	t.Parallel()

	tests := []struct {
		sessionID string
		wantPath  string
	}{
		{"12345", "/v1alpha/sessions/12345:approvePlan"},
		{"sessions/12345", "/v1alpha/sessions/12345:approvePlan"},
		{"a/b", "/v1alpha/sessions/a%2Fb:approvePlan"},
	}
	for _, tt := range tests {
		t.Run(tt.sessionID, func(t *testing.T) {
			t.Parallel()
			api := newFakeAPI(t, http.StatusOK, `{}`)
			r := newRegistry(t, api.srv.URL, jules.StaticCredential("k"))

			args, _ := json.Marshal(map[string]string{"sessionId": tt.sessionID})
			res := call(t, r, ApprovePlanName, string(args))
			if res.IsError {
				t.Fatalf("unexpected error: %s", tools.Text(res))
			}
			req := api.last(t)
			if req.Method != http.MethodPost || req.Path != tt.wantPath {
				t.Errorf("request = %s %s, want POST %s", req.Method, req.Path, tt.wantPath)
			}
		})
	}
}

func TestApprovePlan_Result(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t, http.StatusOK, `{"name":"sessions/5","state":"IN_PROGRESS"}`)
	r := newRegistry(t, api.srv.URL, jules.StaticCredential("k"))

	res := call(t, r, ApprovePlanName, `{"sessionId":"sessions/5"}`)
	if got := tools.Text(res); got != render.PlanApproved("sessions/5") {
		t.Errorf("text = %q", got)
	}
	want := map[string]any{
		"success": true,
		"session": "sessions/5",
		"data":    map[string]any{"name": "sessions/5", "state": "IN_PROGRESS"},
	}
	if diff := cmp.Diff(want, res.StructuredContent); diff != "" {
		t.Errorf("structured mismatch (-want +got):\n%s", diff)
	}

	res = call(t, r, ApprovePlanName, `{"sessionId":"5","response_format":"json"}`)
	var parsed map[string]any
	if err := json.Unmarshal([]byte(tools.Text(res)), &parsed); err != nil {
		t.Fatalf("json text: %v", err)
	}
	if parsed["success"] != true || parsed["session"] != "5" {
		t.Errorf("parsed = %v", parsed)
	}
}

func TestSessionTools_BlankSessionID(t *testing.T) {
	t.Parallel()

	ids := []string{"", "   ", "sessions/", " sessions/ ", "sessions/   "}
	for _, name := range []string{ApprovePlanName, GetSessionName} {
		for _, id := range ids {
			t.Run(name+"/"+id, func(t *testing.T) {
				t.Parallel()
				api := newFakeAPI(t, http.StatusOK, `{}`)
				r := newRegistry(t, api.srv.URL, jules.StaticCredential("k"))

				args, _ := json.Marshal(map[string]string{"sessionId": id})
				res := call(t, r, name, string(args))
				if !res.IsError {
					t.Errorf("sessionId %q accepted: %s", id, tools.Text(res))
				}
				if got := tools.Text(res); !strings.HasPrefix(got, "Error: Invalid input: ") {
					t.Errorf("text = %q, want invalid input error", got)
				}
				if n := api.hits.Load(); n != 0 {
					t.Errorf("API hits = %d, want 0", n)
				}
			})
		}
	}
}

func TestStructuredContent_PreservesLargeIntegers(t *testing.T) {
	t.Parallel()

	const big = "12345678901234567890"
	tests := []struct {
		name string
		tool string
		args string
		body string
		get  func(structured map[string]any) any
	}{
		{
			name: "get session",
			tool: GetSessionName,
			args: `{"sessionId":"1","response_format":"json"}`,
			body: `{"name":"sessions/1","count":` + big + `}`,
			get:  func(m map[string]any) any { return m["count"] },
		},
		{
			name: "list sessions",
			tool: ListSessionsName,
			args: `{"response_format":"json"}`,
			body: `{"sessions":[{"name":"sessions/1","count":` + big + `}]}`,
			get: func(m map[string]any) any {
				return m["sessions"].([]any)[0].(map[string]any)["count"]
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			api := newFakeAPI(t, http.StatusOK, tt.body)
			r := newRegistry(t, api.srv.URL, jules.StaticCredential("k"))

			res := call(t, r, tt.tool, tt.args)
			if res.IsError {
				t.Fatalf("unexpected error: %s", tools.Text(res))
			}
			structured, ok := res.StructuredContent.(map[string]any)
			if !ok {
				t.Fatalf("structured = %T", res.StructuredContent)
			}
			if got := tt.get(structured); got != json.Number(big) {
				t.Errorf("count = %#v, want %s", got, big)
			}
			if text := tools.Text(res); !strings.Contains(text, `"count": `+big) {
				t.Errorf("text lost precision:\n%s", text)
			}
		})
	}
}

func TestGetSession(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t, http.StatusOK, `{"name":"sessions/3","title":"Docs","state":"COMPLETED","prompt":"write docs"}`)
	r := newRegistry(t, api.srv.URL, jules.StaticCredential("k"))

	res := call(t, r, GetSessionName, `{"sessionId":"sessions/3"}`)
	if res.IsError {
		t.Fatalf("unexpected error: %s", tools.Text(res))
	}
	if p := api.last(t).Path; p != "/v1alpha/sessions/3" {
		t.Errorf("path = %q", p)
	}
	if !strings.Contains(tools.Text(res), "# Session: Docs") {
		t.Errorf("text = %q", tools.Text(res))
	}
}

func TestGetSession_NotFound(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t, http.StatusNotFound, `{"error":{"message":"Session not found"}}`)
	r := newRegistry(t, api.srv.URL, jules.StaticCredential("k"))

	res := call(t, r, GetSessionName, `{"sessionId":"404"}`)
	want := "Error: Not Found (404). The requested resource doesn't exist. Detail: Session not found"
	if got := tools.Text(res); got != want {
		t.Errorf("text = %q, want %q", got, want)
	}
}

// ─── determinism ─────────────────────────────────────────────────────────────

func TestRendering_Deterministic(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t, http.StatusOK, `{"sessions":[{"name":"sessions/1","outputs":[{"pullRequest":{"title":"PR","url":"https://x/1"}}]}]}`)
	r := newRegistry(t, api.srv.URL, jules.StaticCredential("k"))

	for _, format := range []string{"markdown", "json"} {
		args := `{"response_format":"` + format + `"}`
		a := tools.Text(call(t, r, ListSessionsName, args))
		b := tools.Text(call(t, r, ListSessionsName, args))
		if a != b {
			t.Errorf("%s: same payload rendered differently", format)
		}
	}
}
