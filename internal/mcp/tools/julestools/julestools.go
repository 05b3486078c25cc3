// Package julestools provides the MCP tools that drive the Jules
// coding-automation API.
//
// Five tools are exported via [Tools]:
//   - "jules_list_sources"   lists repositories connected to Jules.
//   - "jules_create_session" starts a coding session on a source.
//   - "jules_list_sessions"  lists sessions with state and outputs.
//   - "jules_get_session"    fetches one session.
//   - "jules_approve_plan"   approves the plan of a paused session.
//
// Each handler performs exactly one API call through a [jules.Client] and
// renders the result with package render. API errors are returned unchanged
// so the dispatcher can classify them.
package julestools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/tidwall/gjson"

	"github.com/MrWong99/julesmcp/internal/mcp/tools"
	"github.com/MrWong99/julesmcp/internal/render"
)

// Tool names.
const (
	ListSourcesName   = "jules_list_sources"
	CreateSessionName = "jules_create_session"
	ListSessionsName  = "jules_list_sessions"
	GetSessionName    = "jules_get_session"
	ApprovePlanName   = "jules_approve_plan"
)

// API paths.
const (
	sourcesPath  = "/v1alpha/sources"
	sessionsPath = "/v1alpha/sessions"
)

// Caller is the subset of [jules.Client] the tools depend on.
type Caller interface {
	Call(ctx context.Context, method, path string, body any, query url.Values) (json.RawMessage, error)
}

// Tools returns all Jules tools bound to c, ready for registration.
func Tools(c Caller) ([]tools.Tool, error) {
	binders := []func(Caller) (tools.Tool, error){
		listSourcesTool,
		createSessionTool,
		listSessionsTool,
		getSessionTool,
		approvePlanTool,
	}
	out := make([]tools.Tool, 0, len(binders))
	for _, bind := range binders {
		t, err := bind(c)
		if err != nil {
			return nil, fmt.Errorf("julestools: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

// pageQuery builds the list query. pageToken is only sent when set.
func pageQuery(in tools.Paginated) url.Values {
	q := url.Values{"pageSize": {strconv.Itoa(in.PageSize)}}
	if in.PageToken != "" {
		q.Set("pageToken", in.PageToken)
	}
	return q
}

// listPage splits a list response into its items and continuation token.
// The structured value keeps the items exactly as the API returned them.
func listPage(body json.RawMessage, key string) (map[string]any, int, error) {
	page := gjson.ParseBytes(body)
	items := page.Get(key)
	n := len(items.Array())
	if n == 0 {
		return nil, 0, nil
	}

	var decoded []any
	if err := decodeJSON([]byte(items.Raw), &decoded); err != nil {
		return nil, 0, fmt.Errorf("julestools: decode %s: %w", key, err)
	}
	out := map[string]any{key: decoded}
	if tok := page.Get("nextPageToken").String(); tok != "" {
		out["nextPageToken"] = tok
	}
	return out, n, nil
}

// decodeObject turns a response body into the structured value returned
// to the caller.
func decodeObject(body json.RawMessage) (map[string]any, error) {
	m := make(map[string]any)
	if err := decodeJSON(body, &m); err != nil {
		return nil, fmt.Errorf("julestools: decode response: %w", err)
	}
	return m, nil
}

// decodeJSON keeps numbers as [json.Number] so large integers survive the
// trip into structured content unchanged.
func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// errEmptySessionID is returned when a session id is blank once whitespace
// and the "sessions/" prefix are removed.
var errEmptySessionID = errors.New("sessionId must name a session, e.g. '12345' or 'sessions/12345'")

// sessionPath returns the resource path for a session given either its bare
// id or its "sessions/{id}" resource name. The id is escaped as a single
// path segment. A blank id is reported as a [*tools.ValidationError] for
// tool so that no request is made.
func sessionPath(tool, sessionID string) (string, error) {
	id := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(sessionID), "sessions/"))
	if id == "" {
		return "", &tools.ValidationError{Tool: tool, Err: errEmptySessionID}
	}
	return sessionsPath + "/" + url.PathEscape(id), nil
}

// result renders structured in format, using prose for markdown.
func result(format render.Format, structured any, prose func() string) (*mcp.CallToolResult, error) {
	text, err := render.Render(format, structured, prose)
	if err != nil {
		return nil, err
	}
	return tools.TextResult(text, structured), nil
}

