package julestools

import (
	"context"
	"net/http"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/julesmcp/internal/mcp/tools"
	"github.com/MrWong99/julesmcp/internal/render"
)

// Automation modes accepted by session creation.
const (
	AutomationAutoCreatePR = "AUTO_CREATE_PR"
	AutomationNone         = "NONE"
)

// DefaultStartingBranch is used when no branch is given.
const DefaultStartingBranch = "main"

const createSessionDescription = `Starts a new automated coding session with Jules.

Use this after identifying a target source (e.g. from jules_list_sources).
This creates a session where Jules will work on the given prompt.

Args:
  - prompt (string): The user's goal or instructions.
  - source (string): The full name of the source (e.g., "sources/github/owner/repo").
  - startingBranch (string): The starting branch for the repository (default: "main").
  - automationMode ("AUTO_CREATE_PR" | "NONE"): Whether to automatically create a PR (default: "NONE").
  - title (string): The title of the session.
  - requirePlanApproval (boolean): If true, Jules waits for a jules_approve_plan call before acting.
  - response_format ('markdown' | 'json'): Output format (default: 'markdown').

Returns:
  The created session details.`

const listSessionsDescription = `List your Jules sessions to check their status or view outputs (e.g. PR links).

Use this to poll for the completion of a session or to find an active session ID.

Args:
  - pageSize (number): Maximum results to return (default: 20)
  - pageToken (string): Page token for retrieving the next page
  - response_format ('markdown' | 'json'): Output format (default: 'markdown')

Returns:
  A list of sessions, including their state and any outputs.`

const getSessionDescription = `Get a single Jules session by ID to check its state, outputs and whether it awaits plan approval.

Args:
  - sessionId (string): The session ID or name (e.g., "sessions/12345" or "12345").
  - response_format ('markdown' | 'json'): Output format (default: 'markdown').

Returns:
  The session details.`

const approvePlanDescription = `Approve the plan for a session that requires explicit approval.

If you created a session with requirePlanApproval: true, Jules will pause and wait for approval. Call this tool to allow it to proceed.

Args:
  - sessionId (string): The session ID or name (e.g., "sessions/12345" or "12345").
  - response_format ('markdown' | 'json'): Output format (default: 'markdown').

Returns:
  Status of the approval.`

// createSessionInput is the validated input of jules_create_session.
type createSessionInput struct {
	Prompt              string        `json:"prompt"`
	Source              string        `json:"source"`
	StartingBranch      string        `json:"startingBranch"`
	AutomationMode      string        `json:"automationMode"`
	Title               string        `json:"title"`
	RequirePlanApproval bool          `json:"requirePlanApproval"`
	ResponseFormat      render.Format `json:"response_format"`
}

// sessionRequest is the body sent to create a session.
type sessionRequest struct {
	Prompt              string        `json:"prompt"`
	SourceContext       sourceContext `json:"sourceContext"`
	AutomationMode      string        `json:"automationMode"`
	Title               string        `json:"title"`
	RequirePlanApproval bool          `json:"requirePlanApproval"`
}

type sourceContext struct {
	Source            string            `json:"source"`
	GithubRepoContext githubRepoContext `json:"githubRepoContext"`
}

type githubRepoContext struct {
	StartingBranch string `json:"startingBranch"`
}

// sessionInput is the validated input of the tools addressing one session.
type sessionInput struct {
	SessionID      string        `json:"sessionId"`
	ResponseFormat render.Format `json:"response_format"`
}

func createSessionSchema() *jsonschema.Schema {
	return tools.Object(map[string]*jsonschema.Schema{
		"prompt":         tools.String("The user's goal or prompt for the session."),
		"source":         tools.String("The name of the source resource (e.g., 'sources/github/owner/repo')."),
		"startingBranch": tools.StringDefault("The starting branch for the repository.", DefaultStartingBranch),
		"automationMode": tools.Enum("Whether to automatically create a PR ('AUTO_CREATE_PR' or 'NONE').",
			AutomationNone, AutomationAutoCreatePR, AutomationNone),
		"title":               tools.String("The title of the session."),
		"requirePlanApproval": tools.BoolDefault("If true, requires an explicit call to approve_plan to proceed.", false),
		"response_format":     tools.ResponseFormat(),
	}, "prompt", "source", "title")
}

func sessionSchema() *jsonschema.Schema {
	return tools.Object(map[string]*jsonschema.Schema{
		"sessionId":       tools.NonEmptyString("The session ID or resource name (e.g., 'sessions/12345')."),
		"response_format": tools.ResponseFormat(),
	}, "sessionId")
}

func createSessionTool(c Caller) (tools.Tool, error) {
	return tools.Bind(tools.Descriptor{
		Name:        CreateSessionName,
		Title:       "Create Jules Session",
		Description: createSessionDescription,
		InputSchema: createSessionSchema(),
	}, func(ctx context.Context, in createSessionInput) (*mcp.CallToolResult, error) {
		req := sessionRequest{
			Prompt: in.Prompt,
			SourceContext: sourceContext{
				Source:            in.Source,
				GithubRepoContext: githubRepoContext{StartingBranch: in.StartingBranch},
			},
			AutomationMode:      in.AutomationMode,
			Title:               in.Title,
			RequirePlanApproval: in.RequirePlanApproval,
		}
		body, err := c.Call(ctx, http.MethodPost, sessionsPath, req, nil)
		if err != nil {
			return nil, err
		}
		structured, err := decodeObject(body)
		if err != nil {
			return nil, err
		}
		return result(in.ResponseFormat, structured, func() string { return render.CreatedSession(body) })
	})
}

func listSessionsTool(c Caller) (tools.Tool, error) {
	return tools.Bind(tools.Descriptor{
		Name:        ListSessionsName,
		Title:       "List Jules Sessions",
		Description: listSessionsDescription,
		InputSchema: tools.PaginatedSchema(),
		Annotations: tools.Annotations{ReadOnly: true, Idempotent: true},
	}, func(ctx context.Context, in tools.Paginated) (*mcp.CallToolResult, error) {
		body, err := c.Call(ctx, http.MethodGet, sessionsPath, nil, pageQuery(in))
		if err != nil {
			return nil, err
		}
		structured, n, err := listPage(body, "sessions")
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return tools.TextResult(render.NoSessions, nil), nil
		}
		return result(in.ResponseFormat, structured, func() string { return render.Sessions(body) })
	})
}

func getSessionTool(c Caller) (tools.Tool, error) {
	return tools.Bind(tools.Descriptor{
		Name:        GetSessionName,
		Title:       "Get Jules Session",
		Description: getSessionDescription,
		InputSchema: sessionSchema(),
		Annotations: tools.Annotations{ReadOnly: true, Idempotent: true},
	}, func(ctx context.Context, in sessionInput) (*mcp.CallToolResult, error) {
		path, err := sessionPath(GetSessionName, in.SessionID)
		if err != nil {
			return nil, err
		}
		body, err := c.Call(ctx, http.MethodGet, path, nil, nil)
		if err != nil {
			return nil, err
		}
		structured, err := decodeObject(body)
		if err != nil {
			return nil, err
		}
		return result(in.ResponseFormat, structured, func() string { return render.Session(body) })
	})
}

func approvePlanTool(c Caller) (tools.Tool, error) {
	return tools.Bind(tools.Descriptor{
		Name:        ApprovePlanName,
		Title:       "Approve Jules Session Plan",
		Description: approvePlanDescription,
		InputSchema: sessionSchema(),
		Annotations: tools.Annotations{Destructive: true},
	}, func(ctx context.Context, in sessionInput) (*mcp.CallToolResult, error) {
		path, err := sessionPath(ApprovePlanName, in.SessionID)
		if err != nil {
			return nil, err
		}
		body, err := c.Call(ctx, http.MethodPost, path+":approvePlan", map[string]any{}, nil)
		if err != nil {
			return nil, err
		}
		data, err := decodeObject(body)
		if err != nil {
			return nil, err
		}
		structured := map[string]any{
			"success": true,
			"session": in.SessionID,
			"data":    data,
		}
		return result(in.ResponseFormat, structured, func() string { return render.PlanApproved(in.SessionID) })
	})
}
