package julestools

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/julesmcp/internal/mcp/tools"
	"github.com/MrWong99/julesmcp/internal/render"
)

const listSourcesDescription = `List your available sources connected to Jules (e.g., GitHub repositories).

Use this to find the name of the source you want to work with before creating a session.

Args:
  - pageSize (number): Maximum results to return (default: 20)
  - pageToken (string): Page token for retrieving the next page
  - response_format ('markdown' | 'json'): Output format (default: 'markdown')

Returns:
  A list of sources available to the user.`

func listSourcesTool(c Caller) (tools.Tool, error) {
	return tools.Bind(tools.Descriptor{
		Name:        ListSourcesName,
		Title:       "List Jules Sources",
		Description: listSourcesDescription,
		InputSchema: tools.PaginatedSchema(),
		Annotations: tools.Annotations{ReadOnly: true, Idempotent: true},
	}, func(ctx context.Context, in tools.Paginated) (*mcp.CallToolResult, error) {
		body, err := c.Call(ctx, http.MethodGet, sourcesPath, nil, pageQuery(in))
		if err != nil {
			return nil, err
		}
		structured, n, err := listPage(body, "sources")
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return tools.TextResult(render.NoSources, nil), nil
		}
		return result(in.ResponseFormat, structured, func() string { return render.Sources(body) })
	})
}
