package tools

import (
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// TextResult is a successful envelope carrying text and, optionally, the
// structured value the text was rendered from. A nil structured value leaves
// StructuredContent unset.
func TextResult(text string, structured any) *mcp.CallToolResult {
	res := &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
	if structured != nil {
		res.StructuredContent = structured
	}
	return res
}

// ErrorResult is a failed envelope whose only content is msg.
func ErrorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// Text concatenates all text content of res.
func Text(res *mcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}
