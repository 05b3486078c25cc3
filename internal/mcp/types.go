// Package mcp holds the vocabulary shared by the julesmcp MCP packages.
package mcp

// Transport selects how the MCP server is exposed to its host.
type Transport string

const (
	// TransportStdio serves newline-delimited JSON-RPC on stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP serves the MCP Streamable HTTP protocol.
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}
