package mcp

import (
	"context"
	"encoding/json"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"usage-projection/internal/config"
	"usage-projection/internal/engine"
	"usage-projection/internal/store"
)

// Version is reported to MCP clients during initialization.
var Version = "0.1.0"

// ResponseEnvelope wraps every tool payload with the caveats the caller
// must pass on before interpreting it.
type ResponseEnvelope struct {
	Data     any      `json:"data"`
	Warnings []string `json:"warnings,omitempty"`
	Guidance []string `json:"guidance,omitempty"`
}

// Server holds the state for the MCP server.
type Server struct {
	cfg      *config.AppConfig
	engine   *engine.Engine
	provider store.Provider
	mcp      *sdk.Server
}

// NewServer creates a new MCP server. provider may be nil, in which case
// only inline feature vectors are accepted and recalibration is disabled.
func NewServer(cfg *config.AppConfig, eng *engine.Engine, provider store.Provider) *Server {
	s := &Server{
		cfg:      cfg,
		engine:   eng,
		provider: provider,
		mcp: sdk.NewServer(&sdk.Implementation{
			Name:    "projection-mcp",
			Version: Version,
		}, nil),
	}
	s.registerTools()
	return s
}

// Serve runs the server over stdio until the client disconnects or ctx is
// cancelled.
func (s *Server) Serve(ctx context.Context) error {
	log.Info().Str("version", Version).Msg("Starting MCP server on stdio")
	return s.mcp.Run(ctx, &sdk.StdioTransport{})
}

// Connect attaches the server to an arbitrary transport.
func (s *Server) Connect(ctx context.Context, t sdk.Transport) (*sdk.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}

func (s *Server) formatResult(env ResponseEnvelope, extra ...string) *sdk.CallToolResult {
	out, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal tool result")
		out = []byte(`{"error":"result could not be encoded"}`)
	}
	res := &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: string(out)}},
	}
	for _, text := range extra {
		if text != "" {
			res.Content = append(res.Content, &sdk.TextContent{Text: text})
		}
	}
	return res
}
