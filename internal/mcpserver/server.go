// Package mcpserver exposes the safety engine as Model Context Protocol tools so that assistants can check limits and
// plans before they propose them to a user.
package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/myrjola/liftguard/internal/errors"
	"github.com/myrjola/liftguard/internal/workout"
)

const policyURI = "liftguard://policy"

// New creates an MCP server with the engine tools and the policy resource registered.
func New(svc *workout.Service, version string, logger *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("liftguard", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("liftguard checks workout plans against safety limits resolved from age, "+
			"fitness level, goal and injury status. Never present a plan to a user unless validate_workout "+
			"returned it as accepted or clamped."),
	)

	h := &handlers{svc: svc, logger: logger}
	s.AddTools(
		server.ServerTool{Tool: toolResolveLimits, Handler: h.resolveLimits},
		server.ServerTool{Tool: toolValidateWorkout, Handler: h.validateWorkout},
		server.ServerTool{Tool: toolAnalyzeProgression, Handler: h.analyzeProgression},
	)
	s.AddResources(
		server.ServerResource{Resource: resPolicy, Handler: h.policy},
	)
	return s
}

// Handler serves s over the streamable HTTP transport. Every request is handled without session state.
func Handler(s *server.MCPServer) http.Handler {
	return server.NewStreamableHTTPServer(s, server.WithStateLess(true))
}

type handlers struct {
	svc    *workout.Service
	logger *slog.Logger
}

//nolint:gochecknoglobals // resource definition.
var resPolicy = mcp.NewResource(
	policyURI,
	"Safety policy",
	mcp.WithResourceDescription("The active versioned table of safety limits"),
	mcp.WithMIMEType("application/json"),
)

func (h *handlers) policy(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(h.svc.Policy())
	if err != nil {
		return nil, errors.Wrap(err, "marshal policy")
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
