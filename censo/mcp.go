// CLAUDE:SUMMARY Registers the censo_verify_identifier MCP tool via kit.RegisterMCPTool.
package censo

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/censo/idgen"
	"github.com/hazyhaar/censo/kit"
)

type verifyReq struct {
	Identifier string `json:"cedula"`
}

// RegisterMCP registers the censo_verify_identifier tool on srv.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name: "censo_verify_identifier",
		Description: "Look up a Colombian citizen ID (cédula, 7 to 10 digits) in the electoral census. " +
			"Returns existe, nombre, lugarVotacion and a kind among found, not_registered, blocked, " +
			"layout_mismatch, timeout, ambiguous and error.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"cedula": map[string]any{"type": "string", "description": "Citizen ID, digits only"},
			},
			"required": []string{"cedula"},
		},
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*verifyReq)
		rec, err := s.verify(ctx, r.Identifier)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"id":        rec.ID,
			"resultado": rec.Result,
		}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r verifyReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		r.Identifier = strings.TrimSpace(r.Identifier)
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	mw := kit.Chain(traced, s.logCalls(tool.Name))
	kit.RegisterMCPTool(srv, tool, mw(endpoint), decode)
}

var newTraceID = idgen.NanoID(12)

// traced gives tool calls the trace ID shield.TraceID gives HTTP requests.
func traced(next kit.Endpoint) kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		if kit.GetTraceID(ctx) == "" {
			ctx = kit.WithTraceID(ctx, newTraceID())
		}
		return next(ctx, req)
	}
}

func (s *Service) logCalls(tool string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			log := s.logger.With("tool", tool, "trace_id", kit.GetTraceID(ctx), "duration", time.Since(start))
			if err != nil {
				log.Info("censo: mcp call failed", "error", err)
			} else {
				log.Debug("censo: mcp call")
			}
			return resp, err
		}
	}
}
