package report

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/wat/capture"
	"github.com/hazyhaar/wat/history"
	"github.com/hazyhaar/wat/horosafe"
	"github.com/hazyhaar/wat/kit"
	"github.com/hazyhaar/wat/suite"
)

// RegisterMCP registers the wat_compare, wat_history and wat_approve tools.
func (s *Server) RegisterMCP(srv *mcp.Server) {
	s.registerCompareTool(srv)
	s.registerHistoryTool(srv)
	s.registerApproveTool(srv)
}

func (s *Server) middleware(name string) kit.Middleware {
	return kit.Chain(kit.Logging(s.logger(), name))
}

// --- compare ---

type compareRequest struct {
	Actor string `json:"actor"`
	Tag   string `json:"tag"`
}

type compareResponse struct {
	Actor      string `json:"actor"`
	Tag        string `json:"tag"`
	Status     string `json:"status"`
	Mismatched int    `json:"mismatched"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	DiffPath   string `json:"diff_path,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (s *Server) registerCompareTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "wat_compare",
		Description: "Compare the latest screenshot of an actor checkpoint with its approved reference and write the diff image.",
		InputSchema: kit.InputSchema(map[string]any{
			"actor": map[string]any{"type": "string", "description": "Actor name, e.g. host or player1"},
			"tag":   map[string]any{"type": "string", "description": "Checkpoint tag, e.g. 03-1-lobby"},
		}, []string{"actor", "tag"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*compareRequest)
		if s.Suite == nil {
			return nil, errors.New("comparison is not configured")
		}
		if err := validateKey(r.Actor, r.Tag); err != nil {
			return nil, err
		}
		path := s.Store.Path(capture.Latest, r.Actor, r.Tag)
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("no latest capture %s/%s", r.Actor, r.Tag)
		}
		d := s.Suite.Compare(capture.Artifact{Actor: r.Actor, Tag: r.Tag, Path: path})
		resp := compareResponse{
			Actor: d.Actor, Tag: d.Tag, Status: d.Status,
			Mismatched: d.Result.Mismatched, Width: d.Result.Width, Height: d.Result.Height,
			DiffPath: d.DiffPath,
		}
		if d.Err != nil {
			resp.Error = d.Err.Error()
		}
		return resp, nil
	}
	kit.RegisterMCPTool(srv, tool, s.middleware(tool.Name)(endpoint), kit.DecodeJSON[compareRequest]())
}

func validateKey(actor, tag string) error {
	if err := horosafe.ValidateIdentifier(actor); err != nil {
		return fmt.Errorf("actor: %w", err)
	}
	if err := horosafe.ValidateIdentifier(tag); err != nil {
		return fmt.Errorf("tag: %w", err)
	}
	return nil
}

// --- history ---

type historyRequest struct {
	RunID string `json:"run_id,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

func (s *Server) registerHistoryTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "wat_history",
		Description: "List recent wat runs, or return one run with its scenario outcomes and screenshot comparisons. run_id \"latest\" selects the most recent run.",
		InputSchema: kit.InputSchema(map[string]any{
			"run_id": map[string]any{"type": "string", "description": "Run ID (run_...) or \"latest\"; omit to list runs"},
			"limit":  map[string]any{"type": "integer", "description": "Max runs to list (default 20)"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*historyRequest)
		if s.History == nil {
			return nil, errors.New("history is not configured")
		}
		switch r.RunID {
		case "":
			runs, err := s.History.Runs(ctx, r.Limit)
			if runs == nil {
				runs = []history.Run{}
			}
			return runs, err
		case "latest":
			return s.History.Latest(ctx)
		}
		return s.History.Get(ctx, r.RunID)
	}
	kit.RegisterMCPTool(srv, tool, s.middleware(tool.Name)(endpoint), kit.DecodeJSON[historyRequest]())
}

// --- approve ---

type approveRequest struct {
	Actor string `json:"actor,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

type approveResponse struct {
	Approved []string `json:"approved"`
}

func (s *Server) registerApproveTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "wat_approve",
		Description: "Promote latest screenshots to reference baselines. Without arguments every capture is approved; actor and tag narrow the selection.",
		InputSchema: kit.InputSchema(map[string]any{
			"actor": map[string]any{"type": "string", "description": "Only this actor"},
			"tag":   map[string]any{"type": "string", "description": "Only this checkpoint tag"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*approveRequest)
		arts, err := suite.Approve(s.Store, r.Actor, r.Tag)
		if err != nil {
			return nil, err
		}
		resp := approveResponse{Approved: make([]string, len(arts))}
		for i, a := range arts {
			resp.Approved[i] = a.Key()
		}
		return resp, nil
	}
	kit.RegisterMCPTool(srv, tool, s.middleware(tool.Name)(endpoint), kit.DecodeJSON[approveRequest]())
}
