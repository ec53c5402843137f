package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rendis/mabelstudio/internal/logging"
	"github.com/rendis/mabelstudio/internal/store"
	"github.com/rendis/mabelstudio/internal/studio"
	"github.com/rendis/mabelstudio/pkg/schema"
)

// handleInspect returns the inferred graph and validation outcome.
func (s *StudioServer) handleInspect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if projectID := req.GetString("project_id", ""); projectID != "" {
		ctx = logging.WithProjectID(ctx, projectID)
		insp, err := s.service.ProjectInspection(ctx, projectID)
		if err != nil {
			return toolError("inspect failed", err), nil
		}
		return marshalResult(insp)
	}
	doc, errResult := s.documentArg(req)
	if errResult != nil {
		return errResult, nil
	}
	return marshalResult(s.service.Inspect(ctx, doc))
}

// handleImport parses YAML into canvas state.
func (s *StudioServer) handleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("yaml")
	if err != nil || strings.TrimSpace(text) == "" {
		return mcp.NewToolResultError("yaml is required"), nil
	}
	doc, parseErr := s.service.ParseYAML([]byte(text))
	if parseErr != nil {
		return toolError("import failed", parseErr), nil
	}
	return marshalResult(map[string]any{
		"state":      doc,
		"validation": s.service.Validate(ctx, doc),
	})
}

// handleExport renders canvas state, or a stored project, as YAML. Exporting
// a project also records a revision.
func (s *StudioServer) handleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if projectID := req.GetString("project_id", ""); projectID != "" {
		ctx = logging.WithProjectID(ctx, projectID)
		rev, err := s.service.ExportProject(ctx, projectID, req.GetString("message", ""))
		if err != nil {
			return toolError("export failed", err), nil
		}
		return mcp.NewToolResultText(rev.YAML), nil
	}

	state := mcp.ParseStringMap(req, "state", nil)
	if state == nil {
		return mcp.NewToolResultError("one of state or project_id is required"), nil
	}
	doc, err := s.service.ParseState(state)
	if err != nil {
		return toolError("invalid state", err), nil
	}
	text, err := s.service.ExportYAML(doc)
	if err != nil {
		return toolError("export failed", err), nil
	}
	return mcp.NewToolResultText(string(text)), nil
}

// handleDiagram renders the inferred graph. Image formats come back base64-encoded.
func (s *StudioServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	doc, errResult := s.resolveDocument(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	out, renderErr := s.service.Diagram(ctx, doc, studio.DiagramFormat(format))
	if renderErr != nil {
		return toolError("diagram render failed", renderErr), nil
	}
	if strings.HasPrefix(out.ContentType, "image/") {
		encoded := base64.StdEncoding.EncodeToString(out.Body)
		return mcp.NewToolResultImage(fmt.Sprintf("%s diagram", format), encoded, out.ContentType), nil
	}
	return mcp.NewToolResultText(string(out.Body)), nil
}

// handleQuery runs a jq program over the document or filters its blocks.
func (s *StudioServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expression, err := req.RequireString("expr")
	if err != nil {
		return mcp.NewToolResultError("expr is required"), nil
	}
	doc, errResult := s.resolveDocument(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	switch mode := req.GetString("mode", "jq"); mode {
	case "jq":
		results, qErr := s.service.Query(ctx, expression, doc)
		if qErr != nil {
			return toolError("query failed", qErr), nil
		}
		return marshalResult(map[string]any{"results": results})
	case "filter":
		blocks, fErr := s.service.Filter(ctx, expression, doc)
		if fErr != nil {
			return toolError("filter failed", fErr), nil
		}
		return marshalResult(map[string]any{"blocks": blocks})
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown mode: %s", mode)), nil
	}
}

// handleProject manages stored projects.
func (s *StudioServer) handleProject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}
	projectID := req.GetString("project_id", "")
	if projectID == "" && action != "list" && action != "create" {
		return mcp.NewToolResultError("project_id is required"), nil
	}
	ctx = logging.WithProjectID(ctx, projectID)

	switch action {
	case "list":
		filter := mcp.ParseStringMap(req, "filter", nil)
		projects, listErr := s.service.ListProjects(ctx, store.ProjectFilter{
			NameContains: extractString(filter, "name"),
			Limit:        extractInt(filter, "limit", 50),
			Offset:       extractInt(filter, "offset", 0),
		})
		if listErr != nil {
			return toolError("list failed", listErr), nil
		}
		return marshalResult(map[string]any{"projects": projects, "total": len(projects)})

	case "create":
		p, createErr := s.service.CreateProject(ctx, req.GetString("name", ""), []byte(req.GetString("yaml", "")))
		if createErr != nil {
			return toolError("create failed", createErr), nil
		}
		return marshalResult(map[string]any{"id": p.ID, "name": p.Name, "block_count": p.BlockCount})

	case "get":
		p, getErr := s.service.GetProject(ctx, projectID)
		if getErr != nil {
			return toolError("project lookup failed", getErr), nil
		}
		doc, docErr := s.service.ProjectDocument(ctx, projectID)
		if docErr != nil {
			return toolError("project lookup failed", docErr), nil
		}
		p.Document = *doc
		return marshalResult(p)

	case "rename":
		name := req.GetString("name", "")
		if renameErr := s.service.RenameProject(ctx, projectID, &name, nil); renameErr != nil {
			return toolError("rename failed", renameErr), nil
		}
		return marshalResult(map[string]any{"id": projectID, "name": name})

	case "delete":
		if delErr := s.service.DeleteProject(ctx, projectID); delErr != nil {
			return toolError("delete failed", delErr), nil
		}
		s.sessions.Forget(projectID)
		return marshalResult(map[string]any{"id": projectID, "deleted": true})

	case "revisions":
		revs, revErr := s.service.Revisions(ctx, projectID, 0)
		if revErr != nil {
			return toolError("revision lookup failed", revErr), nil
		}
		return marshalResult(map[string]any{"revisions": revs, "total": len(revs)})

	case "history":
		history, histErr := s.service.BlockHistory(ctx, projectID)
		if histErr != nil {
			return toolError("history lookup failed", histErr), nil
		}
		return marshalResult(map[string]any{"blocks": history})

	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action: %s", action)), nil
	}
}

// handleBlock edits a single block of a stored project.
func (s *StudioServer) handleBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}
	projectID, err := req.RequireString("project_id")
	if err != nil {
		return mcp.NewToolResultError("project_id is required"), nil
	}
	blockID := req.GetString("block_id", "")
	if blockID == "" && action != "add" {
		return mcp.NewToolResultError("block_id is required"), nil
	}
	ctx = logging.WithBlockID(logging.WithProjectID(ctx, projectID), blockID)
	pos := extractPosition(mcp.ParseStringMap(req, "position", nil))

	switch action {
	case "add":
		blockType := req.GetString("type", "")
		if blockType == "" {
			return mcp.NewToolResultError("type is required"), nil
		}
		b, addErr := s.service.AddBlock(ctx, projectID, schema.BlockType(blockType), pos)
		if addErr != nil {
			return toolError("add failed", addErr), nil
		}
		return marshalResult(b)

	case "update":
		patch := mcp.ParseStringMap(req, "patch", nil)
		if patch == nil {
			return mcp.NewToolResultError("patch is required"), nil
		}
		raw, marshalErr := json.Marshal(patch)
		if marshalErr != nil {
			return toolError("invalid patch", marshalErr), nil
		}
		b, updErr := s.service.UpdateBlock(ctx, projectID, blockID, raw)
		if updErr != nil {
			return toolError("update failed", updErr), nil
		}
		return marshalResult(b)

	case "move":
		if pos == nil {
			return mcp.NewToolResultError("position is required"), nil
		}
		b, moveErr := s.service.MoveBlock(ctx, projectID, blockID, *pos)
		if moveErr != nil {
			return toolError("move failed", moveErr), nil
		}
		return marshalResult(b)

	case "remove":
		if rmErr := s.service.RemoveBlock(ctx, projectID, blockID); rmErr != nil {
			return toolError("remove failed", rmErr), nil
		}
		return marshalResult(map[string]any{"id": blockID, "removed": true})

	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action: %s", action)), nil
	}
}

// handleWatch maps the calling session to a project for notifications.
func (s *StudioServer) handleWatch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := req.RequireString("project_id")
	if err != nil {
		return mcp.NewToolResultError("project_id is required"), nil
	}
	session := server.ClientSessionFromContext(ctx)
	if session == nil {
		return mcp.NewToolResultError("watching requires a client session"), nil
	}
	if req.GetBool("stop", false) {
		s.sessions.Unwatch(projectID, session.SessionID())
		return marshalResult(map[string]any{"project_id": projectID, "watching": false})
	}
	if _, getErr := s.service.GetProject(ctx, projectID); getErr != nil {
		return toolError("project lookup failed", getErr), nil
	}
	s.sessions.Watch(projectID, session.SessionID())
	return marshalResult(map[string]any{"project_id": projectID, "watching": true})
}

// --- Helpers ---

// documentArg parses the required yaml argument.
func (s *StudioServer) documentArg(req mcp.CallToolRequest) (*schema.Document, *mcp.CallToolResult) {
	text := req.GetString("yaml", "")
	if strings.TrimSpace(text) == "" {
		return nil, mcp.NewToolResultError("one of yaml or project_id is required")
	}
	doc, err := s.service.ParseYAML([]byte(text))
	if err != nil {
		return nil, toolError("invalid yaml", err)
	}
	return doc, nil
}

// resolveDocument loads the stored project when project_id is given and
// otherwise parses yaml.
func (s *StudioServer) resolveDocument(ctx context.Context, req mcp.CallToolRequest) (*schema.Document, *mcp.CallToolResult) {
	if projectID := req.GetString("project_id", ""); projectID != "" {
		doc, err := s.service.ProjectDocument(logging.WithProjectID(ctx, projectID), projectID)
		if err != nil {
			return nil, toolError("project lookup failed", err)
		}
		return doc, nil
	}
	return s.documentArg(req)
}

// toolError formats err with its code and offending block when it is a
// StudioError.
func toolError(prefix string, err error) *mcp.CallToolResult {
	var se *schema.StudioError
	if errors.As(err, &se) {
		msg := fmt.Sprintf("%s: [%s] %s", prefix, se.Code, se.Message)
		if se.BlockID != "" {
			msg += fmt.Sprintf(" (block %s)", se.BlockID)
		}
		return mcp.NewToolResultError(msg)
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", prefix, err))
}

// extractInt safely extracts an integer from an argument map.
func extractInt(m map[string]any, key string, defaultVal int) int {
	if m == nil {
		return defaultVal
	}
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func extractString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// extractPosition reads {x, y}; nil when either coordinate is missing.
func extractPosition(m map[string]any) *schema.Position {
	x, okX := m["x"].(float64)
	y, okY := m["y"].(float64)
	if !okX || !okY {
		return nil
	}
	return &schema.Position{X: x, Y: y}
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
