package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/notesprefs/internal/preference"
	"github.com/kalambet/notesprefs/internal/settings"
)

const currentPrefsURI = "prefs://current"

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Manager *settings.Manager
	Caps    preference.Capabilities
	Version string
}

// NewMCPServer creates an MCP server exposing the preference tools and the
// current-preferences resource.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"notesprefs",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("notesprefs: note app display and behavior preferences with typed options and defaults."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_domains",
			mcp.WithDescription("List every preference domain with its options, default and per-option support."),
			mcp.WithNumber("platform_version", mcp.Description("Platform version to evaluate support against (defaults to the server runtime)")),
		),
		mcpListDomains(deps),
	)

	s.AddTool(
		mcp.NewTool("get_preference",
			mcp.WithDescription("Return the effective option of a preference domain."),
			mcp.WithString("key", mcp.Description("Domain key (e.g. sort_method)"), mcp.Required()),
		),
		mcpGetPreference(deps),
	)

	s.AddTool(
		mcp.NewTool("set_preference",
			mcp.WithDescription("Select an option for a preference domain."),
			mcp.WithString("key", mcp.Description("Domain key (e.g. sort_method)"), mcp.Required()),
			mcp.WithString("option", mcp.Description("Option identifier (e.g. TITLE_ASC)"), mcp.Required()),
			mcp.WithNumber("platform_version", mcp.Description("Platform version of the caller (defaults to the server runtime)")),
		),
		mcpSetPreference(deps),
	)

	s.AddTool(
		mcp.NewTool("reset_preference",
			mcp.WithDescription("Clear a stored preference so the domain default applies."),
			mcp.WithString("key", mcp.Description("Domain key"), mcp.Required()),
		),
		mcpResetPreference(deps),
	)

	s.AddResource(
		mcp.NewResource(
			currentPrefsURI,
			"Current Preferences",
			mcp.WithResourceDescription("Effective option of every preference domain as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceCurrent(deps),
	)

	return s
}

func toolCaps(req mcp.CallToolRequest, def preference.Capabilities) preference.Capabilities {
	if v := req.GetInt("platform_version", -1); v >= 0 {
		return preference.Capabilities{PlatformVersion: v}
	}
	return def
}

func mcpListDomains(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		docs := preference.Export(deps.Manager.Registry(), toolCaps(req, deps.Caps))
		b, err := json.Marshal(docs)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal domains: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetPreference(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}
		sel, err := deps.Manager.Get(ctx, key)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get preference: %v", err)), nil
		}
		b, err := json.Marshal(selectionDoc(sel))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal preference: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSetPreference(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}
		id, err := req.RequireString("option")
		if err != nil {
			return mcpError("option is required"), nil
		}

		opt, err := deps.Manager.Set(ctx, key, id, toolCaps(req, deps.Caps))
		if err != nil {
			if errors.Is(err, settings.ErrUnknownOption) {
				return mcpError(fmt.Sprintf("%v (valid: %s)", err, optionIDs(deps.Manager, key))), nil
			}
			return mcpError(fmt.Sprintf("failed to set preference: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Set %s = %s", key, opt.ID)), nil
	}
}

func mcpResetPreference(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}
		def, err := deps.Manager.Reset(ctx, key)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to reset preference: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Reset %s to default %s", key, def.ID)), nil
	}
}

func mcpResourceCurrent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		sels, err := deps.Manager.Snapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read preferences: %w", err)
		}
		current := make(map[string]string, len(sels))
		for _, s := range sels {
			current[s.Key] = s.Option.ID
		}

		b, err := json.Marshal(current)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal preferences: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func optionIDs(m *settings.Manager, key string) string {
	opts, err := m.Registry().Options(key)
	if err != nil {
		return ""
	}
	ids := make([]string, len(opts))
	for i, o := range opts {
		ids[i] = o.ID
	}
	return strings.Join(ids, ", ")
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
