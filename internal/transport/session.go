// Package transport implements the transport layer (C8): stdio and
// streamable-HTTP front-ends, the plugin-channel endpoint, and the
// connection-health monitor. It also owns the binding between one MCP
// session and the MCP SDK's *mcp.Server: the registered catalog is scoped
// to one session's bearer token, which is what multi-tenant routing
// requires: two sessions with different tokens must never see each
// other's tools.
package transport

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/roadrunner-plugins/mcp-bridge/internal/handlers"
	"github.com/roadrunner-plugins/mcp-bridge/protocol"
)

// ServerImplementation identifies this bridge to connecting MCP clients.
var ServerImplementation = &mcp.Implementation{
	Name:    "mcp-bridge",
	Version: "1.0.0",
}

// binding owns the *mcp.Server instance shared by every MCP session that
// presents one bearer token, and keeps its
// registered tool/prompt/resource catalog in sync with whatever the
// routed plugin currently publishes for this session's token.
type binding struct {
	deps  *handlers.Deps
	token string
	log   *zap.Logger

	server *mcp.Server

	bootstrapOnce sync.Once

	mu        sync.Mutex
	tools     map[string]bool
	prompts   map[string]bool
	resources map[string]bool
	templates map[string]bool
}

func newBinding(deps *handlers.Deps, token string, log *zap.Logger) *binding {
	b := &binding{
		deps:      deps,
		token:     token,
		log:       log,
		tools:     make(map[string]bool),
		prompts:   make(map[string]bool),
		resources: make(map[string]bool),
		templates: make(map[string]bool),
	}
	b.server = mcp.NewServer(ServerImplementation, &mcp.ServerOptions{
		Capabilities: mcp.ServerCapabilities{
			Tools:     &mcp.ToolsCapability{ListChanged: boolPtr(true)},
			Prompts:   &mcp.PromptsCapability{ListChanged: boolPtr(true)},
			Resources: &mcp.ResourcesCapability{ListChanged: boolPtr(true)},
		},
	})
	return b
}

func boolPtr(b bool) *bool { return &b }

// bootstrap performs the initial catalog population. It runs at most once
// per binding, on the first session's context, so later sessions sharing
// the token never repeat the sync or wait behind it.
func (b *binding) bootstrap(ctx context.Context) {
	b.bootstrapOnce.Do(func() {
		b.syncTools(ctx)
		b.syncPrompts(ctx)
		b.syncResources(ctx)
	})
}

// NotifyToolListChanged implements mcpsession.Notifier: it refreshes this
// session's tool catalog against the routed plugin. Add/RemoveTool on the
// underlying *mcp.Server already emit the SDK's own tools/list_changed
// notification to every connected client session once ToolsCapability's
// ListChanged flag is set, so syncTools is the only step the
// bridge itself must perform.
func (b *binding) NotifyToolListChanged(ctx context.Context) error {
	b.syncTools(ctx)
	return nil
}

func (b *binding) NotifyPromptListChanged(ctx context.Context) error {
	b.syncPrompts(ctx)
	return nil
}

func (b *binding) NotifyResourceListChanged(ctx context.Context) error {
	b.syncResources(ctx)
	return nil
}

func (b *binding) syncTools(ctx context.Context) {
	list, err := b.deps.ListTools(ctx, b.token)
	if err != nil {
		b.log.Warn("tool catalog refresh failed", zap.Error(err))
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[string]bool, len(list))
	for _, t := range list {
		seen[t.Name] = true
		if b.tools[t.Name] {
			continue
		}
		name := t.Name
		mcp.AddTool(b.server, &mcp.Tool{
			Name:        t.Name,
			Title:       t.Title,
			Description: t.Description,
			InputSchema: json.RawMessage(t.InputSchema),
		}, b.callToolHandler(name))
		b.tools[t.Name] = true
	}
	b.removeStale(b.tools, seen, func(names []string) { b.server.RemoveTools(names...) })
}

func (b *binding) syncPrompts(ctx context.Context) {
	list, err := b.deps.ListPrompts(ctx, b.token)
	if err != nil {
		b.log.Warn("prompt catalog refresh failed", zap.Error(err))
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[string]bool, len(list))
	for _, p := range list {
		seen[p.Name] = true
		if b.prompts[p.Name] {
			continue
		}
		name := p.Name
		args := make([]*mcp.PromptArgument, 0, len(p.Arguments))
		for _, a := range p.Arguments {
			args = append(args, &mcp.PromptArgument{Name: a.Name, Description: a.Description, Required: a.Required})
		}
		b.server.AddPrompt(&mcp.Prompt{
			Name:        p.Name,
			Title:       p.Title,
			Description: p.Description,
			Arguments:   args,
		}, b.getPromptHandler(name))
		b.prompts[p.Name] = true
	}
	b.removeStale(b.prompts, seen, func(names []string) { b.server.RemovePrompts(names...) })
}

func (b *binding) syncResources(ctx context.Context) {
	list, err := b.deps.ListResources(ctx, b.token)
	if err != nil {
		b.log.Warn("resource catalog refresh failed", zap.Error(err))
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[string]bool, len(list))
	for _, r := range list {
		seen[r.URI] = true
		if b.resources[r.URI] {
			continue
		}
		uri := r.URI
		b.server.AddResource(&mcp.Resource{
			URI:         r.URI,
			Name:        r.Name,
			Description: r.Description,
			MIMEType:    r.MIMEType,
		}, b.readResourceHandler(uri))
		b.resources[r.URI] = true
	}
	b.removeStale(b.resources, seen, func(uris []string) { b.server.RemoveResources(uris...) })

	templates, err := b.deps.ListResourceTemplates(ctx, b.token)
	if err != nil {
		b.log.Warn("resource template catalog refresh failed", zap.Error(err))
		return
	}
	for _, t := range templates {
		if b.templates[t.URITemplate] {
			continue
		}
		b.server.AddResourceTemplate(&mcp.ResourceTemplate{
			URITemplate: t.URITemplate,
			Name:        t.Name,
			Description: t.Description,
			MIMEType:    t.MIMEType,
		}, b.readTemplatedResourceHandler())
		b.templates[t.URITemplate] = true
	}
}

// removeStale drops catalog entries no longer reported by the plugin, the
// mirror image of the add loop above.
func (b *binding) removeStale(current map[string]bool, seen map[string]bool, remove func([]string)) {
	var gone []string
	for name := range current {
		if !seen[name] {
			gone = append(gone, name)
			delete(current, name)
		}
	}
	if len(gone) > 0 {
		remove(gone)
	}
}

func (b *binding) callToolHandler(name string) func(context.Context, *mcp.CallToolRequest, map[string]any) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
		argsJSON, err := json.Marshal(args)
		if err != nil {
			return errorResult(err), nil, nil
		}
		resp, err := b.deps.CallTool(ctx, b.token, name, argsJSON)
		if err != nil {
			return errorResult(err), nil, nil
		}
		return toCallToolResult(resp), nil, nil
	}
}

func (b *binding) getPromptHandler(name string) func(context.Context, *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		var args map[string]string
		if req.Params != nil {
			args = req.Params.Arguments
		}
		result, err := b.deps.GetPrompt(ctx, b.token, name, args)
		if err != nil {
			return nil, err
		}
		messages := make([]*mcp.PromptMessage, 0, len(result.Messages))
		for _, m := range result.Messages {
			content := toMCPContent([]protocol.ContentBlock{m.Content})
			if len(content) == 0 {
				// A resource block with no body converts to nothing; keep
				// the message well-formed rather than dropping the turn.
				content = []mcp.Content{&mcp.TextContent{}}
			}
			messages = append(messages, &mcp.PromptMessage{
				Role:    mcp.Role(m.Role),
				Content: content[0],
			})
		}
		return &mcp.GetPromptResult{Description: result.Description, Messages: messages}, nil
	}
}

func (b *binding) readResourceHandler(uri string) func(context.Context, *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return b.readResource(ctx, uri)
	}
}

// readTemplatedResourceHandler resolves the concrete URI from the request
// params: templated resources have no fixed URI to close over.
func (b *binding) readTemplatedResourceHandler() func(context.Context, *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		uri := ""
		if req != nil && req.Params != nil {
			uri = req.Params.URI
		}
		return b.readResource(ctx, uri)
	}
}

func (b *binding) readResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	contents, err := b.deps.ReadResource(ctx, b.token, uri)
	if err != nil {
		return nil, err
	}
	out := make([]*mcp.ResourceContents, 0, len(contents))
	for _, c := range contents {
		out = append(out, &mcp.ResourceContents{
			URI:      c.URI,
			MIMEType: c.MIMEType,
			Text:     c.Text,
			Blob:     decodeBase64(c.Blob),
		})
	}
	return &mcp.ReadResourceResult{Contents: out}, nil
}
