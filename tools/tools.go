package tools

import (
	"context"
	"encoding/json"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/domprobe/kit"
)

// definition ties a tool name to its endpoint and request type.
type definition struct {
	name        string
	description string
	schema      map[string]any
	newRequest  func() any
	endpoint    kit.Endpoint
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

var sessionProp = prop("string", "Session id (default: \"default\")")

func locatorProps() map[string]any {
	return map[string]any{
		"session":  sessionProp,
		"selector": prop("string", "CSS selector; a comma list is evaluated selector by selector in query_all"),
		"role":     prop("string", "ARIA role, used when no selector is given"),
		"name":     prop("string", "Accessible name filter for role (case-insensitive substring)"),
		"text":     prop("string", "Text the element contains, used when neither selector nor role is given"),
		"visible":  prop("boolean", "Only report visible elements"),
	}
}

func pageProps() map[string]any {
	return map[string]any{"session": sessionProp}
}

func (s *Service) definitions() []definition {
	return []definition{
		{
			name:        "navigate",
			description: "Open or reuse a browser session and load a URL.",
			schema: inputSchema(map[string]any{
				"session": sessionProp,
				"url":     prop("string", "Absolute URL to load"),
			}, []string{"url"}),
			newRequest: func() any { return &navigateRequest{} },
			endpoint:   s.navigateEndpoint,
		},
		{
			name:        "get_structure",
			description: "Outline the document as indented tags. Significant elements always expand; others expand above maxDepth.",
			schema: inputSchema(map[string]any{
				"session":  sessionProp,
				"selector": prop("string", "Scope the outline to the top-level matches of this selector"),
				"maxDepth": prop("integer", "Depth below which insignificant elements collapse (default 3)"),
			}, nil),
			newRequest: func() any { return &queryRequest{} },
			endpoint:   s.structureEndpoint,
		},
		{
			name:        "query_element",
			description: "Find one element by selector, role + name, or text and report its snapshot.",
			schema:      inputSchema(locatorProps(), nil),
			newRequest:  func() any { return &queryRequest{} },
			endpoint:    s.queryEndpoint,
		},
		{
			name:        "query_all",
			description: "Find every element matching selector, role + name, or text.",
			schema:      inputSchema(locatorProps(), nil),
			newRequest:  func() any { return &queryRequest{} },
			endpoint:    s.queryAllEndpoint,
		},
		{
			name:        "get_interactive_elements",
			description: "List buttons, inputs, text areas and selects with their kind, label and state.",
			schema:      inputSchema(pageProps(), nil),
			newRequest:  func() any { return &pageRequest{} },
			endpoint:    s.interactiveEndpoint,
		},
		{
			name:        "get_all_content",
			description: "Convert the page to a Markdown document: title, description and main content.",
			schema:      inputSchema(pageProps(), nil),
			newRequest:  func() any { return &pageRequest{} },
			endpoint:    s.allContentEndpoint,
		},
		{
			name:        "get_commonmark",
			description: "Convert the sanitized page to strict CommonMark.",
			schema:      inputSchema(pageProps(), nil),
			newRequest:  func() any { return &pageRequest{} },
			endpoint:    s.commonmarkEndpoint,
		},
		{
			name:        "get_visible_content",
			description: "Convert only the part of the page currently visible in the viewport to Markdown.",
			schema:      inputSchema(pageProps(), nil),
			newRequest:  func() any { return &pageRequest{} },
			endpoint:    s.visibleContentEndpoint,
		},
		{
			name:        "observe_start",
			description: "Watch the document for changes. Events are queued for observe_poll.",
			schema: inputSchema(map[string]any{
				"session":         sessionProp,
				"selector":        prop("string", "Root to watch (default: body)"),
				"attributes":      prop("boolean", "Report attribute changes"),
				"childList":       prop("boolean", "Report added and removed elements"),
				"subtree":         prop("boolean", "Watch the whole subtree of the root"),
				"attributeFilter": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Only report these attributes"},
			}, nil),
			newRequest: func() any { return &observeStartRequest{} },
			endpoint:   s.observeStartEndpoint,
		},
		{
			name:        "observe_poll",
			description: "Return the events queued for a subscription, oldest first.",
			schema: inputSchema(map[string]any{
				"subscriptionId": prop("string", "Id returned by observe_start"),
				"max":            prop("integer", "Maximum events to return (default: all)"),
			}, []string{"subscriptionId"}),
			newRequest: func() any { return &observePollRequest{} },
			endpoint:   s.observePollEndpoint,
		},
		{
			name:        "observe_stop",
			description: "End a subscription. No event is delivered afterwards.",
			schema: inputSchema(map[string]any{
				"subscriptionId": prop("string", "Id returned by observe_start"),
			}, []string{"subscriptionId"}),
			newRequest: func() any { return &observeStopRequest{} },
			endpoint:   s.observeStopEndpoint,
		},
	}
}

// wrap applies the per-call middleware.
func (s *Service) wrap(d definition) kit.Endpoint {
	return kit.Chain(
		kit.Logging(s.logger, d.name),
		kit.Recovery(s.logger),
		kit.Timeout(s.cfg.CallTimeout),
	)(d.endpoint)
}

func decodeJSON(d definition, raw []byte) (any, error) {
	req := d.newRequest()
	if len(raw) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(raw, req); err != nil {
		return nil, err
	}
	return req, nil
}

// RegisterMCP registers every tool on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	for _, d := range s.definitions() {
		tool := &mcp.Tool{
			Name:        d.name,
			Description: d.description,
			InputSchema: d.schema,
		}
		decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
			r, err := decodeJSON(d, req.Params.Arguments)
			if err != nil {
				return nil, err
			}
			return &kit.MCPDecodeResult{
				Request: r,
				EnrichCtx: func(ctx context.Context) context.Context {
					if req.Session != nil {
						ctx = kit.WithSessionID(ctx, req.Session.ID())
					}
					return ctx
				},
			}, nil
		}
		kit.RegisterMCPTool(srv, tool, s.wrap(d), decode)
	}
}

// RegisterHTTP mounts POST /v1/<tool> for every tool.
func (s *Service) RegisterHTTP(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		for _, d := range s.definitions() {
			decode := func(body []byte) (any, error) { return decodeJSON(d, body) }
			r.Post("/"+d.name, kit.HTTPHandler(s.wrap(d), decode))
		}
	})
}

// Names lists the tool names in registration order.
func (s *Service) Names() []string {
	defs := s.definitions()
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.name
	}
	return out
}
