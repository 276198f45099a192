package pluginsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"

	"github.com/roadrunner-server/errors"

	"github.com/roadrunner-plugins/mcp-bridge/protocol"
)

// Param describes one formal parameter of a registered callable. Go
// doesn't retain parameter names in reflect.Type, so unlike a reflective
// host language the caller must supply them explicitly at registration
// time.
type Param struct {
	Name string
	// Default, when non-nil, is used for a missing optional argument.
	Default any
	// RequestID marks this parameter as the request-id injection point:
	// never taken from caller input, never exposed in the schema.
	RequestID bool
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// runnable is the shared shape behind IRunTool/IRunPrompt/IRunResource/
// IRunResourceContent: one reflected function plus its
// parameter/schema metadata.
type runnable struct {
	name         string
	title        string
	description  string
	params       []Param
	fn           reflect.Value
	fnType       reflect.Type
	inputSchema  json.RawMessage
	outputSchema json.RawMessage
	enabled      bool
	tokenCost    int
	validator    *Validator

	// inputIdx[i] is the fn input index params[i] binds to. context.Context
	// inputs are never parameter-bound; they receive the call context.
	inputIdx []int

	// caseInsensitive reports, per declared parameter name (lowercased),
	// whether exactly one parameter maps to it: case normalization only
	// applies where there's no case conflict.
	caseInsensitive map[string]string // lower(name) -> canonical name, only when unambiguous
}

func newRunnable(name, title, description string, fn any, params []Param, schemaProvider SchemaProvider) (*runnable, error) {
	const op = errors.Op("pluginsdk_new_runnable")

	fnVal := reflect.ValueOf(fn)
	if fnVal.Kind() != reflect.Func {
		return nil, errors.E(op, errors.Str("fn must be a function"))
	}
	fnType := fnVal.Type()
	if fnType.IsVariadic() {
		return nil, errors.E(op, errors.Str("variadic tool functions are not supported"))
	}

	var bindable []int
	for i := 0; i < fnType.NumIn(); i++ {
		if fnType.In(i) != contextType {
			bindable = append(bindable, i)
		}
	}
	if len(bindable) != len(params) {
		return nil, errors.E(op, errors.Str(fmt.Sprintf(
			"parameter count mismatch: %s declares %d bindable inputs, %d Params given",
			name, len(bindable), len(params))))
	}

	r := &runnable{
		name:        name,
		title:       title,
		description: description,
		params:      params,
		fn:          fnVal,
		fnType:      fnType,
		inputIdx:    bindable,
		enabled:     true,
	}

	lower := make(map[string]int, len(params))
	r.caseInsensitive = make(map[string]string, len(params))
	for _, p := range params {
		key := strings.ToLower(p.Name)
		lower[key]++
	}
	for _, p := range params {
		key := strings.ToLower(p.Name)
		if lower[key] == 1 {
			r.caseInsensitive[key] = p.Name
		}
	}

	inputSample := r.sampleInput()
	inSchema, err := schemaProvider.Schema(inputSample)
	if err != nil {
		return nil, errors.E(op, err)
	}
	r.inputSchema = inSchema

	if fnType.NumOut() > 0 {
		outType := fnType.Out(0)
		if outType != errorType {
			outSchema, err := schemaProvider.Schema(reflectZero(outType))
			if err != nil {
				return nil, errors.E(op, err)
			}
			r.outputSchema = outSchema
		}
	}

	r.tokenCost = estimateTokenCost(r)
	return r, nil
}

// sampleInput builds a synthetic struct value whose fields mirror the
// non-RequestID parameters, for schema reflection purposes only.
func (r *runnable) sampleInput() any {
	var fields []reflect.StructField
	n := 0
	for i, p := range r.params {
		if p.RequestID {
			continue
		}
		tag := fmt.Sprintf(`json:"%s"`, p.Name)
		if p.Default != nil {
			// A defaulted parameter is optional; omitempty keeps the
			// generated schema from listing it as required.
			tag = fmt.Sprintf(`json:"%s,omitempty"`, p.Name)
		}
		fields = append(fields, reflect.StructField{
			Name: fmt.Sprintf("F%d", n),
			Type: r.fnType.In(r.inputIdx[i]),
			Tag:  reflect.StructTag(tag),
		})
		n++
	}
	if len(fields) == 0 {
		return struct{}{}
	}
	st := reflect.StructOf(fields)
	return reflect.New(st).Elem().Interface()
}

// Name, Title, Description, InputSchema, OutputSchema, Enabled, TokenCost
// implement the read side of IRunX.
func (r *runnable) Name() string                  { return r.name }
func (r *runnable) Title() string                 { return r.title }
func (r *runnable) Description() string           { return r.description }
func (r *runnable) InputSchema() json.RawMessage  { return r.inputSchema }
func (r *runnable) OutputSchema() json.RawMessage { return r.outputSchema }
func (r *runnable) Enabled() bool                 { return r.enabled }
func (r *runnable) SetEnabled(v bool)             { r.enabled = v }
func (r *runnable) TokenCost() int                { return r.tokenCost }

// canonicalize maps argument keys onto their declared parameter names
// where a case-insensitive match is unambiguous; every other key passes
// through unchanged. Run before schema validation so a case-variant key
// counts as the declared property.
func (r *runnable) canonicalize(named map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(named))
	for k, v := range named {
		if canon, ok := r.caseInsensitive[strings.ToLower(k)]; ok {
			out[canon] = v
			continue
		}
		out[k] = v
	}
	return out
}

// invokeNamed resolves named arguments against the declared parameters
// (case-insensitive only where unambiguous), injects
// requestID into the RequestID-tagged parameter, fills missing optional
// parameters from their declared default, and calls fn by reflection.
func (r *runnable) invokeNamed(ctx context.Context, requestID string, named map[string]json.RawMessage) (any, error) {
	const op = errors.Op("pluginsdk_invoke_named")

	args := make([]reflect.Value, r.fnType.NumIn())
	for i, p := range r.params {
		idx := r.inputIdx[i]
		argType := r.fnType.In(idx)

		if p.RequestID {
			args[idx] = requestIDArgValue(argType, requestID)
			continue
		}

		raw, ok := named[p.Name]
		if !ok {
			if _, unambiguous := r.caseInsensitive[strings.ToLower(p.Name)]; unambiguous {
				for k, v := range named {
					if strings.EqualFold(k, p.Name) {
						raw, ok = v, true
						break
					}
				}
			}
		}

		if !ok {
			if p.Default != nil {
				args[idx] = reflect.ValueOf(p.Default).Convert(argType)
				continue
			}
			return nil, errors.E(op, errors.Str("missing required argument: "+p.Name))
		}

		v, err := decodeArg(raw, argType)
		if err != nil {
			return nil, errors.E(op, errors.Str("argument "+p.Name+": "+err.Error()))
		}
		args[idx] = v
	}

	return r.call(ctx, args)
}

// invokePositional resolves positional arguments in declared-parameter
// order. RequestID-tagged slots are skipped entirely; they never come
// from caller input.
func (r *runnable) invokePositional(ctx context.Context, requestID string, positional []json.RawMessage) (any, error) {
	const op = errors.Op("pluginsdk_invoke_positional")

	args := make([]reflect.Value, r.fnType.NumIn())
	pos := 0
	for i, p := range r.params {
		idx := r.inputIdx[i]
		argType := r.fnType.In(idx)

		if p.RequestID {
			args[idx] = requestIDArgValue(argType, requestID)
			continue
		}

		if pos >= len(positional) {
			if p.Default != nil {
				args[idx] = reflect.ValueOf(p.Default).Convert(argType)
				continue
			}
			return nil, errors.E(op, errors.Str("missing required argument: "+p.Name))
		}

		v, err := decodeArg(positional[pos], argType)
		pos++
		if err != nil {
			return nil, errors.E(op, errors.Str("argument "+p.Name+": "+err.Error()))
		}
		args[idx] = v
	}

	if pos < len(positional) {
		return nil, errors.E(op, errors.Str(fmt.Sprintf("too many arguments: got %d, want at most %d", len(positional), pos)))
	}

	return r.call(ctx, args)
}

func (r *runnable) call(ctx context.Context, args []reflect.Value) (result any, err error) {
	const op = errors.Op("pluginsdk_call")

	for i, argType := range paramTypes(r.fnType) {
		if argType == contextType {
			args[i] = reflect.ValueOf(ctx)
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = errors.E(op, errors.Str(fmt.Sprintf("panic during dispatch: %v", rec)))
		}
	}()

	out := r.fn.Call(args)
	if len(out) == 0 {
		return nil, nil
	}

	last := out[len(out)-1]
	if r.fnType.Out(len(out)-1) == errorType {
		if !last.IsNil() {
			return nil, last.Interface().(error)
		}
		if len(out) == 1 {
			return nil, nil
		}
	}
	return out[0].Interface(), nil
}

func paramTypes(t reflect.Type) []reflect.Type {
	types := make([]reflect.Type, t.NumIn())
	for i := range types {
		types[i] = t.In(i)
	}
	return types
}

func requestIDArgValue(argType reflect.Type, requestID string) reflect.Value {
	if argType.Kind() == reflect.String {
		return reflect.ValueOf(requestID).Convert(argType)
	}
	return reflect.Zero(argType)
}

func decodeArg(raw json.RawMessage, t reflect.Type) (reflect.Value, error) {
	ptr := reflect.New(t)
	if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
		return reflect.Value{}, err
	}
	return ptr.Elem(), nil
}

// toResponse converts a dispatch result into the Response envelope: a
// protocol.Response return is passed through with
// request-id stamping; a primitive is wrapped as Success text; anything
// else is JSON-serialised and wrapped as SuccessStructured.
func toResponse(requestID string, result any, callErr error) protocol.Response {
	if callErr != nil {
		return protocol.Error(requestID, callErr.Error())
	}

	if resp, ok := result.(protocol.Response); ok {
		resp.RequestID = requestID
		return resp
	}

	if result == nil {
		return protocol.Success(requestID, "")
	}

	rv := reflect.ValueOf(result)
	if isPrimitive(rv) {
		return protocol.Success(requestID, fmt.Sprintf("%v", result))
	}

	b, err := json.Marshal(result)
	if err != nil {
		return protocol.Error(requestID, "failed to serialize result: "+err.Error())
	}
	return protocol.SuccessStructured(requestID, b)
}

func isPrimitive(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// estimateTokenCost approximates the catalog cost of advertising this
// callable to a model:
// ceil(len(serialized name/title/description/inputSchema/outputSchema)/4).
func estimateTokenCost(r *runnable) int {
	parts := r.name + r.title + r.description + string(r.inputSchema) + string(r.outputSchema)
	return int(math.Ceil(float64(len(parts)) / 4.0))
}

// Registry is the host-side collection of registered tools, prompts, and
// resources. One Registry backs one Client. Building a
// Client over a Registry seals it: registration is one-shot and any later
// RegisterX call fails.
type Registry struct {
	mu        sync.RWMutex
	schema    SchemaProvider
	sealed    bool
	tools     map[string]*runnable
	prompts   map[string]*runnable
	resources map[string]*resourceEntry
	templates []*templateEntry
}

type resourceEntry struct {
	def     protocol.ResourceDef
	content *runnable
}

type templateEntry struct {
	def     protocol.ResourceTemplateDef
	prefix  string // URITemplate up to the first expression, for read matching
	content *runnable
}

// NewRegistry constructs an empty Registry using the default
// reflection-based SchemaProvider.
func NewRegistry() *Registry {
	return &Registry{
		schema:    NewReflectSchemaProvider(),
		tools:     make(map[string]*runnable),
		prompts:   make(map[string]*runnable),
		resources: make(map[string]*resourceEntry),
	}
}

// seal closes the registry for further registration. Called by NewClient:
// the catalog a plugin announces is fixed once the channel is built.
func (r *Registry) seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

func (r *Registry) checkOpen(op errors.Op) error {
	if r.sealed {
		return errors.E(op, errors.Str("registry is sealed: registration must happen before the plugin client is built"))
	}
	return nil
}

// RegisterTool is the registrar entrypoint: register_tool(name, title,
// fn). params describes
// fn's formal parameters in declaration order (Go cannot recover
// parameter names by reflection). The generated input schema is compiled
// before the tool is accepted, so a malformed schema fails here rather
// than at the MCP client.
func (r *Registry) RegisterTool(name, title, description string, fn any, params ...Param) error {
	const op = errors.Op("pluginsdk_register_tool")

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOpen(op); err != nil {
		return err
	}

	run, err := newRunnable(name, title, description, fn, params, r.schema)
	if err != nil {
		return errors.E(op, err)
	}
	v, err := CompileValidator(run.inputSchema, "mem://tools/"+name)
	if err != nil {
		return errors.E(op, err)
	}
	run.validator = v
	r.tools[name] = run
	return nil
}

// RegisterPrompt registers a prompt-rendering callable.
func (r *Registry) RegisterPrompt(name, title, description string, fn any, params ...Param) error {
	const op = errors.Op("pluginsdk_register_prompt")

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOpen(op); err != nil {
		return err
	}

	run, err := newRunnable(name, title, description, fn, params, r.schema)
	if err != nil {
		return errors.E(op, err)
	}
	r.prompts[name] = run
	return nil
}

// RegisterResource registers a static resource and its content-producing
// callable.
func (r *Registry) RegisterResource(def protocol.ResourceDef, contentFn any, params ...Param) error {
	const op = errors.Op("pluginsdk_register_resource")

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOpen(op); err != nil {
		return err
	}

	run, err := newRunnable(def.URI, def.Name, def.Description, contentFn, params, r.schema)
	if err != nil {
		return errors.E(op, err)
	}
	def.Enabled = true
	r.resources[def.URI] = &resourceEntry{def: def, content: run}
	return nil
}

// RegisterResourceTemplate registers a parameterised resource. contentFn
// is invoked for any resources/read whose URI matches the template's
// literal prefix (the part before the first "{" expression); it must
// declare a single "uri" parameter to receive the concrete URI.
func (r *Registry) RegisterResourceTemplate(def protocol.ResourceTemplateDef, contentFn any, params ...Param) error {
	const op = errors.Op("pluginsdk_register_resource_template")

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOpen(op); err != nil {
		return err
	}

	run, err := newRunnable(def.URITemplate, def.Name, def.Description, contentFn, params, r.schema)
	if err != nil {
		return errors.E(op, err)
	}
	def.Enabled = true
	prefix := def.URITemplate
	if i := strings.IndexByte(prefix, '{'); i >= 0 {
		prefix = prefix[:i]
	}
	r.templates = append(r.templates, &templateEntry{def: def, prefix: prefix, content: run})
	return nil
}

// SetToolEnabled toggles a registered tool's visibility and
// dispatchability. Unlike registration it is allowed after the registry is
// sealed; pair it with Client.NotifyToolsChanged so sessions re-list.
func (r *Registry) SetToolEnabled(name string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tools[name]
	if ok {
		t.enabled = enabled
	}
	return ok
}

// ListTools returns every registered tool's public metadata.
func (r *Registry) ListTools() []protocol.ToolDef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]protocol.ToolDef, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, protocol.ToolDef{
			Name:         t.name,
			Title:        t.title,
			Description:  t.description,
			InputSchema:  t.inputSchema,
			OutputSchema: t.outputSchema,
			Enabled:      t.enabled,
		})
	}
	return out
}

// ListPrompts returns every registered prompt's public metadata.
func (r *Registry) ListPrompts() []protocol.PromptDef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]protocol.PromptDef, 0, len(r.prompts))
	for _, p := range r.prompts {
		args := make([]protocol.PromptArgument, 0, len(p.params))
		for _, param := range p.params {
			if param.RequestID {
				continue
			}
			args = append(args, protocol.PromptArgument{Name: param.Name, Required: param.Default == nil})
		}
		out = append(out, protocol.PromptDef{
			Name:        p.name,
			Title:       p.title,
			Description: p.description,
			Arguments:   args,
			Enabled:     p.enabled,
		})
	}
	return out
}

// ListResources returns every registered resource's public metadata.
func (r *Registry) ListResources() []protocol.ResourceDef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]protocol.ResourceDef, 0, len(r.resources))
	for _, res := range r.resources {
		out = append(out, res.def)
	}
	return out
}

// ListResourceTemplates returns every registered template's public metadata.
func (r *Registry) ListResourceTemplates() []protocol.ResourceTemplateDef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]protocol.ResourceTemplateDef, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, t.def)
	}
	return out
}

// CallTool dispatches a tools/call request to a registered tool and
// converts its result through toResponse. A JSON object dispatches by
// name, after canonicalizing keys and validating against the tool's
// compiled input schema; a JSON array dispatches positionally in declared
// parameter order. Errors never propagate as transport errors: they are
// always folded into the returned Response.
func (r *Registry) CallTool(ctx context.Context, requestID, name string, arguments json.RawMessage) protocol.Response {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return protocol.Error(requestID, "unknown tool: "+name)
	}
	if !tool.enabled {
		return protocol.Error(requestID, "tool is disabled: "+name)
	}

	if trimmed := bytes.TrimSpace(arguments); len(trimmed) > 0 && trimmed[0] == '[' {
		var positional []json.RawMessage
		if err := json.Unmarshal(trimmed, &positional); err != nil {
			return protocol.Error(requestID, "invalid arguments: "+err.Error())
		}
		result, err := tool.invokePositional(ctx, requestID, positional)
		return toResponse(requestID, result, err)
	}

	named, err := rawObjectToMap(arguments)
	if err != nil {
		return protocol.Error(requestID, "invalid arguments: "+err.Error())
	}

	named = tool.canonicalize(named)
	if tool.validator != nil {
		doc, merr := json.Marshal(named)
		if merr != nil {
			return protocol.Error(requestID, "invalid arguments: "+merr.Error())
		}
		if verr := tool.validator.Validate(doc); verr != nil {
			return protocol.Error(requestID, "invalid arguments: "+verr.Error())
		}
	}

	result, err := tool.invokeNamed(ctx, requestID, named)
	return toResponse(requestID, result, err)
}

// GetPrompt dispatches a prompts/get request.
func (r *Registry) GetPrompt(ctx context.Context, requestID, name string, arguments map[string]string) (protocol.RunGetPromptResult, error) {
	const op = errors.Op("pluginsdk_get_prompt")

	r.mu.RLock()
	prompt, ok := r.prompts[name]
	r.mu.RUnlock()
	if !ok {
		return protocol.RunGetPromptResult{}, errors.E(op, errors.Str("unknown prompt: "+name))
	}

	named := make(map[string]json.RawMessage, len(arguments))
	for k, v := range arguments {
		b, _ := json.Marshal(v)
		named[k] = b
	}

	result, err := prompt.invokeNamed(ctx, requestID, named)
	if err != nil {
		return protocol.RunGetPromptResult{}, errors.E(op, err)
	}
	if out, ok := result.(protocol.RunGetPromptResult); ok {
		return out, nil
	}
	return protocol.RunGetPromptResult{}, errors.E(op, errors.Str("prompt handler returned an unexpected type"))
}

// ReadResource dispatches a resources/read request. An exact URI match
// wins; otherwise the first registered template whose literal prefix
// matches the URI serves it, receiving the concrete URI as its "uri"
// argument.
func (r *Registry) ReadResource(ctx context.Context, requestID, uri string) ([]protocol.ResourceContents, error) {
	const op = errors.Op("pluginsdk_read_resource")

	r.mu.RLock()
	res, ok := r.resources[uri]
	var tmpl *templateEntry
	if !ok {
		for _, t := range r.templates {
			if t.prefix != "" && strings.HasPrefix(uri, t.prefix) {
				tmpl = t
				break
			}
		}
	}
	r.mu.RUnlock()

	var result any
	var err error
	switch {
	case ok:
		result, err = res.content.invokeNamed(ctx, requestID, nil)
	case tmpl != nil:
		uriArg, _ := json.Marshal(uri)
		result, err = tmpl.content.invokeNamed(ctx, requestID, map[string]json.RawMessage{"uri": uriArg})
	default:
		return nil, errors.E(op, errors.Str("unknown resource: "+uri))
	}
	if err != nil {
		return nil, errors.E(op, err)
	}
	if out, ok := result.([]protocol.ResourceContents); ok {
		return out, nil
	}
	if out, ok := result.(protocol.ResourceContents); ok {
		return []protocol.ResourceContents{out}, nil
	}
	return nil, errors.E(op, errors.Str("resource handler returned an unexpected type"))
}

func rawObjectToMap(arguments json.RawMessage) (map[string]json.RawMessage, error) {
	if len(arguments) == 0 {
		return map[string]json.RawMessage{}, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(arguments, &m); err != nil {
		return nil, err
	}
	return m, nil
}
