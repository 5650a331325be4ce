package tools

import (
	"context"
	"time"

	"github.com/aldarlabs/voicebridge/src/gemini"
	"github.com/aldarlabs/voicebridge/src/logger"
)

// TransferToolName marks a call for live operator takeover. It is declared
// to the model like any other tool but has no HTTP backend; the session
// loop intercepts it before dispatch.
const TransferToolName = "transfer_to_human_operator"

// DefaultTimeout bounds a single tool backend invocation.
const DefaultTimeout = 10 * time.Second

// Handler executes one tool invocation and returns the structured response
// sent back to the model.
type Handler func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error)

// Tool pairs a declaration (the wire contract with the model) with its
// handler. New tools register by appending to the table; the session setup
// derives its declarations from it.
type Tool struct {
	Declaration gemini.FunctionDeclaration
	Handler     Handler
}

// Dispatcher resolves declared function calls against their backends.
// Backend failures never propagate into the session loop; they surface to
// the model as an {error: ...} response.
type Dispatcher struct {
	tools   map[string]Tool
	order   []string
	timeout time.Duration
	log     *logger.Logger
}

// NewDispatcher creates an empty dispatcher with the default per-call
// timeout.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		tools:   make(map[string]Tool),
		timeout: DefaultTimeout,
		log:     logger.WithPrefix("Tools"),
	}
}

// Register adds a tool to the table. Registering an existing name replaces
// its handler.
func (d *Dispatcher) Register(t Tool) {
	name := t.Declaration.Name
	if _, exists := d.tools[name]; !exists {
		d.order = append(d.order, name)
	}
	d.tools[name] = t
}

// Declarations returns the tool schemas in registration order, for the
// session setup message.
func (d *Dispatcher) Declarations() []gemini.FunctionDeclaration {
	decls := make([]gemini.FunctionDeclaration, 0, len(d.order))
	for _, name := range d.order {
		decls = append(decls, d.tools[name].Declaration)
	}
	return decls
}

// Dispatch executes one function call with a bounded timeout and returns
// the response to send back to the model. HTTP-layer failures come back as
// {error: message}, never as a Go error.
func (d *Dispatcher) Dispatch(ctx context.Context, call gemini.FunctionCall) gemini.FunctionResponse {
	resp := gemini.FunctionResponse{ID: call.ID, Name: call.Name}

	tool, ok := d.tools[call.Name]
	if !ok || tool.Handler == nil {
		d.log.Warn("Unknown tool %q requested", call.Name)
		resp.Response = map[string]interface{}{"error": "unknown function: " + call.Name}
		return resp
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	result, err := tool.Handler(callCtx, call.Args)
	if err != nil {
		d.log.Warn("Tool %s failed: %v", call.Name, err)
		resp.Response = map[string]interface{}{"error": "API call failed: " + err.Error()}
		return resp
	}

	resp.Response = result
	return resp
}
