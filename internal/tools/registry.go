package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/msomdec/user-service-mcp/internal/domain"
	"github.com/msomdec/user-service-mcp/internal/service"
)

const instrumentationName = "github.com/msomdec/user-service-mcp/internal/tools"

var (
	// ErrUnknownTool is returned by Call for names that are not registered.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidArguments is returned by Call when the arguments do not
	// satisfy the tool's input schema.
	ErrInvalidArguments = fmt.Errorf("invalid arguments: %w", domain.ErrInvalidInput)
)

// Definition describes a tool to clients.
type Definition struct {
	Name        string          `json:"name"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
	ReadOnly    bool            `json:"-"`
	Destructive bool            `json:"-"`
	Idempotent  bool            `json:"-"`
}

type handlerFunc func(ctx context.Context, args json.RawMessage) (any, error)

type tool struct {
	def     Definition
	schema  *jsonschema.Schema
	handler handlerFunc
}

// Registry holds the registered tools in registration order.
type Registry struct {
	tools  []*tool
	byName map[string]*tool

	tracer   trace.Tracer
	calls    metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
}

// NewRegistry registers the user management tools backed by svc.
func NewRegistry(svc *service.UserToolService) (*Registry, error) {
	meter := otel.Meter(instrumentationName)
	calls, err := meter.Int64Counter("tool.calls", metric.WithDescription("Number of tool calls."))
	if err != nil {
		return nil, fmt.Errorf("create calls counter: %w", err)
	}
	failures, err := meter.Int64Counter("tool.errors", metric.WithDescription("Number of tool calls that failed."))
	if err != nil {
		return nil, fmt.Errorf("create errors counter: %w", err)
	}
	duration, err := meter.Float64Histogram("tool.duration",
		metric.WithDescription("Duration of tool calls."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	r := &Registry{
		byName:   make(map[string]*tool),
		tracer:   otel.Tracer(instrumentationName),
		calls:    calls,
		failures: failures,
		duration: duration,
	}

	registrations := []struct {
		def     Definition
		request any
		handler handlerFunc
	}{
		{
			def: Definition{
				Name:        "create_user",
				Title:       "Create user",
				Description: "Create a new user in the database.",
			},
			request: &service.CreateUserRequest{},
			handler: bind(svc.CreateUser),
		},
		{
			def: Definition{
				Name:        "get_user_by_email",
				Title:       "Get user by email",
				Description: "Retrieve user details using their email address.",
				ReadOnly:    true,
				Idempotent:  true,
			},
			request: &service.GetUserByEmailRequest{},
			handler: bind(svc.GetUserByEmail),
		},
		{
			def: Definition{
				Name:        "delete_user",
				Title:       "Delete user",
				Description: "Delete a user by their ID.",
				Destructive: true,
				Idempotent:  true,
			},
			request: &service.DeleteUserRequest{},
			handler: bind(svc.DeleteUser),
		},
		{
			def: Definition{
				Name:        "update_user",
				Title:       "Update user",
				Description: "Update user properties (name, email, and/or age).",
				Idempotent:  true,
			},
			request: &service.UpdateUserRequest{},
			handler: bind(svc.UpdateUser),
		},
		{
			def: Definition{
				Name:        "list_users_by_name",
				Title:       "List users by name",
				Description: "Fetch top 5 users matching the provided name using fuzzy matching (handles spelling mistakes).",
				ReadOnly:    true,
				Idempotent:  true,
			},
			request: &service.ListUsersByNameRequest{},
			handler: bind(svc.ListUsersByName),
		},
		{
			def: Definition{
				Name:        "list_users_by_age",
				Title:       "List users by age",
				Description: "Fetch list of users matching the provided age.",
				ReadOnly:    true,
				Idempotent:  true,
			},
			request: &service.ListUsersByAgeRequest{},
			handler: bind(svc.ListUsersByAge),
		},
	}

	for _, reg := range registrations {
		if err := r.register(reg.def, reg.request, reg.handler); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) register(def Definition, request any, handler handlerFunc) error {
	if _, dup := r.byName[def.Name]; dup {
		return fmt.Errorf("register %s: duplicate tool name", def.Name)
	}

	raw, err := reflectSchema(request)
	if err != nil {
		return fmt.Errorf("register %s: %w", def.Name, err)
	}
	schema, err := compileSchema(def.Name, raw)
	if err != nil {
		return fmt.Errorf("register %s: %w", def.Name, err)
	}

	def.InputSchema = raw
	t := &tool{def: def, schema: schema, handler: handler}
	r.tools = append(r.tools, t)
	r.byName[def.Name] = t
	return nil
}

// Definitions returns every registered tool in registration order.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, len(r.tools))
	for i, t := range r.tools {
		defs[i] = t.def
	}
	return defs
}

// Lookup returns the definition of the named tool.
func (r *Registry) Lookup(name string) (Definition, bool) {
	t, ok := r.byName[name]
	if !ok {
		return Definition{}, false
	}
	return t.def, true
}

// Call validates args against the named tool's schema, decodes them and
// invokes the tool. Empty or null args are treated as an empty object.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (result any, err error) {
	t, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	attrs := metric.WithAttributes(attribute.String("tool.name", name))
	ctx, span := r.tracer.Start(ctx, "tool.call", trace.WithAttributes(attribute.String("tool.name", name)))
	start := time.Now()
	defer func() {
		r.calls.Add(ctx, 1, attrs)
		r.duration.Record(ctx, float64(time.Since(start).Microseconds())/1000, attrs)
		if err != nil {
			r.failures.Add(ctx, 1, attrs)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	args = bytes.TrimSpace(args)
	if len(args) == 0 || bytes.Equal(args, []byte("null")) {
		args = json.RawMessage("{}")
	}

	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(args))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if err := t.schema.Validate(instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	return t.handler(ctx, args)
}

// bind adapts a typed service operation to a handlerFunc.
func bind[Req, Res any](op func(context.Context, Req) (Res, error)) handlerFunc {
	return func(ctx context.Context, args json.RawMessage) (any, error) {
		var req Req
		dec := json.NewDecoder(bytes.NewReader(args))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
		}
		return op(ctx, req)
	}
}

func reflectSchema(request any) (json.RawMessage, error) {
	reflector := &invopop.Reflector{
		Anonymous:      true,
		DoNotReference: true,
	}
	schema := reflector.Reflect(request)
	schema.Version = ""
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return raw, nil
}

func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	url := name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}
