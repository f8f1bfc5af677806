// Package platformtest runs an in-process fake of the Supabase HTTP surface
// (PostgREST RPC and Edge Functions) for wire-level tests.
package platformtest

import (
	"errors"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Request is what the fake recorded about one incoming call.
type Request struct {
	Method        string
	Path          string
	APIKey        string
	Authorization string
	RequestID     string
	Body          []byte
}

// Server is a fake platform listening on a loopback port.
type Server struct {
	URL string

	app *fiber.App

	mu        sync.Mutex
	rpc       map[string]fiber.Handler
	functions map[string]fiber.Handler
	requests  []Request
}

// New starts a fake platform and stops it when the test ends.
// Unregistered RPC functions answer like PostgREST does for an unknown function.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		rpc:       map[string]fiber.Handler{},
		functions: map[string]fiber.Handler{},
	}
	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	s.app.Use(s.record)
	s.app.Post("/rest/v1/rpc/:fn", s.dispatchRPC)
	s.app.Post("/functions/v1/:name", s.dispatchFunction)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s.URL = "http://" + ln.Addr().String()

	go func() { _ = s.app.Listener(ln) }()
	t.Cleanup(func() { _ = s.app.Shutdown() })

	return s
}

// HandleRPC installs the handler for an RPC function.
func (s *Server) HandleRPC(fn string, h fiber.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rpc[fn] = h
}

// HandleFunction installs the handler for an Edge Function.
func (s *Server) HandleFunction(name string, h fiber.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.functions[name] = h
}

// Requests returns a copy of every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// JSON returns a handler that always answers with status and v.
func JSON(status int, v any) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(status).JSON(v)
	}
}

// Raw returns a handler that answers with a literal body.
func Raw(status int, contentType, body string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, contentType)
		return c.Status(status).SendString(body)
	}
}

// record keeps a copy of the request; fiber reuses its buffers after the handler returns.
func (s *Server) record(c *fiber.Ctx) error {
	rid := c.Get("X-Request-ID")
	if rid == "" {
		rid = uuid.NewString()
	}
	c.Set("X-Request-ID", rid)

	req := Request{
		Method:        c.Method(),
		Path:          strings.Clone(c.Path()),
		APIKey:        strings.Clone(c.Get("apikey")),
		Authorization: strings.Clone(c.Get(fiber.HeaderAuthorization)),
		RequestID:     strings.Clone(rid),
		Body:          append([]byte(nil), c.Body()...),
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	return c.Next()
}

func (s *Server) dispatchRPC(c *fiber.Ctx) error {
	fn := c.Params("fn")
	s.mu.Lock()
	h, ok := s.rpc[fn]
	s.mu.Unlock()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"code":    "PGRST202",
			"message": "Could not find the function public." + fn + " in the schema cache",
		})
	}
	return h(c)
}

func (s *Server) dispatchFunction(c *fiber.Ctx) error {
	name := c.Params("name")
	s.mu.Lock()
	h, ok := s.functions[name]
	s.mu.Unlock()
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "Requested function was not found")
	}
	return h(c)
}

func errorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
