// Package tools serves the analytics tools over a line-delimited JSON
// protocol, one request object per input line and one response per output
// line.
package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/open_interest/internal/service"
)

// ToolListTools describes the available tools.
const ToolListTools = "list_tools"

const maxLineSize = 1 << 20

// Analytics is the tool surface served over stdio.
type Analytics interface {
	ComputeSentiment(ctx context.Context, symbol string) (*service.SentimentResponse, error)
	ComputeMaxPain(ctx context.Context, req service.MaxPainRequest) (*service.MaxPainResponse, error)
}

// Request is one input line.
type Request struct {
	ID        json.RawMessage `json:"id,omitempty"`
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Response is one output line. Exactly one of Result and Error is set.
type Response struct {
	ID     json.RawMessage `json:"id"`
	Result interface{}     `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Spec describes a tool for list_tools.
type Spec struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Arguments   map[string]string `json:"arguments"`
}

// Specs lists the served tools.
var Specs = []Spec{
	{
		Name:        service.ToolComputeSentiment,
		Description: "Put/call open-interest ratio and market sentiment for a symbol on the previous trading day",
		Arguments:   map[string]string{"symbol": "underlying ticker, required"},
	},
	{
		Name:        service.ToolComputeMaxPain,
		Description: "Max-pain strike for a symbol's option chain",
		Arguments: map[string]string{
			"symbol":     "underlying ticker, required",
			"date":       "trading date YYYY-MM-DD, defaults to the previous trading day",
			"expiration": "expiration YYYY-MM-DD, or \"next\" for the weekly expiry on or after date; defaults to all expirations",
		},
	},
	{
		Name:        ToolListTools,
		Description: "List the available tools",
		Arguments:   map[string]string{},
	},
}

// Server dispatches stdio requests to Analytics.
type Server struct {
	analytics Analytics
	logger    *logrus.Logger
}

// NewServer creates a stdio server.
func NewServer(analytics Analytics, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Server{analytics: analytics, logger: logger}
}

// Serve reads requests from r until EOF or ctx is done, writing one response
// line per request to w. Requests are handled in order.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	enc := json.NewEncoder(w)
	s.logger.Info("Serving tools on stdio")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				wg.Wait()
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("read requests: %w", err)
					}
				default:
				}
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := enc.Encode(s.Handle(ctx, []byte(line))); err != nil {
				return fmt.Errorf("write response: %w", err)
			}
		}
	}
}

// Handle decodes and executes a single request line.
func (s *Server) Handle(ctx context.Context, line []byte) Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Response{ID: newID(), Error: fmt.Sprintf("invalid request: %v", err)}
	}
	id := req.ID
	if len(id) == 0 || string(id) == "null" {
		id = newID()
	}

	log := s.logger.WithFields(logrus.Fields{"id": string(id), "tool": req.Tool})
	log.Debug("Tool request")

	result, err := s.dispatch(ctx, req)
	if err != nil {
		log.WithError(err).Debug("Tool request failed")
		return Response{ID: id, Error: service.ErrorPayload(err).Error}
	}
	return Response{ID: id, Result: result}
}

func (s *Server) dispatch(ctx context.Context, req Request) (interface{}, error) {
	switch req.Tool {
	case ToolListTools:
		return Specs, nil
	case service.ToolComputeSentiment:
		var args struct {
			Symbol string `json:"symbol"`
		}
		if err := decodeArguments(req.Arguments, &args); err != nil {
			return nil, err
		}
		return s.analytics.ComputeSentiment(ctx, args.Symbol)
	case service.ToolComputeMaxPain:
		var args service.MaxPainRequest
		if err := decodeArguments(req.Arguments, &args); err != nil {
			return nil, err
		}
		return s.analytics.ComputeMaxPain(ctx, args)
	case "":
		return nil, errors.New("tool is required")
	default:
		return nil, fmt.Errorf("unknown tool %q", req.Tool)
	}
}

func decodeArguments(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: arguments: %v", service.ErrInvalidRequest, err)
	}
	return nil
}

func newID() json.RawMessage {
	b, _ := json.Marshal(uuid.NewString())
	return b
}
