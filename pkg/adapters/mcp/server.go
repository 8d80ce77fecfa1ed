package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/callboard"
	"github.com/aretw0/callboard/internal/logging"
	"github.com/aretw0/callboard/pkg/config"
	"github.com/aretw0/callboard/pkg/domain"
	"github.com/aretw0/callboard/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// LinesURI is the resource that lists every line.
const LinesURI = "callboard://lines"

// Engine defines the coordinator operations exposed as MCP tools.
type Engine interface {
	Lines() []domain.Line
	GetLineState(n domain.LineNumber) (domain.Line, error)
	ConfigureLine(n domain.LineNumber, patch domain.LineConfigPatch) (domain.LineConfig, error)
	SelectedLine() (domain.LineNumber, bool)
	SelectLine(ctx context.Context, n domain.LineNumber) error

	MakeCall(ctx context.Context, target string, opts domain.CallOptions) (domain.LineNumber, error)
	AnswerCall(ctx context.Context, n domain.LineNumber, opts domain.AnswerOptions) error
	RejectCall(ctx context.Context, n domain.LineNumber, code int) error
	HangupCall(ctx context.Context, n domain.LineNumber) error
	HangupAll(ctx context.Context) error
	HoldLine(ctx context.Context, n domain.LineNumber) error
	UnholdLine(ctx context.Context, n domain.LineNumber) error
	ToggleHoldLine(ctx context.Context, n domain.LineNumber) error
	MuteLine(ctx context.Context, n domain.LineNumber) error
	UnmuteLine(ctx context.Context, n domain.LineNumber) error
	SendDTMF(ctx context.Context, n domain.LineNumber, digits string) error
	GetLineStats(ctx context.Context, n domain.LineNumber) (domain.Stats, error)
	ResetLine(ctx context.Context, n domain.LineNumber) error
	ResetAllLines(ctx context.Context) error
	SwapLines(ctx context.Context, a, b domain.LineNumber) error
	TransferCall(ctx context.Context, req domain.TransferRequest) error
}

// LineResult is the structured answer of every tool that touches lines.
type LineResult struct {
	Lines    []LineSummary     `json:"lines"`
	Selected domain.LineNumber `json:"selected,omitempty"`
}

// LineSummary is the agent-facing view of one line.
type LineSummary struct {
	Number     domain.LineNumber `json:"number"`
	Label      string            `json:"label,omitempty"`
	Status     domain.LineStatus `json:"status"`
	CallID     string            `json:"call_id,omitempty"`
	Remote     string            `json:"remote,omitempty"`
	Direction  domain.Direction  `json:"direction,omitempty"`
	Muted      bool              `json:"muted,omitempty"`
	RemoteHeld bool              `json:"remote_held,omitempty"`
	Enabled    bool              `json:"enabled"`
}

// Server wraps the coordinator and exposes it as an MCP Server.
type Server struct {
	engine    Engine
	calls     ports.CallLog
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures a Server.
type Option func(*Server)

// WithCallLog adds the recent_calls tool.
func WithCallLog(log ports.CallLog) Option {
	return func(s *Server) {
		s.calls = log
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("callboard-mcp", strings.TrimSpace(callboard.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mcpServer.AddTools(s.tools()...)
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on addr until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, addr string) error {
	baseURL := "http://localhost" + addr
	if !strings.HasPrefix(addr, ":") {
		baseURL = "http://" + addr
	}
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())
	httpServer := &http.Server{Addr: addr, Handler: mux}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func lineArg(desc string) mcp.ToolOption {
	return mcp.WithNumber("line", mcp.Required(), mcp.Min(1), mcp.Max(domain.MaxLines), mcp.Description(desc))
}

func (s *Server) tools() []server.ServerTool {
	tools := []server.ServerTool{
		{
			Tool: mcp.NewTool("list_lines",
				mcp.WithDescription("List every line with its status and call."),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			Handler: func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return s.snapshot(), nil
			},
		},
		{
			Tool: mcp.NewTool("make_call",
				mcp.WithDescription("Dial a remote party. Picks the first free line unless one is given."),
				mcp.WithString("target", mcp.Required(), mcp.Description("SIP URI or number to call")),
				mcp.WithNumber("line", mcp.Description("Line to dial on (optional)")),
				mcp.WithBoolean("video", mcp.Description("Offer video as well as audio")),
			),
			Handler: s.handleMakeCall,
		},
		{
			Tool: mcp.NewTool("answer_call",
				mcp.WithDescription("Answer the call ringing on a line. Other active lines are put on hold."),
				lineArg("Ringing line"),
				mcp.WithBoolean("video", mcp.Description("Accept with video")),
			),
			Handler: s.lineTool(func(ctx context.Context, n domain.LineNumber, req mcp.CallToolRequest) error {
				return s.engine.AnswerCall(ctx, n, domain.AnswerOptions{Audio: true, Video: req.GetBool("video", false)})
			}),
		},
		{
			Tool: mcp.NewTool("reject_call",
				mcp.WithDescription("Reject the call ringing on a line."),
				lineArg("Ringing line"),
				mcp.WithNumber("code", mcp.Description("SIP response code, 486 when omitted")),
			),
			Handler: s.lineTool(func(ctx context.Context, n domain.LineNumber, req mcp.CallToolRequest) error {
				return s.engine.RejectCall(ctx, n, req.GetInt("code", 0))
			}),
		},
		{
			Tool:    mcp.NewTool("hangup_call", mcp.WithDescription("Hang up the call on a line."), lineArg("Line to hang up")),
			Handler: s.lineTool(ignoreRequest(s.engine.HangupCall)),
		},
		{
			Tool: mcp.NewTool("hangup_all", mcp.WithDescription("Hang up every call."),
				mcp.WithDestructiveHintAnnotation(true)),
			Handler: func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return s.result(s.engine.HangupAll(ctx)), nil
			},
		},
		{
			Tool:    mcp.NewTool("hold_line", mcp.WithDescription("Put the active call on a line on hold."), lineArg("Active line")),
			Handler: s.lineTool(ignoreRequest(s.engine.HoldLine)),
		},
		{
			Tool:    mcp.NewTool("unhold_line", mcp.WithDescription("Resume a held call."), lineArg("Held line")),
			Handler: s.lineTool(ignoreRequest(s.engine.UnholdLine)),
		},
		{
			Tool:    mcp.NewTool("toggle_hold", mcp.WithDescription("Hold an active call or resume a held one."), lineArg("Line to toggle")),
			Handler: s.lineTool(ignoreRequest(s.engine.ToggleHoldLine)),
		},
		{
			Tool: mcp.NewTool("mute_line",
				mcp.WithDescription("Mute or unmute the local microphone on a line."),
				lineArg("Line with a call"),
				mcp.WithBoolean("muted", mcp.Required(), mcp.Description("true to mute, false to unmute")),
			),
			Handler: s.lineTool(func(ctx context.Context, n domain.LineNumber, req mcp.CallToolRequest) error {
				if req.GetBool("muted", true) {
					return s.engine.MuteLine(ctx, n)
				}
				return s.engine.UnmuteLine(ctx, n)
			}),
		},
		{
			Tool: mcp.NewTool("send_dtmf",
				mcp.WithDescription("Send DTMF digits (0-9, *, #, A-D) on an active line."),
				lineArg("Active line"),
				mcp.WithString("digits", mcp.Required(), mcp.Description("Digits to send")),
			),
			Handler: s.lineTool(func(ctx context.Context, n domain.LineNumber, req mcp.CallToolRequest) error {
				return s.engine.SendDTMF(ctx, n, req.GetString("digits", ""))
			}),
		},
		{
			Tool: mcp.NewTool("swap_lines",
				mcp.WithDescription("Swap which of two lines is active and which is held."),
				mcp.WithNumber("a", mcp.Required(), mcp.Description("First line")),
				mcp.WithNumber("b", mcp.Required(), mcp.Description("Second line")),
			),
			Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				a, err := req.RequireInt("a")
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}
				b, err := req.RequireInt("b")
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}
				return s.result(s.engine.SwapLines(ctx, domain.LineNumber(a), domain.LineNumber(b))), nil
			},
		},
		{
			Tool: mcp.NewTool("transfer_call",
				mcp.WithDescription("Transfer a call. Give uri for a blind transfer or consult_line to bridge with the call on that line."),
				lineArg("Line whose call is transferred"),
				mcp.WithString("uri", mcp.Description("Blind transfer destination")),
				mcp.WithNumber("consult_line", mcp.Description("Line holding the consultation call")),
			),
			Handler: s.lineTool(func(ctx context.Context, n domain.LineNumber, req mcp.CallToolRequest) error {
				consult := req.GetInt("consult_line", 0)
				return s.engine.TransferCall(ctx, domain.TransferRequest{
					FromLine: n,
					Target:   domain.TransferTarget{URI: req.GetString("uri", ""), Line: domain.LineNumber(consult)},
					Attended: consult != 0,
				})
			}),
		},
		{
			Tool:    mcp.NewTool("reset_line", mcp.WithDescription("Force a line back to idle, ending any call on it."), lineArg("Line to reset")),
			Handler: s.lineTool(ignoreRequest(s.engine.ResetLine)),
		},
		{
			Tool: mcp.NewTool("reset_all", mcp.WithDescription("Force every line back to idle."),
				mcp.WithDestructiveHintAnnotation(true)),
			Handler: func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return s.result(s.engine.ResetAllLines(ctx)), nil
			},
		},
		{
			Tool:    mcp.NewTool("select_line", mcp.WithDescription("Focus a line."), lineArg("Line to select")),
			Handler: s.lineTool(ignoreRequest(s.engine.SelectLine)),
		},
		{
			Tool: mcp.NewTool("configure_line",
				mcp.WithDescription("Change line preferences. Only the given keys change."),
				lineArg("Line to configure"),
				mcp.WithObject("config", mcp.Required(),
					mcp.Description("Keys: label, enabled, auto_answer, auto_answer_delay_ms, default_audio, default_video")),
			),
			Handler: s.handleConfigure,
		},
		{
			Tool: mcp.NewTool("line_stats",
				mcp.WithDescription("Media statistics of the call on a line."),
				lineArg("Line with a call"),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				n, err := req.RequireInt("line")
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}
				stats, err := s.engine.GetLineStats(ctx, domain.LineNumber(n))
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}
				return jsonResult(stats), nil
			},
		},
	}
	if s.calls != nil {
		tools = append(tools, server.ServerTool{
			Tool: mcp.NewTool("recent_calls",
				mcp.WithDescription("Most recent ended calls, newest first."),
				mcp.WithNumber("limit", mcp.Description("Maximum records, 20 when omitted")),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				records, err := s.calls.Recent(ctx, req.GetInt("limit", 20))
				if err != nil {
					return mcp.NewToolResultError(fmt.Sprintf("call log unavailable: %v", err)), nil
				}
				if records == nil {
					records = []domain.CallRecord{}
				}
				return jsonResult(records), nil
			},
		})
	}
	return tools
}

func ignoreRequest(op func(context.Context, domain.LineNumber) error) func(context.Context, domain.LineNumber, mcp.CallToolRequest) error {
	return func(ctx context.Context, n domain.LineNumber, _ mcp.CallToolRequest) error {
		return op(ctx, n)
	}
}

// lineTool adapts an operation on the "line" argument into a tool handler.
// Coordinator errors become tool errors so the agent sees them.
func (s *Server) lineTool(op func(context.Context, domain.LineNumber, mcp.CallToolRequest) error) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		n, err := req.RequireInt("line")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return s.result(op(ctx, domain.LineNumber(n), req)), nil
	}
}

func (s *Server) handleMakeCall(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	video := req.GetBool("video", false)
	_, err = s.engine.MakeCall(ctx, target, domain.CallOptions{
		Line:  domain.LineNumber(req.GetInt("line", 0)),
		Audio: true,
		Video: video,
	})
	return s.result(err), nil
}

func (s *Server) handleConfigure(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := req.RequireInt("line")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, ok := req.GetArguments()["config"].(map[string]any)
	if !ok {
		return mcp.NewToolResultError("config must be an object"), nil
	}
	patch, err := config.DecodePatch(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cfg, err := s.engine.ConfigureLine(domain.LineNumber(n), patch)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(cfg), nil
}

// result reports err as a tool error, or the fresh line table on success.
func (s *Server) result(err error) *mcp.CallToolResult {
	if err != nil {
		s.logger.Debug("MCP tool failed", "err", err)
		return mcp.NewToolResultError(err.Error())
	}
	return s.snapshot()
}

func (s *Server) snapshot() *mcp.CallToolResult {
	return jsonResult(s.lineResult())
}

func (s *Server) lineResult() LineResult {
	lines := s.engine.Lines()
	res := LineResult{Lines: make([]LineSummary, len(lines))}
	for i, l := range lines {
		sum := LineSummary{
			Number:     l.Number,
			Label:      l.Config.Label,
			Status:     l.Status,
			CallID:     l.CallID(),
			Direction:  l.Direction,
			Muted:      l.Muted,
			RemoteHeld: l.RemoteHeld,
			Enabled:    l.Config.Enabled,
		}
		if l.Remote != nil {
			sum.Remote = l.Remote.URI
		}
		res.Lines[i] = sum
	}
	res.Selected, _ = s.engine.SelectedLine()
	return res
}

func jsonResult(v any) *mcp.CallToolResult {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode failed: %v", err))
	}
	return mcp.NewToolResultText(string(jsonBytes))
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(LinesURI, "Line Board",
		mcp.WithResourceDescription("Status of every line"),
		mcp.WithMIMEType("application/json"),
	), s.readLines)
}

func (s *Server) readLines(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	jsonBytes, err := json.Marshal(s.lineResult())
	if err != nil {
		return nil, fmt.Errorf("failed to encode lines: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      LinesURI,
			MIMEType: "application/json",
			Text:     string(jsonBytes),
		},
	}, nil
}
