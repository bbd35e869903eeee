// Package toolserver is the MCP stdio server the gateway spawns as its
// tool subprocess. It exposes the communication tools: Twilio SMS, Meta
// WhatsApp messages, and image generation.
//
// Tool failures are reported through the MCP error flag with a bare
// detail string; the client side prefixes "Error: " when it flattens the
// result for the model.
package toolserver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nviv/nviv/internal/log"
	"github.com/nviv/nviv/internal/media"
	"github.com/nviv/nviv/internal/messaging"
)

// Config holds the tool server's collaborators.
type Config struct {
	Twilio *messaging.Twilio
	Meta   *messaging.Meta
	Images *media.Store

	// Image generation endpoint (OpenAI-compatible).
	ImageAPIURL string
	ImageAPIKey string
	ImageModel  string

	HTTPClient *http.Client
	Logger     log.Logger
}

// Server wraps the MCP server with its tool implementations.
type Server struct {
	cfg    Config
	logger log.Logger
	mcp    *mcp.Server
}

type smsInput struct {
	ToNumber    string `json:"to_number" jsonschema:"the phone number to send the SMS to (E.164 format)"`
	MessageBody string `json:"message_body" jsonschema:"the content of the SMS message"`
}

type whatsAppInput struct {
	ToNumber    string `json:"to_number" jsonschema:"the phone number to send the message to"`
	MessageBody string `json:"message_body" jsonschema:"the content of the message"`
}

type imageInput struct {
	Prompt string `json:"prompt" jsonschema:"a descriptive text prompt for the image generation"`
}

// New builds the tool server and registers its tools.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		mcp:    mcp.NewServer(&mcp.Implementation{Name: "nviv-tools", Version: "1.0.0"}, nil),
	}

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "send_twilio_sms",
		Description: "Sends an SMS message using Twilio.",
	}, s.sendTwilioSMS)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "send_whatsapp_message",
		Description: "Sends a WhatsApp message using Meta's WhatsApp API.",
	}, s.sendWhatsAppMessage)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "generate_image",
		Description: "Generates an image based on the user's prompt. Returns a markdown image link to display to the user.",
	}, s.generateImage)

	return s
}

// Run serves MCP over stdio until the context ends or stdin closes.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("tool server listening on stdio")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// Connect binds the server to an arbitrary transport. Used by in-process
// tests.
func (s *Server) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, transport, nil)
}

func (s *Server) sendTwilioSMS(ctx context.Context, _ *mcp.CallToolRequest, in smsInput) (*mcp.CallToolResult, any, error) {
	if s.cfg.Twilio == nil || !s.cfg.Twilio.Configured() {
		return errorResult("Twilio credentials (ACCOUNT_SID, AUTH_TOKEN, FROM_NUMBER) are missing."), nil, nil
	}

	msg, err := s.cfg.Twilio.Send(ctx, in.ToNumber, in.MessageBody)
	if err != nil {
		s.logger.Warn("send_twilio_sms failed", "error", err)
		return errorResult(fmt.Sprintf("sending Twilio SMS: %v", err)), nil, nil
	}
	return textResult(fmt.Sprintf("Twilio SMS sent successfully. SID: %s", msg.SID)), nil, nil
}

func (s *Server) sendWhatsAppMessage(ctx context.Context, _ *mcp.CallToolRequest, in whatsAppInput) (*mcp.CallToolResult, any, error) {
	if s.cfg.Meta == nil || !s.cfg.Meta.Configured() {
		return errorResult("Meta WhatsApp credentials (WHATSAPP_ACCESS_TOKEN, WHATSAPP_PHONE_NUMBER_ID) are missing."), nil, nil
	}

	if err := s.cfg.Meta.SendText(ctx, in.ToNumber, in.MessageBody); err != nil {
		s.logger.Warn("send_whatsapp_message failed", "error", err)
		return errorResult(fmt.Sprintf("sending WhatsApp message: %v", err)), nil, nil
	}
	return textResult("WhatsApp message sent successfully."), nil, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(detail string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: detail}},
	}
}
