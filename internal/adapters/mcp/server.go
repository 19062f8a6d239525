// Package mcpadapter exposes the portfolio assistant as MCP tools.
package mcpadapter

import (
	"context"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/portfolio-chatbot/internal/core/domain"
	"github.com/kirillkom/portfolio-chatbot/internal/core/ports"
	"github.com/kirillkom/portfolio-chatbot/internal/core/prompt"
	"github.com/kirillkom/portfolio-chatbot/internal/core/usecase"
)

const (
	ServerName   = "portfolio-chatbot"
	EndpointPath = "/mcp"

	toolAskPortfolio = "ask_portfolio"
	toolGetProfile   = "get_profile"
)

// Backend is the part of the chat use case the MCP tools call into.
type Backend interface {
	ports.ChatService
	Profile() domain.Profile
}

type Server struct {
	chat Backend
	mcp  *server.MCPServer
}

func NewServer(chat Backend, version string) *Server {
	s := &Server{
		chat: chat,
		mcp: server.NewMCPServer(ServerName, version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
	}

	s.mcp.AddTool(mcp.NewTool(toolAskPortfolio,
		mcp.WithDescription("Ask the portfolio assistant a question about the portfolio owner."),
		mcp.WithString("question", mcp.Required(), mcp.Description("Question to ask.")),
		mcp.WithString("session_id", mcp.Description("Continue an existing conversation.")),
	), s.askPortfolio)

	s.mcp.AddTool(mcp.NewTool(toolGetProfile,
		mcp.WithDescription("Return the portfolio owner's profile as JSON."),
	), s.getProfile)

	return s
}

// HTTPHandler serves the streamable HTTP transport at EndpointPath.
func (s *Server) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp, server.WithEndpointPath(EndpointPath))
}

func (s *Server) askPortfolio(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sessionID := request.GetString("session_id", "")

	turn, err := s.chat.Ask(usecase.WithChannel(ctx, usecase.ChannelMCP), domain.AskRequest{
		SessionID: sessionID,
		Question:  question,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := mcp.NewToolResultText(turn.Answer)
	result.Content = append(result.Content, mcp.NewTextContent("session_id: "+turn.SessionID))
	return result, nil
}

func (s *Server) getProfile(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	profile := s.chat.Profile()
	if profile.IsZero() {
		return mcp.NewToolResultError("profile is not loaded"), nil
	}
	return mcp.NewToolResultText(prompt.ProfileJSON(profile.Data)), nil
}
