package main

import (
	"github.com/labstack/echo/v4"

	"github.com/PaulBabatuyi/support-chat/internal/response"
)

type initiateRequest struct {
	ClientID string `json:"clientId" validate:"max=64"`
}

// handleInitiate opens a support chat (client caller) or a direct chat with
// clientId (admin caller). A chat that already exists is returned with 200.
func (s *Server) handleInitiate(c echo.Context) error {
	var req initiateRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	view, created, err := s.chats.Initiate(c.Request().Context(), actorFrom(c), req.ClientID)
	if err != nil {
		return err
	}
	if created {
		return response.Created(c, view)
	}
	return response.Success(c, view)
}

// handleListChats lists the caller's active chats.
func (s *Server) handleListChats(c echo.Context) error {
	chats, err := s.chats.List(c.Request().Context(), actorFrom(c))
	if err != nil {
		return err
	}
	return response.Success(c, chats)
}

func (s *Server) handleListUnclaimed(c echo.Context) error {
	chats, err := s.chats.ListUnclaimed(c.Request().Context(), actorFrom(c))
	if err != nil {
		return err
	}
	return response.Success(c, chats)
}

// handleMessages returns the message history of a chat, oldest first.
func (s *Server) handleMessages(c echo.Context) error {
	msgs, err := s.chats.Messages(c.Request().Context(), actorFrom(c), c.Param("chatId"))
	if err != nil {
		return err
	}
	return response.Success(c, msgs)
}

func (s *Server) handleMarkRead(c echo.Context) error {
	if err := s.chats.MarkRead(c.Request().Context(), actorFrom(c), c.Param("chatId")); err != nil {
		return err
	}
	return response.SuccessMessage(c, "Messages marked as read", nil)
}

// handleClaim assigns an unclaimed chat to the calling admin. Losing a race
// yields 409 with the chat's current status in error.details.
func (s *Server) handleClaim(c echo.Context) error {
	view, err := s.chats.Claim(c.Request().Context(), actorFrom(c), c.Param("chatId"))
	if err != nil {
		return err
	}
	return response.SuccessMessage(c, "Chat claimed successfully", view)
}
