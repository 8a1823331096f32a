package devserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/chatsync/internal/domain"
	"github.com/nfrund/chatsync/internal/events"
	"github.com/nfrund/chatsync/internal/middleware"
)

type sendMessageRequest struct {
	Content string `json:"content" validate:"required,notblank,max=4000"`
}

type createChatRequest struct {
	Participants []string `json:"participants" validate:"required,min=1,dive,required"`
}

// GET /chats?page=<n>&limit=<n>
func (s *Server) listChats(c echo.Context) error {
	page, err := queryInt(c, "page", 1)
	if err != nil {
		return err
	}
	limit, err := queryInt(c, "limit", domain.ChatPageSize)
	if err != nil {
		return err
	}
	if limit > domain.MaxPageSize {
		limit = domain.MaxPageSize
	}
	return c.JSON(http.StatusOK, s.store.ListChats(middleware.UserID(c), page, limit))
}

// POST /chats {participants}
func (s *Server) createChat(c echo.Context) error {
	var req createChatRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	creator := middleware.UserID(c)
	chat, err := s.store.CreateChat(creator, req.Participants)
	if err != nil {
		return storeError(err)
	}

	members, _ := s.store.Participants(chat.ID)
	for _, id := range members {
		view, err := s.store.Chat(id, chat.ID)
		if err != nil {
			continue
		}
		s.hub.SendTo([]string{id}, events.ChatCreated.Name(), domain.ChatUpdate{Chat: view, IsNew: true})
	}
	return c.JSON(http.StatusCreated, chat)
}

// GET /messages/:chatId?limit=<n>&before=<cursor>
func (s *Server) listMessages(c echo.Context) error {
	limit, err := queryInt(c, "limit", domain.MessagePageSize)
	if err != nil {
		return err
	}
	if limit > domain.MaxPageSize {
		limit = domain.MaxPageSize
	}
	page, err := s.store.ListMessages(middleware.UserID(c), c.Param("chatId"), limit, c.QueryParam("before"))
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, page)
}

// POST /messages/:chatId {content}
func (s *Server) sendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	chatID := c.Param("chatId")
	msg, err := s.store.PostMessage(middleware.UserID(c), chatID, req.Content)
	if err != nil {
		return storeError(err)
	}
	s.broadcast(chatID, "", events.NewMessage.Name(), msg)
	return c.JSON(http.StatusCreated, msg)
}

// POST /messages/:chatId/read
func (s *Server) markReadHandler(c echo.Context) error {
	if err := s.markRead(c.Request().Context(), middleware.UserID(c), c.Param("chatId")); err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func bindValid(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if err := domain.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return nil
}

func queryInt(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, name+" must be a positive integer")
	}
	return n, nil
}

// storeError maps store failures to HTTP errors.
func storeError(err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrNotMember):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	default:
		// Empty content, bad cursors and invalid participant lists.
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
