// Package api is the REST client of the chat backend.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nfrund/chatsync/internal/domain"
)

//go:generate mockgen -destination=mock/mock_api.go -package=mock github.com/nfrund/chatsync/internal/api ChatAPI

// ChatAPI is the subset of the backend used by the synchronizers and the CLI.
type ChatAPI interface {
	ListChats(ctx context.Context, page, limit int) ([]domain.ChatSummary, error)
	ListMessages(ctx context.Context, chatID string, limit int, before string) (domain.MessagePage, error)
	MarkRead(ctx context.Context, chatID string) error
	SendMessage(ctx context.Context, chatID, content string) (domain.Message, error)
	CreateChat(ctx context.Context, participantIDs []string) (domain.ChatSummary, error)
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api: unexpected status %d", e.Code)
	}
	return fmt.Sprintf("api: unexpected status %d: %s", e.Code, e.Body)
}

// Client talks to the backend over HTTP with a bearer credential.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

var _ ChatAPI = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// WithLogger sets the logger used for request tracing at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for baseURL authenticating as token.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetAuthToken(token).
			SetHeader("Accept", "application/json"),
		logger: slog.Default().With("component", "api"),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.http.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		c.logger.Debug("API response",
			"method", resp.Request.Method,
			"url", resp.Request.URL,
			"status", resp.StatusCode(),
			"duration", resp.Time(),
		)
		return nil
	})
	return c
}

func checkResponse(resp *resty.Response) error {
	if resp.IsError() {
		return &StatusError{Code: resp.StatusCode(), Body: strings.TrimSpace(resp.String())}
	}
	return nil
}

// ListChats fetches one 1-based page of the viewer's chats, newest activity first.
func (c *Client) ListChats(ctx context.Context, page, limit int) ([]domain.ChatSummary, error) {
	var chats []domain.ChatSummary
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"page":  strconv.Itoa(page),
			"limit": strconv.Itoa(limit),
		}).
		ForceContentType("application/json").
		SetResult(&chats).
		Get("/chats")
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	if err := checkResponse(resp); err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	if chats == nil {
		chats = []domain.ChatSummary{}
	}
	return chats, nil
}

// ListMessages fetches the newest page of chatID, or the page strictly older
// than before when it is set.
func (c *Client) ListMessages(ctx context.Context, chatID string, limit int, before string) (domain.MessagePage, error) {
	var page domain.MessagePage
	req := c.http.R().
		SetContext(ctx).
		SetPathParam("chatId", chatID).
		SetQueryParam("limit", strconv.Itoa(limit)).
		ForceContentType("application/json").
		SetResult(&page)
	if before != "" {
		req.SetQueryParam("before", before)
	}

	resp, err := req.Get("/messages/{chatId}")
	if err != nil {
		return domain.MessagePage{}, fmt.Errorf("list messages of %s: %w", chatID, err)
	}
	if err := checkResponse(resp); err != nil {
		return domain.MessagePage{}, fmt.Errorf("list messages of %s: %w", chatID, err)
	}
	if page.Messages == nil {
		page.Messages = []domain.Message{}
	}
	return page, nil
}

// MarkRead acknowledges every message of chatID for the authenticated user.
func (c *Client) MarkRead(ctx context.Context, chatID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("chatId", chatID).
		Post("/messages/{chatId}/read")
	if err != nil {
		return fmt.Errorf("mark %s read: %w", chatID, err)
	}
	if err := checkResponse(resp); err != nil {
		return fmt.Errorf("mark %s read: %w", chatID, err)
	}
	return nil
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessage posts content to chatID and returns the stored message.
func (c *Client) SendMessage(ctx context.Context, chatID, content string) (domain.Message, error) {
	var msg domain.Message
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("chatId", chatID).
		SetBody(sendMessageRequest{Content: content}).
		ForceContentType("application/json").
		SetResult(&msg).
		Post("/messages/{chatId}")
	if err != nil {
		return domain.Message{}, fmt.Errorf("send message to %s: %w", chatID, err)
	}
	if err := checkResponse(resp); err != nil {
		return domain.Message{}, fmt.Errorf("send message to %s: %w", chatID, err)
	}
	return msg, nil
}

type createChatRequest struct {
	Participants []string `json:"participants"`
}

// CreateChat opens a chat between the authenticated user and participantIDs.
func (c *Client) CreateChat(ctx context.Context, participantIDs []string) (domain.ChatSummary, error) {
	var chat domain.ChatSummary
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(createChatRequest{Participants: participantIDs}).
		ForceContentType("application/json").
		SetResult(&chat).
		Post("/chats")
	if err != nil {
		return domain.ChatSummary{}, fmt.Errorf("create chat: %w", err)
	}
	if err := checkResponse(resp); err != nil {
		return domain.ChatSummary{}, fmt.Errorf("create chat: %w", err)
	}
	return chat, nil
}
