package daemon

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/gmarchetti/chatsync/internal/api"
	"github.com/gmarchetti/chatsync/internal/session"
	"github.com/gmarchetti/chatsync/internal/store"
)

// Server serves the control API over the session's unix domain socket.
type Server struct {
	echo       *echo.Echo
	listener   net.Listener
	socketPath string
	logger     *zap.Logger

	messages      *api.MessageService
	conversations *api.ConversationService
	users         *api.UserService
	sync          *api.SyncService
}

// NewServer creates an HTTP server bound to the session's unix socket.
func NewServer(
	p Params,
	logger *zap.Logger,
	messages *api.MessageService,
	conversations *api.ConversationService,
	users *api.UserService,
	syncSvc *api.SyncService,
) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = session.SocketPath(p.SessionName)
	}

	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Listener = listener

	s := &Server{
		echo:          e,
		listener:      listener,
		socketPath:    socketPath,
		logger:        logger,
		messages:      messages,
		conversations: conversations,
		users:         users,
		sync:          syncSvc,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	v1 := s.echo.Group("/v1")
	v1.POST("/messages", s.sendMessage)
	v1.GET("/messages/:id", s.getMessage)
	v1.POST("/messages/:id/retry", s.retryMessage)
	v1.GET("/conversations", s.listConversations)
	v1.GET("/conversations/:id", s.getConversation)
	v1.GET("/conversations/:id/messages", s.listMessages)
	v1.GET("/users", s.listUsers)
	v1.GET("/users/:id", s.getUser)
	v1.POST("/sync", s.triggerSync)
	v1.GET("/sync/status", s.syncStatus)
}

// Start begins serving requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("control server starting", zap.String("socket", s.socketPath))
	err := s.echo.Start("")
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop performs a graceful shutdown and removes the socket file.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("control server stopping")
	if err := s.echo.Shutdown(ctx); err != nil {
		_ = s.echo.Close()
	}
	_ = os.Remove(s.socketPath)
}

type sendMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Body           string `json:"body"`
}

func (s *Server) sendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	msg, err := s.messages.Send(req.ConversationID, req.SenderID, req.Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusCreated, msg)
}

func (s *Server) getMessage(c echo.Context) error {
	view, err := s.messages.Get(c.Param("id"))
	if err != nil {
		return err
	}
	if view == nil {
		return echo.NewHTTPError(http.StatusNotFound, "message not found")
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) retryMessage(c echo.Context) error {
	retried, err := s.messages.Retry(c.Param("id"))
	if err != nil {
		return err
	}
	if !retried {
		return echo.NewHTTPError(http.StatusConflict, "message has no failed delivery to retry")
	}
	return c.JSON(http.StatusOK, map[string]bool{"retried": true})
}

func (s *Server) listMessages(c echo.Context) error {
	page, err := s.messages.List(c.Param("id"), queryInt(c, "limit"), queryInt64(c, "cursor"), queryDirection(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

func (s *Server) listConversations(c echo.Context) error {
	page, err := s.conversations.List(queryInt(c, "limit"), queryInt64(c, "cursor"), queryDirection(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

func (s *Server) getConversation(c echo.Context) error {
	conv, err := s.conversations.Get(c.Param("id"))
	if err != nil {
		return err
	}
	if conv == nil {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	return c.JSON(http.StatusOK, conv)
}

func (s *Server) listUsers(c echo.Context) error {
	users, err := s.users.Recent(queryInt(c, "limit"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, users)
}

func (s *Server) getUser(c echo.Context) error {
	user, err := s.users.Get(c.Param("id"))
	if err != nil {
		return err
	}
	if user == nil {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}
	return c.JSON(http.StatusOK, user)
}

func (s *Server) triggerSync(c echo.Context) error {
	s.sync.Trigger()
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) syncStatus(c echo.Context) error {
	st, err := s.sync.Status()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

func queryInt(c echo.Context, name string) int {
	n, _ := strconv.Atoi(c.QueryParam(name))
	return n
}

func queryInt64(c echo.Context, name string) int64 {
	n, _ := strconv.ParseInt(c.QueryParam(name), 10, 64)
	return n
}

func queryDirection(c echo.Context) store.Direction {
	if c.QueryParam("dir") == "forward" {
		return store.Forward
	}
	return store.Backward
}
