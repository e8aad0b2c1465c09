package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/revubot/revubot/pkg/models"
	"github.com/revubot/revubot/pkg/service"
	"github.com/revubot/revubot/pkg/utils"
)

// AdminServer is a read-only HTTP view of the review queue for operators.
// It never writes; all mutations go through the bot.
type AdminServer struct {
	ginEngine *gin.Engine
	tasks     *service.TaskService
	logger    *slog.Logger
	host      string
	port      int
}

func NewAdminServer(tasks *service.TaskService, host string, port int) *AdminServer {
	gin.SetMode(gin.ReleaseMode)
	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery())

	server := &AdminServer{
		ginEngine: ginEngine,
		tasks:     tasks,
		logger:    utils.GetLogger(),
		host:      host,
		port:      port,
	}
	server.SetupRoutes()
	return server
}

func (s *AdminServer) SetupRoutes() {
	s.ginEngine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := s.ginEngine.Group("/api")
	apiGroup.GET("/tasks", s.listTasks)
	apiGroup.GET("/tasks/:id", s.getTask)
}

// listTasks returns tasks filtered by ?status=open|closed (open by default).
func (s *AdminServer) listTasks(c *gin.Context) {
	status := c.DefaultQuery("status", "open")

	var tasks []models.Task
	var err error
	switch status {
	case "open":
		tasks, err = s.tasks.ListOpen()
	case "closed":
		tasks, err = s.tasks.ListClosed()
	default:
		c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: "unknown status filter: " + status})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "OK", Data: models.TaskListResponse{Tasks: tasks, Total: len(tasks)}})
}

func (s *AdminServer) getTask(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: "invalid task id"})
		return
	}

	task, err := s.tasks.Get(id)
	if err != nil {
		if errors.Is(err, service.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, models.Response{Code: 404, Message: "task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "OK", Data: task})
}

// Start binds the listener and serves in the background; ctx cancellation
// triggers a graceful shutdown.
func (s *AdminServer) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	srv := &http.Server{Addr: addr, Handler: s.ginEngine}

	// Attempt to listen first; if the port is occupied, fail immediately.
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ln)
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	default:
	}

	s.logger.Info("Admin server listening", "addr", addr)
	return nil
}
