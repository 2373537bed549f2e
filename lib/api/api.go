// Package api serves the local HTTP API through which the UI shell drives
// scanning, the device list and connections.
package api

import (
	"context"
	"errors"
	"github.com/cyclopcam/connect/lib/probe"
	"github.com/cyclopcam/connect/lib/registry"
	"github.com/cyclopcam/connect/lib/router"
	"github.com/cyclopcam/connect/lib/scanner"
	"github.com/gin-gonic/gin"
	"net/http"
	"time"
)

// Deps are the components behind the API.
type Deps struct {
	Scanner  *scanner.Scanner
	Registry *registry.Registry
	Router   *router.Router
	Prober   *probe.Prober
}

type Server struct {
	deps   Deps
	engine *gin.Engine
}

func New(deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		deps:   deps,
		engine: gin.New(),
	}
	s.engine.Use(gin.Recovery(), requestLogger)

	api := s.engine.Group("/api")
	api.POST("/scan", s.startScan)
	api.GET("/scan", s.scanState)
	api.GET("/scan/watch", s.watchScan)
	api.POST("/scan/servers", s.injectServer)
	api.GET("/devices", s.listDevices)
	api.POST("/devices", s.upsertDevice)
	api.PATCH("/devices", s.setDeviceField)
	api.DELETE("/devices", s.removeDevice)
	api.POST("/connect", s.connect)
	api.POST("/revalidate", s.revalidate)
	api.GET("/probe/new", s.isNewDevice)
	api.POST("/login/prepare", s.prepareLogin)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:    addr,
		Handler: s.engine,
	}
	errs := make(chan error, 1)
	go func() {
		errs <- server.ListenAndServe()
	}()
	log.Infof("Listening on %v", addr)
	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func requestLogger(c *gin.Context) {
	start := time.Now()
	c.Next()
	log.Debugf("%v %v %v (%v)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
}

// statusOf maps an error to the status code the UI expects.
func statusOf(err error) int {
	var credentialErr *probe.CredentialError
	var connectivityErr *router.ConnectivityError
	switch {
	case errors.Is(err, router.ErrUnknownDevice), errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, router.ErrNotActive):
		return http.StatusConflict
	case errors.Is(err, registry.ErrUnknownField):
		return http.StatusBadRequest
	case errors.As(err, &credentialErr):
		return http.StatusUnauthorized
	case errors.As(err, &connectivityErr):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.Errorf("%v %v: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
