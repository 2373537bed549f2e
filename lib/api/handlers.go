package api

import (
	"github.com/cyclopcam/connect/lib/device"
	"github.com/cyclopcam/connect/lib/router"
	"github.com/cyclopcam/connect/lib/scanner"
	"github.com/gin-gonic/gin"
	"net/http"
)

type deviceJSON struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	LanIP    string `json:"lanIP"`
	LastUsed bool   `json:"lastUsed"`
}

type upsertRequest struct {
	LanIP         string `json:"lanIP" binding:"required"`
	ID            string `json:"id" binding:"required"`
	BearerToken   string `json:"bearerToken" binding:"required"`
	Name          string `json:"name"`
	SessionCookie string `json:"sessionCookie"`
}

type fieldRequest struct {
	ID    string `json:"id" binding:"required"`
	Field string `json:"field" binding:"required"`
	Value string `json:"value"`
}

type connectRequest struct {
	ID   string `json:"id" binding:"required"`
	Mode string `json:"mode"`
}

type serverRequest struct {
	Address   string `json:"ip" binding:"required"`
	Hostname  string `json:"hostname"`
	PublicKey string `json:"publicKey" binding:"required"`
}

type prepareRequest struct {
	PublicKey string `json:"publicKey" binding:"required"`
}

func (s *Server) startScan(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"started": s.deps.Scanner.Start()})
}

func (s *Server) scanState(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Scanner.Snapshot())
}

// injectServer puts a device that the UI remembers from an earlier scan back
// into the scan results, so that a login to it can be prepared after a restart.
func (s *Server) injectServer(c *gin.Context) {
	var req serverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := device.ParseIdentity(req.PublicKey); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.deps.Scanner.Inject(scanner.Candidate{
		Address:   req.Address,
		Hostname:  req.Hostname,
		PublicKey: req.PublicKey,
	})
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// listDevices never includes credentials.
func (s *Server) listDevices(c *gin.Context) {
	last, _ := s.deps.Registry.LastUsed()
	devices := []deviceJSON{}
	for _, r := range s.deps.Registry.All() {
		devices = append(devices, deviceJSON{
			ID:       r.ID,
			Name:     r.Name,
			LanIP:    r.LanIP,
			LastUsed: r.ID == last.ID,
		})
	}
	c.JSON(http.StatusOK, devices)
}

func (s *Server) upsertDevice(c *gin.Context) {
	var req upsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.deps.Registry.Upsert(req.LanIP, req.ID, req.BearerToken, req.Name, req.SessionCookie); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (s *Server) setDeviceField(c *gin.Context) {
	var req fieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.deps.Registry.SetField(req.ID, req.Field, req.Value); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (s *Server) removeDevice(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
		return
	}
	if err := s.deps.Registry.Remove(id); err != nil {
		fail(c, err)
		return
	}
	decision, err := s.deps.Router.DeviceRemoved(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

func (s *Server) connect(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mode, err := router.ParseMode(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	decision, err := s.deps.Router.Connect(c.Request.Context(), req.ID, mode)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

func (s *Server) revalidate(c *gin.Context) {
	decision, err := s.deps.Router.Revalidate(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

// isNewDevice answers "new", "old" or "error".
func (s *Server) isNewDevice(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address is required"})
		return
	}
	state, err := s.deps.Prober.IsNewDevice(c.Request.Context(), address)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"state": "error", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state.String()})
}

func (s *Server) prepareLogin(c *gin.Context) {
	var req prepareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	candidate, ok := s.deps.Scanner.Candidate(req.PublicKey)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "device was not found by the scan"})
		return
	}
	origin, err := s.deps.Router.PrepareLogin(candidate)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"origin": origin})
}
