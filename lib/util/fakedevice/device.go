// Package fakedevice implements the device side of the HTTP contract.
// It serves the tests of the client packages and the fakedevice command.
package fakedevice

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"github.com/cyclopcam/connect/lib/device"
	"github.com/gin-gonic/gin"
	"net/http"
	"strings"
	"sync"
)

// Greeting is what a device answers to a ping.
const Greeting = "I am Cyclops"

// Device is a simulated appliance. All methods are safe for concurrent use.
type Device struct {
	mu       sync.Mutex
	keyPair  device.KeyPair
	hostname string
	token    string
	hasAdmin bool
	sessions map[string]bool
	greeting string
	forge    bool
	calls    map[string]int

	loginStatus  int
	loginMessage string
}

// New creates a device that accepts the given bearer token.
func New(hostname string, token string) (*Device, error) {
	keyPair, err := device.GenerateKeyPair(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Device{
		keyPair:  keyPair,
		hostname: hostname,
		token:    token,
		hasAdmin: true,
		sessions: make(map[string]bool),
		greeting: Greeting,
		calls:    make(map[string]int),
	}, nil
}

// ID returns the public key of the device in its registry form.
func (d *Device) ID() string {
	return d.keyPair.Public.String()
}

func (d *Device) Hostname() string {
	return d.hostname
}

// NewSession creates a session which whoami accepts.
func (d *Device) NewSession() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.newSession()
}

func (d *Device) newSession() string {
	raw := make([]byte, 16)
	rand.Read(raw)
	session := hex.EncodeToString(raw)
	d.sessions[session] = true
	return session
}

// ExpireSessions invalidates every session.
func (d *Device) ExpireSessions() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions = make(map[string]bool)
}

func (d *Device) SetToken(token string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.token = token
}

func (d *Device) SetHasAdmin(hasAdmin bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hasAdmin = hasAdmin
}

func (d *Device) SetGreeting(greeting string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.greeting = greeting
}

// ForgeProofs makes the device answer challenges with garbage,
// like an impostor that does not own the private key.
func (d *Device) ForgeProofs(forge bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.forge = forge
}

// FailLogin makes login answer with status and message, as a device with a
// broken database does. A zero status restores normal logins.
func (d *Device) FailLogin(status int, message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loginStatus = status
	d.loginMessage = message
}

// Calls returns how often an endpoint was requested, e.g. Calls("/api/auth/login").
func (d *Device) Calls(path string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[path]
}

// Handler returns the HTTP handler of the device API.
func (d *Device) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), d.count)
	engine.GET("/api/ping", d.ping)
	engine.GET("/api/keys", d.keys)
	engine.GET("/api/auth/whoami", d.whoami)
	engine.POST("/api/auth/login", d.login)
	engine.GET("/api/auth/hasAdmin", d.hasAdminHandler)
	return engine
}

func (d *Device) count(c *gin.Context) {
	d.mu.Lock()
	d.calls[c.Request.URL.Path]++
	d.mu.Unlock()
	c.Next()
}

func (d *Device) ping(c *gin.Context) {
	d.mu.Lock()
	greeting := d.greeting
	d.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{
		"greeting":  greeting,
		"hostname":  d.hostname,
		"publicKey": d.ID(),
	})
}

func (d *Device) keys(c *gin.Context) {
	client, err := device.ParseIdentity(c.Query("publicKey"))
	if err != nil {
		c.String(http.StatusBadRequest, "invalid publicKey")
		return
	}
	challenge, err := base64.StdEncoding.DecodeString(c.Query("challenge"))
	if err != nil || len(challenge) != device.ChallengeSize {
		c.String(http.StatusBadRequest, "invalid challenge")
		return
	}
	proof, err := device.Prove(d.keyPair.Private, client, challenge)
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	d.mu.Lock()
	if d.forge {
		proof[0] ^= 0xff
	}
	d.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{
		"publicKey": d.ID(),
		"proof":     base64.StdEncoding.EncodeToString(proof),
	})
}

// whoami reads the session cookie and falls back to X-Session-Cookie
// only when the request has no cookie.
func (d *Device) whoami(c *gin.Context) {
	session, err := c.Cookie("session")
	if err != nil {
		session = c.GetHeader("X-Session-Cookie")
	}
	d.mu.Lock()
	ok := d.sessions[session]
	d.mu.Unlock()
	if !ok {
		c.String(http.StatusUnauthorized, "invalid session")
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": 1, "username": "admin"})
}

func (d *Device) login(c *gin.Context) {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loginStatus != 0 {
		c.String(d.loginStatus, d.loginMessage)
		return
	}
	if token == "" || token != d.token {
		c.String(http.StatusUnauthorized, "invalid token")
		return
	}
	session := d.newSession()
	c.Header("Set-Cookie", "session="+session+"; Path=/; HttpOnly; SameSite=Strict")
	c.Status(http.StatusOK)
}

func (d *Device) hasAdminHandler(c *gin.Context) {
	d.mu.Lock()
	hasAdmin := d.hasAdmin
	d.mu.Unlock()
	if hasAdmin {
		c.String(http.StatusOK, "true")
	} else {
		c.String(http.StatusOK, "false")
	}
}
