package sessionmgr

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"netwalk/internal/config"
	"netwalk/internal/logging"
	"netwalk/internal/transport"
)

// serverVersion and minDaemonVersion are reported on every
// register/startup call, per spec.md §4.9's ServerCapabilities.
const (
	serverVersion    = "1.0.0"
	minDaemonVersion = "0.1.0"
)

// registrationRequest mirrors internal/daemonrt.Registration's wire
// shape (the two packages never share Go types, only the JSON
// contract spec.md §4.9/§6 defines between them).
type registrationRequest struct {
	DaemonID     uuid.UUID `json:"daemon_id,omitempty"`
	NetworkID    uuid.UUID `json:"network_id"`
	Capabilities struct {
		HasDockerSocket   bool `json:"has_docker_socket"`
		InterfacedSubnets bool `json:"interfaced_subnets"`
	} `json:"capabilities"`
	Mode    config.Mode `json:"mode"`
	Name    string      `json:"name"`
	Version string      `json:"version"`
}

type serverCapabilities struct {
	LatestVersion    string   `json:"latest_version"`
	MinDaemonVersion string   `json:"min_supported_daemon_version"`
	Deprecations     []string `json:"deprecation_warnings,omitempty"`
}

type registrationResponse struct {
	DaemonID     uuid.UUID          `json:"daemon_id"`
	Capabilities serverCapabilities `json:"server_capabilities"`
}

type statusPayload struct {
	Name    string      `json:"name"`
	Mode    config.Mode `json:"mode"`
	Version string      `json:"version"`
}

type workAssignment struct {
	Session       *assignedSession `json:"session,omitempty"`
	CancelCurrent bool             `json:"cancel_current"`
}

type assignedSession struct {
	SessionID uuid.UUID     `json:"session_id"`
	Kind      string        `json:"kind"`
	Request   sessionReq    `json:"request"`
}

// sessionReq is deliberately minimal compared to internal/session.Request:
// the Session Manager doesn't compute scan parameters (subnet
// enumeration, concurrency) itself, it only carries the network id and
// the discovery type through to the daemon, which derives the rest
// locally per spec.md §4.7. No subnet list or SNMP credential is sent;
// of DiscoveryType, only Kind reaches the daemon (in assignedSession).
type sessionReq struct {
	NetworkID uuid.UUID `json:"network_id"`
}

type entitiesPayload struct {
	Hosts   []map[string]any `json:"hosts,omitempty"`
	Subnets []map[string]any `json:"subnets,omitempty"`
}

// Server wires a Manager and a Registry behind the gin HTTP surface
// spec.md §6 lists as "key daemon endpoints consumed from server."
// Grounded on jroosing-HydraDNS's handlers.Handler (dependencies held
// as struct fields, one method per route, gin.Context bound/JSON
// throughout) generalized from a DNS record API to this daemon↔server
// contract.
type Server struct {
	mgr      *Manager
	registry *Registry
	logger   *logging.Logger
	apiKey   string
}

func NewServer(mgr *Manager, registry *Registry, logger *logging.Logger, apiKey string) *Server {
	return &Server{mgr: mgr, registry: registry, logger: logger, apiKey: apiKey}
}

// Router builds the gin engine. Grounded on jroosing-HydraDNS's
// RegisterRoutes + RequireAPIKey shape, adapted to this package's own
// Logger instead of log/slog.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(s.requestLogger(), gin.Recovery())

	api := r.Group("/api")
	if s.apiKey != "" {
		api.Use(s.requireAPIKey())
	}

	api.POST("/daemons/register", s.handleRegister)
	api.POST("/daemons/:id/startup", s.handleStartup)
	api.POST("/daemons/:id/request-work", s.handleRequestWork)
	api.POST("/discovery/sessions/:id/update", s.handleSessionUpdate)
	api.POST("/discovery/entities", s.handleEntities)

	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("session manager request",
			logging.F("method", c.Request.Method),
			logging.F("path", c.Request.URL.Path),
			logging.F("status", c.Writer.Status()),
			logging.F("latency_ms", time.Since(start).Milliseconds()),
		)
	}
}

// requireAPIKey checks the daemon bearer token spec.md §6 describes:
// "Authorization: Bearer <opaque-string> plus X-Daemon-ID". Mirrored on
// jroosing-HydraDNS's RequireAPIKey, generalized from a single shared
// secret header to the Bearer scheme this wire format specifies.
func (s *Server) requireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		const prefix = "Bearer "
		auth := c.GetHeader("Authorization")
		if len(auth) > len(prefix) && auth[:len(prefix)] == prefix && auth[len(prefix):] == s.apiKey {
			c.Next()
			return
		}
		transport.RespondError(c, http.StatusUnauthorized, errUnauthorized)
	}
}

var errUnauthorized = unauthorizedError{}

type unauthorizedError struct{}

func (unauthorizedError) Error() string { return "unauthorized" }

func (s *Server) handleRegister(c *gin.Context) {
	var req registrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		transport.RespondError(c, http.StatusBadRequest, err)
		return
	}

	rec := s.registry.Register(DaemonRecord{
		DaemonID:  req.DaemonID,
		NetworkID: req.NetworkID,
		Name:      req.Name,
		Mode:      req.Mode,
		Version:   req.Version,
	})

	transport.Respond(c, http.StatusOK, registrationResponse{
		DaemonID: rec.DaemonID,
		Capabilities: serverCapabilities{
			LatestVersion:    serverVersion,
			MinDaemonVersion: minDaemonVersion,
		},
	}, nil)
}

func (s *Server) handleStartup(c *gin.Context) {
	daemonID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		transport.RespondError(c, http.StatusBadRequest, err)
		return
	}
	s.registry.Touch(daemonID)
	transport.Respond(c, http.StatusOK, registrationResponse{
		DaemonID: daemonID,
		Capabilities: serverCapabilities{
			LatestVersion:    serverVersion,
			MinDaemonVersion: minDaemonVersion,
		},
	}, nil)
}

// handleRequestWork is the pull-mode poll endpoint: report status,
// receive either nothing, a cancel signal for the running session, or
// the next Pending session to dispatch.
func (s *Server) handleRequestWork(c *gin.Context) {
	daemonID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		transport.RespondError(c, http.StatusBadRequest, err)
		return
	}
	var status statusPayload
	if err := c.ShouldBindJSON(&status); err != nil {
		transport.RespondError(c, http.StatusBadRequest, err)
		return
	}
	s.registry.Touch(daemonID)

	if cancelSessionID, pending := s.mgr.PopPullCancellation(daemonID); pending {
		s.logger.Info("clearing pull cancellation on poll",
			logging.F("daemon_id", daemonID), logging.F("session_id", cancelSessionID))
		transport.Respond(c, http.StatusOK, workAssignment{CancelCurrent: true}, nil)
		return
	}

	pending := s.mgr.PendingSessionsForDaemon(daemonID)
	if len(pending) == 0 {
		transport.Respond(c, http.StatusOK, workAssignment{}, nil)
		return
	}

	next := pending[0]
	s.mgr.TransitionToStarting(next.SessionID)

	transport.Respond(c, http.StatusOK, workAssignment{
		Session: &assignedSession{
			SessionID: next.SessionID,
			Kind:      string(next.DiscoveryType.Kind),
			Request:   sessionReq{NetworkID: next.NetworkID},
		},
	}, nil)
}

func (s *Server) handleSessionUpdate(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		transport.RespondError(c, http.StatusBadRequest, err)
		return
	}
	var update StatusUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		transport.RespondError(c, http.StatusBadRequest, err)
		return
	}

	existing, ok := s.mgr.GetSession(sessionID)
	daemonID, networkID := uuid.Nil, uuid.Nil
	if ok {
		daemonID, networkID = existing.DaemonID, existing.NetworkID
	}

	if err := s.mgr.UpdateSession(sessionID, daemonID, networkID, update); err != nil {
		transport.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	transport.Respond(c, http.StatusOK, nil, nil)
}

// handleEntities accepts push-mode's entity batch upload and returns
// authoritative ids. Server-side deduplication and persistence is a
// CRUD/storage concern outside this package's scope (spec.md §1); this
// handler's job per spec.md §4.10/§6 is only the session-facing
// contract (accept the batch, acknowledge it), so it assigns a fresh
// authoritative id to every pending entity rather than performing real
// dedup, leaving that reconciliation to the CRUD layer named in
// spec.md §1 as an external collaborator.
func (s *Server) handleEntities(c *gin.Context) {
	var payload entitiesPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		transport.RespondError(c, http.StatusBadRequest, err)
		return
	}

	type remap struct {
		Pending      string `json:"pending_id"`
		Authoritative string `json:"confirmed"`
	}
	hosts := make([]remap, 0, len(payload.Hosts))
	for _, h := range payload.Hosts {
		pendingID, _ := h["id"].(string)
		hosts = append(hosts, remap{Pending: pendingID, Authoritative: uuid.New().String()})
	}
	subnets := make([]remap, 0, len(payload.Subnets))
	for _, sn := range payload.Subnets {
		pendingID, _ := sn["id"].(string)
		subnets = append(subnets, remap{Pending: pendingID, Authoritative: uuid.New().String()})
	}

	transport.Respond(c, http.StatusOK, map[string]any{
		"hosts":   hosts,
		"subnets": subnets,
	}, nil)
}
