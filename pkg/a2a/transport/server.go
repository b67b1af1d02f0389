package transport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentcore/platform/internal/logger"
	"github.com/agentcore/platform/pkg/a2a"
	"github.com/agentcore/platform/pkg/agenterrors"
)

// Handler processes one inbound Message and optionally returns a reply
// (nil for fire-and-forget notification/event messages).
type Handler func(ctx *gin.Context, msg a2a.Message) (*a2a.Message, error)

// Server exposes the inbound A2A HTTP surface (spec §6.3): POST
// {endpoint}/a2a/messages.
type Server struct {
	engine  *gin.Engine
	handler Handler
}

// NewServer wires handler onto a fresh gin engine at POST /a2a/messages.
func NewServer(handler Handler) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, handler: handler}
	engine.POST("/a2a/messages", s.receive)
	return s
}

// Engine exposes the underlying gin.Engine so callers can mount additional
// routes (health, reload, discovery) alongside it.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) receive(c *gin.Context) {
	log := logger.FromContext(c.Request.Context())

	var msg a2a.Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, agenterrors.New(agenterrors.KindProtocolError, "malformed message body", map[string]any{"error": err.Error()}).AsMap(false))
		return
	}

	reply, err := s.handler(c, msg)
	if err != nil {
		writeError(c, err)
		return
	}
	if reply == nil {
		c.Status(http.StatusAccepted)
		return
	}
	log.Debug("a2a message handled", "message_id", msg.ID, "type", msg.Type)
	c.JSON(http.StatusOK, reply)
}

func writeError(c *gin.Context, err error) {
	kind, ok := agenterrors.KindOf(err)
	status := http.StatusInternalServerError
	if ok {
		switch kind {
		case agenterrors.KindOperationNotFound, agenterrors.KindTargetUnknown, agenterrors.KindNotFound:
			status = http.StatusNotFound
		case agenterrors.KindInvalidArgument, agenterrors.KindProtocolError:
			status = http.StatusBadRequest
		case agenterrors.KindUnauthorized, agenterrors.KindPermissionDenied:
			status = http.StatusUnauthorized
		case agenterrors.KindWriteForbidden:
			status = http.StatusForbidden
		case agenterrors.KindCircuitOpen, agenterrors.KindSkillUnavailable, agenterrors.KindOverloaded:
			status = http.StatusServiceUnavailable
		case agenterrors.KindTimeout, agenterrors.KindStepTimeout, agenterrors.KindInitializationTimeout:
			status = http.StatusGatewayTimeout
		}
	}
	if ae, ok := err.(*agenterrors.Error); ok {
		c.JSON(status, ae.AsMap(false))
		return
	}
	c.JSON(status, agenterrors.New(agenterrors.KindUnreachable, err.Error(), nil).AsMap(false))
}
