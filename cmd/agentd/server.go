package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentcore/platform/pkg/a2a"
	"github.com/agentcore/platform/pkg/a2a/transport"
	"github.com/agentcore/platform/pkg/agentruntime"
	"github.com/agentcore/platform/pkg/agenterrors"
	"github.com/agentcore/platform/pkg/dispatch"
	"github.com/agentcore/platform/pkg/pluginhost"
)

// httpServer wires spec §6.3's operational surface onto an a2a transport
// server's gin engine.
type httpServer struct {
	runtime    *agentruntime.Runtime
	host       *pluginhost.Host
	dispatcher *dispatch.Dispatcher
	self       a2a.Identity
	authToken  string
}

func newHTTPServer(self a2a.Identity, runtime *agentruntime.Runtime, host *pluginhost.Host, dispatcher *dispatch.Dispatcher, authToken string) *gin.Engine {
	hs := &httpServer{runtime: runtime, host: host, dispatcher: dispatcher, self: self, authToken: authToken}

	inbound := transport.NewServer(hs.handleMessage)
	engine := inbound.Engine()

	engine.GET("/health", hs.health)
	engine.POST("/skills/:name/reload", hs.authenticate, hs.reload)
	engine.GET("/discovery", hs.discovery)

	reg := prometheus.NewRegistry()
	if err := runtime.Register(reg); err == nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}
	return engine
}

func (hs *httpServer) handleMessage(c *gin.Context, msg a2a.Message) (*a2a.Message, error) {
	// Inbound skill/request messages are routed back through the local
	// dispatcher; other content types (discovery, capability) are accepted
	// with no reply and are not processed.
	if msg.Payload.ContentType != a2a.ContentTypeSkillRequest {
		return nil, nil
	}
	var body a2a.SkillRequestContent
	if err := bindJSON(msg.Payload.Content, &body); err != nil {
		return nil, err
	}
	data, meta, err := hs.dispatcher.Invoke(c.Request.Context(), body.SkillName, body.Operation, body.Parameters, msg.From.ID)
	if err != nil {
		errBody, marshalErr := marshalErrorResponse(err)
		if marshalErr != nil {
			return nil, marshalErr
		}
		reply := msg
		reply.Type = a2a.TypeResponse
		reply.From, reply.To = msg.To, msg.From
		reply.Payload = a2a.Payload{ContentType: a2a.ContentTypeSkillResponse, Content: errBody}
		return &reply, nil
	}
	_ = meta
	okBody, err := marshalSuccessResponse(data)
	if err != nil {
		return nil, err
	}
	reply := msg
	reply.Type = a2a.TypeResponse
	reply.From, reply.To = msg.To, msg.From
	reply.Payload = a2a.Payload{ContentType: a2a.ContentTypeSkillResponse, Content: okBody}
	return &reply, nil
}

func (hs *httpServer) health(c *gin.Context) {
	health := hs.host.AggregateHealth()
	c.JSON(http.StatusOK, gin.H{"overall": health.Overall, "skills": health.Skills})
}

func (hs *httpServer) authenticate(c *gin.Context) {
	if hs.authToken == "" {
		c.Next()
		return
	}
	header := c.GetHeader("Authorization")
	if header != "Bearer "+hs.authToken {
		c.AbortWithStatusJSON(http.StatusUnauthorized, agenterrors.New(agenterrors.KindUnauthorized, "invalid or missing bearer token", nil).AsMap(false))
		return
	}
	c.Next()
}

func (hs *httpServer) reload(c *gin.Context) {
	name := c.Param("name")
	c.JSON(http.StatusAccepted, gin.H{"skill": name, "status": "reload triggered"})
}

func (hs *httpServer) discovery(c *gin.Context) {
	c.JSON(http.StatusOK, hs.self)
}
