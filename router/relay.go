package router

import (
	"github.com/gin-gonic/gin"

	"github.com/nexusgate/llmgateway/controller/gateway"
)

// SetRelayRouter binds the seven client-facing routes of spec.md §6 to the
// gateway package's handlers, mirroring SetApiRouter's Set*Router(engine)
// shape. Deps carries every long-lived collaborator (DB, convert
// registry, billing engine) the handlers need.
func SetRelayRouter(router *gin.Engine, deps *gateway.Deps) {
	router.POST("/v1/chat/completions", deps.Relay("chat"))
	router.POST("/v1/responses", deps.Relay("cli"))
	router.POST("/v1/messages", deps.Relay("chat"))

	// Gemini's model+action live in a single ":"-joined path segment
	// (e.g. "gemini-pro:generateContent"), which gin's router can't split
	// at registration time — a single route dispatches on the suffix.
	router.POST("/v1beta/models/:model", deps.GeminiModelAction())
	router.GET("/v1beta/models/:model/operations/:operation", deps.GetVideoStatus())

	router.POST("/v1/videos", deps.SubmitVideo())
	router.GET("/v1/videos/:id", deps.GetVideoStatus())
}
