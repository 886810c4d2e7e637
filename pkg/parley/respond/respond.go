// Package respond writes the JSON envelope every API response uses.
package respond

import (
	"github.com/gin-gonic/gin"
	"github.com/parleychat/parley/pkg/parley/apperr"
	"github.com/parleychat/parley/pkg/parley/logging"
)

// Envelope is the shape of every API response
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// OK writes a success envelope
func OK(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, Envelope{Success: true, Message: message, Data: data})
}

// Error writes a failure envelope for err. Only the typed message reaches the
// client; internal causes are logged.
func Error(c *gin.Context, err error) {
	appErr := apperr.From(err)
	if appErr.Kind == apperr.KindInternal {
		ctx := map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		}
		if userID, ok := c.Get("user_id"); ok {
			ctx["user_id"] = userID
		}
		logging.Error("request_failed", err, ctx)
	}
	c.JSON(appErr.StatusCode(), Envelope{Success: false, Message: appErr.Message})
}

// Abort writes a failure envelope and stops the handler chain
func Abort(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}
