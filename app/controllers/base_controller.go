package controllers

import (
	"net/http"

	"github.com/beego/beego/v2/server/web"
	"github.com/docchat/backend-go/internal/errors"
)

// BaseController provides helpers for consistent JSON responses.
type BaseController struct {
	web.Controller
}

// JSON writes a JSON response with the supplied HTTP status code.
func (c *BaseController) JSON(status int, payload interface{}) {
	c.Ctx.Output.SetStatus(status)
	c.Data["json"] = payload
	c.ServeJSON()
}

// JSONError writes an error payload with message.
func (c *BaseController) JSONError(status int, message string) {
	c.JSON(status, map[string]interface{}{
		"error": message,
	})
}

// ServeError maps an application error to its HTTP status and payload.
func (c *BaseController) ServeError(err error) {
	appErr := errors.GetAppError(err)

	status := appErr.HTTPCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	payload := map[string]interface{}{
		"error": appErr.Message,
	}
	if appErr.Details != nil {
		payload["details"] = appErr.Details
	} else if appErr.Cause != nil {
		payload["details"] = appErr.Cause.Error()
	}

	c.JSON(status, payload)
}
