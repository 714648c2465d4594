// Package controller exposes the read-only result browsing API.
package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErr "hwjudge/pkg/errors"
)

// Response is the uniform body of every endpoint.
type Response struct {
	Code    appErr.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Data    interface{}      `json:"data,omitempty"`
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    appErr.Success,
		Message: appErr.Success.Message(),
		Data:    data,
	})
}

func respondError(c *gin.Context, err error) {
	code := appErr.GetCode(err)
	msg := code.Message()
	if e := appErr.GetError(err); e != nil && e.Message != "" {
		msg = e.Message
	}
	c.JSON(code.HTTPStatus(), Response{Code: code, Message: msg})
}
