package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/medscribe/internal/api/middleware"
	"github.com/yoockh/medscribe/internal/utils"
)

type APIError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

func writeError(c *gin.Context, err error) {
	code := utils.CodeOf(err)
	c.Set(middleware.ErrorCodeKey, code)
	c.JSON(utils.HTTPStatus(err), APIError{
		Code:    code,
		Message: utils.SafeMessage(err),
	})
}

func requireUserID(c *gin.Context) (string, bool) {
	if v, ok := c.Get("user_id"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s, true
		}
	}

	writeError(c, utils.E(utils.CodeUnauthorized, "Auth", "unauthorized", nil))
	return "", false
}

func callerRole(c *gin.Context) string {
	v, _ := c.Get("role")
	s, _ := v.(string)
	return s
}

// pathIndex parses a non-negative integer path parameter.
func pathIndex(c *gin.Context, name, op string) (int, bool) {
	n, err := strconv.Atoi(c.Param(name))
	if err != nil || n < 0 {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, name+" must be a non-negative integer", err))
		return 0, false
	}
	return n, true
}
