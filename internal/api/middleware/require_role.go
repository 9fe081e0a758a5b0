package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/medscribe/internal/utils"
)

// RequireRole lets through callers whose JWT role is one of allowed. Roles compare
// case-insensitively.
func RequireRole(allowed ...string) gin.HandlerFunc {
	const op = "RequireRole"

	allow := map[string]struct{}{}
	for _, a := range allowed {
		if a = normalizeRole(a); a != "" {
			allow[a] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		role := normalizeRole(c.GetString("role"))
		if role == "" {
			abort(c, utils.E(utils.CodeForbidden, op, "forbidden", nil))
			return
		}
		if _, ok := allow[role]; !ok {
			abort(c, utils.E(utils.CodeForbidden, op, "role "+role+" is not allowed", nil))
			return
		}
		c.Next()
	}
}

// RequireDoctor guards consultation and prescription routes. Patients only read their own
// appointments.
func RequireDoctor() gin.HandlerFunc { return RequireRole(RoleDoctor) }

func normalizeRole(r string) string { return strings.ToLower(strings.TrimSpace(r)) }
