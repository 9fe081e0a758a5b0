package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yoockh/medscribe/config"
	"github.com/yoockh/medscribe/internal/utils"
)

const (
	RoleDoctor  = "doctor"
	RolePatient = "patient"
)

type apiError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

// abort ends the chain with err in the same shape the handlers answer with.
func abort(c *gin.Context, err error) {
	code := utils.CodeOf(err)
	c.Set(ErrorCodeKey, code)
	c.AbortWithStatusJSON(utils.HTTPStatus(err), apiError{Code: code, Message: utils.SafeMessage(err)})
}

type Claims struct {
	jwt.RegisteredClaims
	Role      string `json:"role"` // doctor | patient
	PatientID string `json:"patient_id,omitempty"`
}

// JWTAuth validates HS256 bearer tokens and sets user_id, role and patient_id on the context.
// With cfg.Disabled every request runs as a demo doctor.
func JWTAuth(cfg config.AuthConfig) gin.HandlerFunc {
	const op = "JWTAuth"

	return func(c *gin.Context) {
		if cfg.Disabled {
			c.Set("user_id", "demo-doctor")
			c.Set("role", RoleDoctor)
			c.Next()
			return
		}

		if cfg.Secret == "" {
			abort(c, utils.E(utils.CodeInternal, op, "JWT_SECRET is not set", nil))
			return
		}

		raw := bearerToken(c)
		if raw == "" {
			abort(c, utils.E(utils.CodeUnauthorized, op, "missing bearer token", nil))
			return
		}

		claims := &Claims{}
		tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			return []byte(cfg.Secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

		if err != nil || tok == nil || !tok.Valid {
			abort(c, utils.E(utils.CodeUnauthorized, op, "invalid token", nil))
			return
		}

		if cfg.Issuer != "" && claims.Issuer != cfg.Issuer {
			abort(c, utils.E(utils.CodeUnauthorized, op, "invalid token issuer", nil))
			return
		}

		if cfg.Audience != "" {
			valid := false
			for _, aud := range claims.Audience {
				if aud == cfg.Audience {
					valid = true
					break
				}
			}
			if !valid {
				abort(c, utils.E(utils.CodeUnauthorized, op, "invalid token audience", nil))
				return
			}
		}

		if claims.Subject == "" {
			abort(c, utils.E(utils.CodeUnauthorized, op, "missing subject", nil))
			return
		}

		role := strings.ToLower(strings.TrimSpace(claims.Role))
		if role == "" {
			role = RolePatient
		}

		c.Set("user_id", claims.Subject)
		c.Set("role", role)
		if claims.PatientID != "" {
			c.Set("patient_id", claims.PatientID)
		}
		c.Next()
	}
}

// bearerToken reads the Authorization header, falling back to ?token= for websocket clients
// that cannot set headers.
func bearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if c.GetHeader("Upgrade") != "" {
		return strings.TrimSpace(c.Query("token"))
	}
	return ""
}
