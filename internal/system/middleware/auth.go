package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	authzmodel "github.com/medicore/pii-protection-api/internal/authz/model"
	"github.com/medicore/pii-protection-api/internal/system/constants"
	"github.com/medicore/pii-protection-api/internal/system/error/serviceerror"
	"github.com/medicore/pii-protection-api/internal/system/utils"
)

// AuthMiddleware derives the request Principal from an HMAC-signed bearer token.
// Token issuance is handled by the portal's identity layer; this subsystem only
// consumes already-issued tokens.
func AuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := principalFromRequest(c, secret)
		if err != nil {
			utils.SendError(c, serviceerror.CustomServiceError(serviceerror.AuthenticationError, err.Error()))
			c.Abort()
			return
		}
		c.Set(constants.ContextKeyPrincipal, principal)
		c.Next()
	}
}

// GetPrincipal returns the Principal attached to the request context.
func GetPrincipal(c *gin.Context) (authzmodel.Principal, bool) {
	value, exists := c.Get(constants.ContextKeyPrincipal)
	if !exists {
		return authzmodel.Principal{}, false
	}
	principal, ok := value.(authzmodel.Principal)
	return principal, ok
}

func principalFromRequest(c *gin.Context, secret []byte) (authzmodel.Principal, error) {
	header := c.GetHeader(constants.AuthorizationHeaderName)
	if header == "" {
		return authzmodel.Principal{}, fmt.Errorf("authorization header is missing")
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], constants.TokenTypeBearer) {
		return authzmodel.Principal{}, fmt.Errorf("authorization header must be a bearer token")
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		return authzmodel.Principal{}, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return authzmodel.Principal{}, fmt.Errorf("invalid token")
	}

	return principalFromClaims(claims)
}

func principalFromClaims(claims jwt.MapClaims) (authzmodel.Principal, error) {
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return authzmodel.Principal{}, fmt.Errorf("token subject is missing")
	}

	rawRole, _ := claims["role"].(string)
	role, ok := authzmodel.ParseRole(rawRole)
	if !ok {
		return authzmodel.Principal{}, fmt.Errorf("token carries unknown role")
	}

	principal := authzmodel.Principal{
		ID:   sub,
		Role: role,
	}

	if ownsPatientID, ok := claims["owns_patient_id"].(string); ok {
		principal.OwnsPatientID = ownsPatientID
	}

	if rawAssigned, ok := claims["assigned_patient_ids"].([]interface{}); ok {
		assigned := make([]string, 0, len(rawAssigned))
		for _, v := range rawAssigned {
			if id, ok := v.(string); ok && id != "" {
				assigned = append(assigned, id)
			}
		}
		principal.AssignedPatientIDs = assigned
	}

	return principal, nil
}
