package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-attendance-api/internal/middleware"
	"github.com/noah-isme/campus-attendance-api/internal/models"
	appErrors "github.com/noah-isme/campus-attendance-api/pkg/errors"
	"github.com/noah-isme/campus-attendance-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

// requireClaims writes 401 and returns nil when the route was reached without a token.
func requireClaims(c *gin.Context) *models.JWTClaims {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
	}
	return claims
}

// bindJSON decodes the body and writes a 400 on malformed input.
func bindJSON(c *gin.Context, dest interface{}, message string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}

// actingAs resolves the user an operation is performed for. Callers holding
// role act only as themselves: an empty id means self and a different id is
// forbidden. Admins may name anyone.
func actingAs(claims *models.JWTClaims, role models.UserRole, requested string) (string, error) {
	if claims.Role != role {
		return requested, nil
	}
	if requested == "" {
		return claims.UserID, nil
	}
	if requested != claims.UserID {
		return "", appErrors.Clone(appErrors.ErrForbidden, "Access denied")
	}
	return requested, nil
}
