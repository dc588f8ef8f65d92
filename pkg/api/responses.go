package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coreforge/agentcore/pkg/shell"
	"github.com/coreforge/agentcore/pkg/version"
)

// respondOK writes the §6.1 success envelope for an authenticated call.
func respondOK(c *gin.Context, ac *shell.AuthContext, data any) {
	c.JSON(http.StatusOK, shell.SuccessEnvelope{
		Data: data,
		TenantContext: shell.TenantContextEnvelope{
			OrgID:  ac.OrgID,
			UserID: ac.UserID,
		},
		Metadata: shell.Metadata{
			RequestID:  requestIDFrom(c),
			APIVersion: version.APIVersion,
		},
	})
}

// respondOKAnonymous writes the success envelope for calls made before
// authentication succeeds (register, login).
func respondOKAnonymous(c *gin.Context, orgID, userID string, data any) {
	c.JSON(http.StatusOK, shell.SuccessEnvelope{
		Data:          data,
		TenantContext: shell.TenantContextEnvelope{OrgID: orgID, UserID: userID},
		Metadata: shell.Metadata{
			RequestID:  requestIDFrom(c),
			APIVersion: version.APIVersion,
		},
	})
}

// respondErr writes the §6.1 failure envelope, deriving the HTTP status
// from the error's apierr.Kind (§7).
func respondErr(c *gin.Context, err error, orgID, userID string) {
	env := shell.NewFailureEnvelope(err, orgID, userID)
	c.JSON(env.Error.Code, env)
}
