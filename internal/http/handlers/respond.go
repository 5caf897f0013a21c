package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/candidate-intel-backend/internal/http/response"
	"github.com/yungbote/candidate-intel-backend/internal/platform/ctxutil"
	"github.com/yungbote/candidate-intel-backend/internal/services"
)

func respondErr(c *gin.Context, err error) {
	response.RespondAPIError(c, services.HTTPError(err))
}

// callerID returns the authenticated identity or writes 401.
func callerID(c *gin.Context) (string, bool) {
	id := ctxutil.GetIdentity(c.Request.Context())
	if id == nil || id.ID == "" {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errNotAuthenticated)
		return "", false
	}
	return id.ID, true
}

type handlerError string

func (e handlerError) Error() string { return string(e) }

const (
	errNotAuthenticated handlerError = "not authenticated"
	errMissingCandidate handlerError = "candidateId is required"
	errMissingQuestion  handlerError = "question is required"
	errMissingQuery     handlerError = "query is required"
	errProfileShape     handlerError = "profile must be a JSON object"
)
