package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/candidate-intel-backend/internal/http/response"
	"github.com/yungbote/candidate-intel-backend/internal/services"
)

type SearchHandler struct {
	search    services.CandidateSearch
	summaries services.CandidateSummaries
}

func NewSearchHandler(search services.CandidateSearch, summaries services.CandidateSummaries) *SearchHandler {
	return &SearchHandler{search: search, summaries: summaries}
}

// GET /api/recruiter/search?query=&candidateIds=a,b
//
// candidateIds optionally restricts ranking to a recruiter's shortlist.
func (h *SearchHandler) Search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("query"))
	if query == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_query", errMissingQuery)
		return
	}
	var shortlist []string
	for _, raw := range c.QueryArray("candidateIds") {
		shortlist = append(shortlist, strings.Split(raw, ",")...)
	}
	results, err := h.search.Search(c.Request.Context(), query, shortlist...)
	if err != nil {
		respondErr(c, err)
		return
	}
	if results == nil {
		results = []services.CandidateMatch{}
	}
	response.RespondOK(c, gin.H{"results": results})
}

// GET /api/recruiter/candidates/:candidateId/summary
func (h *SearchHandler) GetSummary(c *gin.Context) {
	view, err := h.summaries.GetSummary(c.Request.Context(), c.Param("candidateId"))
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"summary": view})
}
