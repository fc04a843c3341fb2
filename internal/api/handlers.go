package api

import (
	"net/http"
	"strconv"
	"time"

	"recon-core/internal/models"
	"recon-core/internal/recon"
	"recon-core/internal/store"
	apperrors "recon-core/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// writeError maps a service error onto the HTTP status of its kind
func (s *Server) writeError(c *gin.Context, err error) {
	re := apperrors.AsRecon(err)
	body := gin.H{
		"error": re.Message,
		"kind":  string(re.Kind),
		"code":  string(re.Code),
	}
	if re.Suggestion != "" {
		body["suggestion"] = re.Suggestion
	}
	if len(re.Context) > 0 {
		body["context"] = re.Context
	}

	status := re.HTTPStatus()
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).WithField("path", c.Request.URL.Path).Error("request failed")
	}
	c.JSON(status, body)
}

func parsePagination(c *gin.Context) store.Pagination {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return store.Pagination{Limit: limit, Offset: offset}
}

func parseTransactionFilter(c *gin.Context) store.TransactionFilter {
	filter := store.TransactionFilter{
		Source:    models.Source(c.Query("source")),
		PartnerID: c.Query("partner_id"),
		Search:    c.Query("search"),
	}

	if from := c.Query("date_from"); from != "" {
		if ts, err := time.Parse("2006-01-02", from); err == nil {
			filter.DateFrom = &ts
		}
	}
	if to := c.Query("date_to"); to != "" {
		if ts, err := time.Parse("2006-01-02", to); err == nil {
			end := ts.Add(24*time.Hour - time.Nanosecond)
			filter.DateTo = &end
		}
	}
	if min := c.Query("amount_min"); min != "" {
		if d, err := decimal.NewFromString(min); err == nil {
			filter.AmountMin = &d
		}
	}
	if max := c.Query("amount_max"); max != "" {
		if d, err := decimal.NewFromString(max); err == nil {
			filter.AmountMax = &d
		}
	}
	return filter
}

func (s *Server) listTransactions(c *gin.Context) {
	filter := parseTransactionFilter(c)
	page := parsePagination(c)

	var (
		txs   []*models.Transaction
		total int
		err   error
	)
	switch c.DefaultQuery("status", string(models.StatusUnmatched)) {
	case string(models.StatusUnmatched):
		txs, total, err = s.service.ListUnmatched(filter, page)
	default:
		filter.Status = models.ReconStatus(c.Query("status"))
		txs, total, err = s.service.ListMatched(filter, page)
	}
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": txs,
		"total":        total,
		"limit":        page.Limit,
		"offset":       page.Offset,
	})
}

func (s *Server) suggestMatches(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	potential, err := s.service.SuggestMatches(c.Param("id"), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, potential)
}

type createMatchRequest struct {
	TransactionIDs []string `json:"transactionIds" binding:"required"`
	CreatedBy      string   `json:"createdBy"`
	IdempotencyKey string   `json:"idempotencyKey"`
}

func (s *Server) createManualMatch(c *gin.Context) {
	var req createMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, apperrors.Validation(apperrors.CodeInvalidConfig,
			"invalid request body: %v", err))
		return
	}

	key := req.IdempotencyKey
	if key == "" {
		key = c.GetHeader("Idempotency-Key")
	}

	group, err := s.service.CreateManualMatch(req.TransactionIDs, req.CreatedBy, key)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, group)
}

func (s *Server) listMatches(c *gin.Context) {
	filter := store.GroupFilter{
		Status:   models.MatchStatus(c.Query("status")),
		Strategy: c.Query("strategy"),
	}
	page := parsePagination(c)

	groups, total, err := s.service.ListMatches(filter, page)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"matches": groups,
		"total":   total,
		"limit":   page.Limit,
		"offset":  page.Offset,
	})
}

func (s *Server) getMatch(c *gin.Context) {
	group, err := s.service.GetMatch(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

func (s *Server) sendToReview(c *gin.Context) {
	group, err := s.service.Lifecycle().SendToReview(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

type approveRequest struct {
	Approver string `json:"approver"`
}

func (s *Server) approveMatch(c *gin.Context) {
	var req approveRequest
	_ = c.ShouldBindJSON(&req)

	group, err := s.service.ApproveMatch(c.Param("id"), req.Approver)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

type rejectRequest struct {
	Rejecter string `json:"rejecter"`
	Reason   string `json:"reason"`
}

func (s *Server) rejectMatch(c *gin.Context) {
	var req rejectRequest
	_ = c.ShouldBindJSON(&req)

	group, err := s.service.RejectMatch(c.Param("id"), req.Rejecter, req.Reason)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

func (s *Server) unmatch(c *gin.Context) {
	if err := s.service.Unmatch(c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) runNWay(c *gin.Context) {
	var cfg recon.NWayConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		s.writeError(c, apperrors.Validation(apperrors.CodeInvalidConfig,
			"invalid request body: %v", err))
		return
	}

	report, err := s.service.RunNWayMatch(c.Request.Context(), cfg)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) listRules(c *gin.Context) {
	ruleList, err := s.service.ListRules()
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": ruleList, "total": len(ruleList)})
}

func (s *Server) getRule(c *gin.Context) {
	rule, err := s.service.GetRule(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (s *Server) listRuleApprovals(c *gin.Context) {
	approvals, err := s.service.ListRuleApprovals(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"approvals": approvals, "total": len(approvals)})
}

type submitApprovalRequest struct {
	RequestedBy string `json:"requestedBy"`
}

func (s *Server) submitRuleForApproval(c *gin.Context) {
	var req submitApprovalRequest
	_ = c.ShouldBindJSON(&req)

	approval, err := s.service.SubmitRuleForApproval(c.Param("id"), req.RequestedBy)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, approval)
}

type decideApprovalRequest struct {
	Approve   bool   `json:"approve"`
	DecidedBy string `json:"decidedBy"`
	Reason    string `json:"reason"`
}

func (s *Server) decideRuleApproval(c *gin.Context) {
	var req decideApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, apperrors.Validation(apperrors.CodeInvalidConfig,
			"invalid request body: %v", err))
		return
	}

	if err := s.service.DecideRuleApproval(c.Param("id"), req.Approve, req.DecidedBy, req.Reason); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getStatistics(c *gin.Context) {
	stats, err := s.service.GetStatistics()
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
