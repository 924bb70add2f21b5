package handlers

import (
	"errors"
	"net/http"

	"gigchat/database/repository"
	"gigchat/models"
	"gigchat/services/workflow"
	"gigchat/utils"

	"github.com/gin-gonic/gin"
)

// JobHandler serves categorization, bidding, award, completion and
// cancellation endpoints.
type JobHandler struct {
	Workflow workflow.WorkflowService
	Jobs     repository.JobRepository
}

func NewJobHandler(wf workflow.WorkflowService, jobs repository.JobRepository) *JobHandler {
	return &JobHandler{Workflow: wf, Jobs: jobs}
}

// loadJob fetches the path's job and applies allowed to the caller.
func (h *JobHandler) loadJob(c *gin.Context, allowed func(job *models.Job, userID string) bool) (*models.Job, bool) {
	jobID := c.Param("jobID")
	job, err := h.Jobs.GetByID(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			utils.JSONError(c, http.StatusNotFound, workflow.ErrNotFound.Code, "job "+jobID+" not found", nil)
			return nil, false
		}
		respondError(c, err)
		return nil, false
	}
	if !allowed(job, currentUserID(c)) {
		utils.JSONError(c, http.StatusConflict, workflow.ErrNotOwner.Code, "You are not allowed to act on this job", nil)
		return nil, false
	}
	return job, true
}

func isParticipant(job *models.Job, userID string) bool {
	return job.CustomerID == userID || (job.WorkerID != "" && job.WorkerID == userID)
}

func isMatchedWorker(job *models.Job, userID string) bool {
	return job.WorkerID != "" && job.WorkerID == userID
}

// GetJobHandler shows the job to its participants and, while it is open, to workers.
func (h *JobHandler) GetJobHandler(c *gin.Context) {
	role := c.GetString("role")
	job, ok := h.loadJob(c, func(job *models.Job, userID string) bool {
		return isParticipant(job, userID) || (role == models.RoleWorker && job.Status == models.JobStatusPosted)
	})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *JobHandler) CategorizeHandler(c *gin.Context) {
	var req struct {
		SubcategoryID string `json:"subcategory_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	job, err := h.Workflow.SubmitCategorization(c.Request.Context(), c.Param("jobID"), currentUserID(c), req.SubcategoryID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *JobHandler) RecordViewHandler(c *gin.Context) {
	already, err := h.Workflow.RecordJobView(c.Request.Context(), c.Param("jobID"), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "already_viewed": already})
}

func (h *JobHandler) SubmitBidHandler(c *gin.Context) {
	var req struct {
		Amount        int64 `json:"amount" binding:"required,gt=0"`
		EquipmentCost int64 `json:"equipment_cost" binding:"gte=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	breakdown, err := h.Workflow.SubmitBid(c.Request.Context(), workflow.BidInput{
		JobID:         c.Param("jobID"),
		WorkerID:      currentUserID(c),
		Amount:        req.Amount,
		EquipmentCost: req.EquipmentCost,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, breakdown)
}

func (h *JobHandler) ListBidsHandler(c *gin.Context) {
	bids, err := h.Workflow.ListJobBids(c.Request.Context(), c.Param("jobID"), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bids": bids})
}

// ValidateBidAmountHandler previews the minimum for a subcategory without placing a bid.
func (h *JobHandler) ValidateBidAmountHandler(c *gin.Context) {
	var req struct {
		SubcategoryID string `json:"subcategory_id" binding:"required"`
		Amount        int64  `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	check, err := h.Workflow.ValidateBidAmount(c.Request.Context(), req.SubcategoryID, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, check)
}

func (h *JobHandler) AcceptBidHandler(c *gin.Context) {
	job, err := h.Workflow.AcceptBid(c.Request.Context(), c.Param("bidID"), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *JobHandler) RejectBidHandler(c *gin.Context) {
	bid, err := h.Workflow.RejectBid(c.Request.Context(), c.Param("bidID"), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bid)
}

// GenerateCompletionCodeHandler issues a new completion code. The code is
// delivered to the customer in the chat, never in this response.
func (h *JobHandler) GenerateCompletionCodeHandler(c *gin.Context) {
	job, ok := h.loadJob(c, isMatchedWorker)
	if !ok {
		return
	}
	if _, err := h.Workflow.GenerateCompletionCode(c.Request.Context(), job.ID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true})
}

type codeRequest struct {
	Code string `json:"code" binding:"required,max=32"`
}

func (h *JobHandler) ValidateCompletionCodeHandler(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	job, ok := h.loadJob(c, isMatchedWorker)
	if !ok {
		return
	}
	valid, err := h.Workflow.ValidateCompletionCode(c.Request.Context(), job.ID, req.Code)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "is_valid": valid})
}

func (h *JobHandler) ValidateOnboardingCodeHandler(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	job, ok := h.loadJob(c, isMatchedWorker)
	if !ok {
		return
	}
	valid, err := h.Workflow.ValidateOnboardingCode(c.Request.Context(), job.ID, req.Code)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "is_valid": valid})
}

func (h *JobHandler) OnboardingStatusHandler(c *gin.Context) {
	job, ok := h.loadJob(c, isParticipant)
	if !ok {
		return
	}
	status, err := h.Workflow.GetOnboardingStatus(c.Request.Context(), job.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *JobHandler) SubmitRatingHandler(c *gin.Context) {
	var req struct {
		RatedID    string            `json:"rated_id" binding:"required"`
		Rating     int               `json:"rating" binding:"required,min=1,max=5"`
		ReviewText string            `json:"review_text" binding:"max=1000"`
		RatingType models.RatingType `json:"rating_type" binding:"required,oneof=customer_to_worker worker_to_customer"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	rating, err := h.Workflow.SubmitRating(c.Request.Context(), workflow.RatingInput{
		JobID:      c.Param("jobID"),
		RaterID:    currentUserID(c),
		RatedID:    req.RatedID,
		Rating:     req.Rating,
		ReviewText: req.ReviewText,
		RatingType: req.RatingType,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rating)
}

// CancelJobHandler cancels the job. By default the chat is cleared back to a
// fresh service chat; clear_chat=false keeps the history.
func (h *JobHandler) CancelJobHandler(c *gin.Context) {
	var req struct {
		Phase     *int  `json:"phase" binding:"required,gte=0"`
		ClearChat *bool `json:"clear_chat"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	ctx := c.Request.Context()
	jobID := c.Param("jobID")
	if req.ClearChat == nil || *req.ClearChat {
		res, err := h.Workflow.CancelJobAndClearChat(ctx, jobID, currentUserID(c), *req.Phase)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
		return
	}
	job, err := h.Workflow.MarkJobAsCancelled(ctx, jobID, currentUserID(c), *req.Phase)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}
