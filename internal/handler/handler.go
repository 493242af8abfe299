package handler

import (
	"context"
	"errors"
	"strconv"

	"propmarket/internal/config"
	"propmarket/internal/model"
	"propmarket/internal/repository"
	"propmarket/internal/service"
	"propmarket/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	accountService *service.AccountService
	creditService  *service.CreditService
	listingService *service.ListingService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	return &Handler{
		accountService: service.NewAccountService(db, cfg),
		creditService:  service.NewCreditService(db, cfg),
		listingService: service.NewListingService(db, rdb, cfg),
	}
}

// writeError 业务错误统一映射为响应码
func writeError(c *gin.Context, err error) {
	var validationErr *model.ValidationError
	switch {
	case errors.As(err, &validationErr):
		response.BusinessError(c, response.CodeValidationFailed, validationErr.Error())
	case errors.Is(err, repository.ErrInsufficientBalance):
		response.BusinessError(c, response.CodeInsufficientBalance, err.Error())
	case errors.Is(err, repository.ErrInsufficientListingCredits):
		response.BusinessError(c, response.CodeInsufficientListingCredits, err.Error())
	case errors.Is(err, repository.ErrAccountNotFound):
		response.BusinessError(c, response.CodeAccountNotFound, err.Error())
	case errors.Is(err, repository.ErrListingNotFound):
		response.BusinessError(c, response.CodeListingNotFound, err.Error())
	case errors.Is(err, repository.ErrEmailTaken):
		response.BusinessError(c, response.CodeEmailTaken, err.Error())
	case errors.Is(err, repository.ErrOptimisticLock):
		response.BusinessError(c, response.CodeConflict, err.Error())
	case errors.Is(err, service.ErrNotOwner), errors.Is(err, service.ErrPermissionDenied), errors.Is(err, service.ErrNotAgent):
		response.BusinessError(c, response.CodeNotOwner, err.Error())
	case errors.Is(err, service.ErrInvalidTransition):
		response.BusinessError(c, response.CodeInvalidTransition, err.Error())
	case errors.Is(err, service.ErrListingArchived):
		response.BusinessError(c, response.CodeListingArchived, err.Error())
	case errors.Is(err, model.ErrImageNotInList):
		response.BusinessError(c, response.CodeValidationFailed, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

func parseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, name+" 参数错误")
		return 0, false
	}
	return id, true
}

// ============================================================
// 账户相关接口
// ============================================================

// RegisterRequest 注册请求
type RegisterRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role" binding:"required"`
}

// Register 注册账户
// POST /api/v1/accounts/register
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	account, err := h.accountService.Register(c.Request.Context(), req.Email, req.Role)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, account)
}

// GetMyAccount 查询当前账户
// GET /api/v1/account
func (h *Handler) GetMyAccount(c *gin.Context) {
	accountID, _ := currentActor(c)

	account, err := h.accountService.GetAccount(c.Request.Context(), accountID)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, account)
}

// ============================================================
// 管理员接口
// ============================================================

// ListAccounts 全部账户列表（按注册时间倒序）
// GET /api/v1/admin/accounts
func (h *Handler) ListAccounts(c *gin.Context) {
	accounts, err := h.accountService.ListAccounts(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":  accounts,
		"total": len(accounts),
	})
}

// AdjustCreditsRequest 积分调整请求
type AdjustCreditsRequest struct {
	AccountID int64 `json:"account_id" binding:"required"`
	Delta     int64 `json:"delta" binding:"required"` // 正数发放，负数扣减
}

// AdjustCredits 管理员调整通用积分
// POST /api/v1/admin/credits/adjust
func (h *Handler) AdjustCredits(c *gin.Context) {
	var req AdjustCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	adminID, _ := currentActor(c)
	balance, err := h.creditService.AdjustCredits(c.Request.Context(), req.AccountID, req.Delta, strconv.FormatInt(adminID, 10))
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"account_id": req.AccountID,
		"balance":    balance,
	})
}

// AdjustListingCredits 管理员调整发布积分
// POST /api/v1/admin/listing-credits/adjust
func (h *Handler) AdjustListingCredits(c *gin.Context) {
	var req AdjustCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	adminID, _ := currentActor(c)
	balance, err := h.creditService.AdjustListingCredits(c.Request.Context(), req.AccountID, req.Delta, strconv.FormatInt(adminID, 10))
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"account_id":      req.AccountID,
		"listing_credits": balance,
	})
}

// ListCreditEntries 账户积分流水
// GET /api/v1/admin/accounts/:id/entries?page=1&page_size=10
func (h *Handler) ListCreditEntries(c *gin.Context) {
	accountID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	page, pageSize := pagination(c)
	entries, total, err := h.accountService.ListCreditEntries(c.Request.Context(), accountID, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      entries,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ListPendingListings 待审核房源队列
// GET /api/v1/admin/listings/pending
func (h *Handler) ListPendingListings(c *gin.Context) {
	page, pageSize := pagination(c)
	listings, total, err := h.listingService.ListPending(c.Request.Context(), page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      listings,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ApproveListing 审核通过
// POST /api/v1/admin/listings/:id/approve
func (h *Handler) ApproveListing(c *gin.Context) {
	h.transition(c, model.ListingStatusApproved)
}

// RejectListing 审核驳回
// POST /api/v1/admin/listings/:id/reject
func (h *Handler) RejectListing(c *gin.Context) {
	h.transition(c, model.ListingStatusRejected)
}

// ============================================================
// 经纪人接口
// ============================================================

// CreateListing 发布房源（扣一枚发布积分）
// POST /api/v1/agent/listings
func (h *Handler) CreateListing(c *gin.Context) {
	var attrs model.ListingAttributes
	if err := c.ShouldBindJSON(&attrs); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	agentID, _ := currentActor(c)
	listing, err := h.listingService.CreateListing(c.Request.Context(), agentID, &attrs)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, listing)
}

// UpdateListing 更新房源
// PUT /api/v1/agent/listings/:id
func (h *Handler) UpdateListing(c *gin.Context) {
	listingID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var attrs model.ListingAttributes
	if err := c.ShouldBindJSON(&attrs); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	agentID, _ := currentActor(c)
	listing, err := h.listingService.UpdateListing(c.Request.Context(), listingID, agentID, &attrs)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, listing)
}

// ListMyListings 经纪人名下房源
// GET /api/v1/agent/listings
func (h *Handler) ListMyListings(c *gin.Context) {
	agentID, _ := currentActor(c)
	page, pageSize := pagination(c)

	listings, total, err := h.listingService.ListByAgent(c.Request.Context(), agentID, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      listings,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ResubmitListing 驳回后重新提交审核
// POST /api/v1/agent/listings/:id/resubmit
func (h *Handler) ResubmitListing(c *gin.Context) {
	h.transition(c, model.ListingStatusPending)
}

// ArchiveListing 下架房源（终态）
// POST /api/v1/agent/listings/:id/archive
// POST /api/v1/admin/listings/:id/archive
func (h *Handler) ArchiveListing(c *gin.Context) {
	h.transition(c, model.ListingStatusArchived)
}

func (h *Handler) transition(c *gin.Context, targetStatus string) {
	listingID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	actorID, actorRole := currentActor(c)
	listing, err := h.listingService.TransitionStatus(c.Request.Context(), listingID, actorID, actorRole, targetStatus)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, listing)
}

// ImageRequest 图片操作请求
type ImageRequest struct {
	URL string `json:"url" binding:"required"`
}

// AddImage 追加图片
// POST /api/v1/agent/listings/:id/images
func (h *Handler) AddImage(c *gin.Context) {
	h.imageOp(c, h.listingService.AddImage)
}

// RemoveImage 移除图片
// DELETE /api/v1/agent/listings/:id/images
func (h *Handler) RemoveImage(c *gin.Context) {
	h.imageOp(c, h.listingService.RemoveImage)
}

// SetMainImage 指定主图
// PUT /api/v1/agent/listings/:id/main-image
func (h *Handler) SetMainImage(c *gin.Context) {
	h.imageOp(c, h.listingService.SetMainImage)
}

func (h *Handler) imageOp(c *gin.Context, op func(ctx context.Context, listingID, agentID int64, url string) (*model.Listing, error)) {
	listingID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req ImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	agentID, _ := currentActor(c)
	listing, err := op(c.Request.Context(), listingID, agentID, req.URL)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, listing)
}

// ToggleAmenityRequest 配套设施开关请求
type ToggleAmenityRequest struct {
	Label string `json:"label" binding:"required"`
}

// ToggleAmenity 配套设施开关
// POST /api/v1/agent/listings/:id/amenities/toggle
func (h *Handler) ToggleAmenity(c *gin.Context) {
	listingID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req ToggleAmenityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	agentID, _ := currentActor(c)
	listing, err := h.listingService.ToggleAmenity(c.Request.Context(), listingID, agentID, req.Label)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, listing)
}

// ============================================================
// 公开接口
// ============================================================

// ListApprovedListings 已上架房源列表
// GET /api/v1/listings?page=1&page_size=10
func (h *Handler) ListApprovedListings(c *gin.Context) {
	page, pageSize := pagination(c)

	listings, total, err := h.listingService.ListApproved(c.Request.Context(), page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      listings,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetListing 房源详情（已上架的房源记一次浏览）
// GET /api/v1/listings/:id
func (h *Handler) GetListing(c *gin.Context) {
	listingID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	listing, err := h.listingService.GetListing(c.Request.Context(), listingID)
	if err != nil {
		writeError(c, err)
		return
	}

	if listing.Status == model.ListingStatusApproved {
		h.listingService.RecordView(c.Request.Context(), listingID)
	}

	response.Success(c, listing)
}

func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}
	return page, pageSize
}
