package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xrl111/smart-eparking-pi4/internal/api/middleware"
	"github.com/xrl111/smart-eparking-pi4/internal/domain"
)

type PricingRuleService interface {
	List(ctx context.Context) ([]domain.PricingRule, error)
	Get(ctx context.Context, id int) (*domain.PricingRule, error)
	Create(ctx context.Context, dto domain.PricingRuleDTO, actor domain.Actor) (*domain.PricingRule, error)
	Update(ctx context.Context, id int, dto domain.PricingRuleDTO, actor domain.Actor) (*domain.PricingRule, error)
	Delete(ctx context.Context, id int, actor domain.Actor) error
}

type PricingRuleHandler struct {
	pricing PricingRuleService
}

func NewPricingRuleHandler(ps PricingRuleService) *PricingRuleHandler {
	return &PricingRuleHandler{pricing: ps}
}

// GET /api/v1/pricing-rules
func (h *PricingRuleHandler) List(c *gin.Context) {
	rules, err := h.pricing.List(c.Request.Context())
	if err != nil {
		respondError(c, err, "Không thể lấy danh sách pricing rule")
		return
	}
	if rules == nil {
		rules = []domain.PricingRule{}
	}
	c.JSON(http.StatusOK, rules)
}

// GET /api/v1/pricing-rules/:id
func (h *PricingRuleHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	rule, err := h.pricing.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Không thể lấy pricing rule")
		return
	}
	c.JSON(http.StatusOK, rule)
}

// POST /api/v1/pricing-rules
func (h *PricingRuleHandler) Create(c *gin.Context) {
	var dto domain.PricingRuleDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Dữ liệu không hợp lệ: " + err.Error()})
		return
	}
	rule, err := h.pricing.Create(c.Request.Context(), dto, middleware.CurrentActor(c))
	if err != nil {
		respondError(c, err, "Không thể tạo pricing rule")
		return
	}
	c.JSON(http.StatusCreated, rule)
}

// PUT /api/v1/pricing-rules/:id
func (h *PricingRuleHandler) Update(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var dto domain.PricingRuleDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Dữ liệu không hợp lệ: " + err.Error()})
		return
	}
	rule, err := h.pricing.Update(c.Request.Context(), id, dto, middleware.CurrentActor(c))
	if err != nil {
		respondError(c, err, "Không thể cập nhật pricing rule")
		return
	}
	c.JSON(http.StatusOK, rule)
}

// DELETE /api/v1/pricing-rules/:id
func (h *PricingRuleHandler) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.pricing.Delete(c.Request.Context(), id, middleware.CurrentActor(c)); err != nil {
		respondError(c, err, "Không thể xóa pricing rule")
		return
	}
	c.Status(http.StatusNoContent)
}
