package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/seckill-go/internal/api/middleware"
	"github.com/d60-Lab/seckill-go/internal/model"
	"github.com/d60-Lab/seckill-go/internal/service"
	"github.com/d60-Lab/seckill-go/pkg/response"
)

type createCampaignRequest struct {
	Title     string `json:"title" binding:"required"`
	Stock     int64  `json:"stock" binding:"required,gt=0"`
	BeginTime int64  `json:"begin_time" binding:"required"` // 毫秒时间戳
	EndTime   int64  `json:"end_time" binding:"required"`   // 毫秒时间戳
}

// CreateCampaign 创建秒杀活动
// @Summary 创建秒杀活动
// @Tags 秒杀
// @Accept json
// @Produce json
// @Param request body createCampaignRequest true "活动信息"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/vouchers [post]
func (h *Handler) CreateCampaign(c *gin.Context) {
	var req createCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	voucher := &model.SeckillVoucher{
		Title:     req.Title,
		Stock:     req.Stock,
		BeginTime: time.UnixMilli(req.BeginTime),
		EndTime:   time.UnixMilli(req.EndTime),
	}
	if err := h.seckillService.CreateCampaign(c.Request.Context(), voucher); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	response.Success(c, gin.H{"voucher_id": voucher.VoucherID})
}

// GetCampaign 查询秒杀活动
// @Summary 查询秒杀活动
// @Tags 秒杀
// @Param id path int true "券ID"
// @Success 200 {object} response.Response{data=model.SeckillVoucher}
// @Failure 404 {object} response.Response
// @Router /api/v1/vouchers/{id} [get]
func (h *Handler) GetCampaign(c *gin.Context) {
	voucherID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid voucher id")
		return
	}
	voucher, err := h.seckillService.GetCampaign(c.Request.Context(), voucherID)
	if err != nil {
		if errors.Is(err, service.ErrCampaignNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Success(c, voucher)
}

// Seckill 秒杀下单
// @Summary 秒杀下单
// @Tags 秒杀
// @Param id path int true "券ID"
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /api/v1/vouchers/{id}/seckill [post]
func (h *Handler) Seckill(c *gin.Context) {
	voucherID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid voucher id")
		return
	}
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "not authenticated")
		return
	}

	orderID, err := h.seckillService.PlaceOrder(c.Request.Context(), voucherID, userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCampaignNotFound):
			response.NotFound(c, err.Error())
		case errors.Is(err, service.ErrCampaignNotActive),
			errors.Is(err, service.ErrInsufficientStock),
			errors.Is(err, service.ErrDuplicatePurchase):
			response.BadRequest(c, err.Error())
		default:
			response.InternalError(c, err)
		}
		return
	}
	response.Success(c, gin.H{"order_id": orderID})
}

// GetOrder 查询订单
// @Summary 查询订单
// @Tags 秒杀
// @Param id path int true "订单ID"
// @Success 200 {object} response.Response{data=model.VoucherOrder}
// @Failure 404 {object} response.Response
// @Router /api/v1/orders/{id} [get]
func (h *Handler) GetOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid order id")
		return
	}
	order, err := h.seckillService.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if order == nil {
		// 可能尚未落库，也可能不存在
		response.NotFound(c, "order not found")
		return
	}
	response.Success(c, order)
}
