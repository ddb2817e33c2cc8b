package handler

import (
	"github.com/d60-Lab/seckill-go/internal/service"
)

// Handler 聚合所有 HTTP 处理器依赖
type Handler struct {
	seckillService service.SeckillService
}

func New(seckillService service.SeckillService) *Handler {
	return &Handler{seckillService: seckillService}
}
