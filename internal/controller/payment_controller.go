package controller

import (
	"encoding/json"

	"coursemart_backend/internal/middleware"
	"coursemart_backend/internal/service"
	"coursemart_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type PaymentController struct {
	Enrollments *service.EnrollmentService
	Events      *service.PaymentEventService
}

func NewPaymentController(enrollments *service.EnrollmentService, events *service.PaymentEventService) *PaymentController {
	return &PaymentController{Enrollments: enrollments, Events: events}
}

// @Summary 创建支付订单
// @Tags 支付
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.CreateOrderCommand true "课程与学生"
// @Success 201 {object} util.Response{data=service.OrderResult}
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/payments/orders [post]
func (c *PaymentController) CreateOrder(ctx *gin.Context) {
	var cmd service.CreateOrderCommand
	if err := ctx.ShouldBindJSON(&cmd); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if !middleware.CanActFor(ctx, cmd.StudentID) {
		respondError(ctx, util.ErrPermissionDenied)
		return
	}

	order, err := c.Enrollments.CreateOrder(ctx.Request.Context(), &cmd)
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Created(ctx, order)
}

// @Summary 支付成功后校验签名并完成报名
// @Description 重复提交同一支付返回已存在的报名记录
// @Tags 支付
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.PaymentCallback true "支付回调"
// @Success 200 {object} util.Response{data=model.Enrollment} "已报名"
// @Success 201 {object} util.Response{data=model.Enrollment} "新报名"
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Failure 409 {object} util.Response
// @Failure 503 {object} util.Response
// @Router /api/payments/verify [post]
func (c *PaymentController) Verify(ctx *gin.Context) {
	var cb service.PaymentCallback
	if err := ctx.ShouldBindJSON(&cb); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if cb.StudentID != "" && !middleware.CanActFor(ctx, cb.StudentID) {
		respondError(ctx, util.ErrPermissionDenied)
		return
	}

	e, created, err := c.Enrollments.Commit(ctx.Request.Context(), &cb)
	if err != nil {
		respondError(ctx, err)
		return
	}

	if created {
		util.Created(ctx, e)
		return
	}
	util.Success(ctx, e)
}

// @Summary 支付网关回调
// @Description 由签名认证，每次投递都会记录到支付事件日志
// @Tags 支付
// @Accept json
// @Produce json
// @Param body body service.PaymentCallback true "支付回调"
// @Success 200 {object} util.Response{data=model.Enrollment}
// @Success 201 {object} util.Response{data=model.Enrollment}
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Failure 503 {object} util.Response
// @Router /api/payments/webhook [post]
func (c *PaymentController) Webhook(ctx *gin.Context) {
	payload, err := ctx.GetRawData()
	if err != nil {
		util.BadRequest(ctx, "unreadable body")
		return
	}

	var cb service.PaymentCallback
	if err := json.Unmarshal(payload, &cb); err != nil {
		util.BadRequest(ctx, "invalid JSON body")
		return
	}

	e, created, err := c.Events.HandleWebhook(ctx.Request.Context(), payload, &cb)
	if err != nil {
		respondError(ctx, err)
		return
	}

	if created {
		util.Created(ctx, e)
		return
	}
	util.Success(ctx, e)
}

// @Summary 手动重放失败的支付回调
// @Description 仅管理员，立即执行一轮补偿
// @Tags 支付
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response
// @Failure 403 {object} util.Response
// @Failure 503 {object} util.Response
// @Router /api/admin/payments/reconcile [post]
func (c *PaymentController) Reconcile(ctx *gin.Context) {
	n, err := c.Events.RetryFailed(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"processed": n})
}
