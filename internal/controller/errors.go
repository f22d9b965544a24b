package controller

import (
	"errors"
	"net/http"

	"coursemart_backend/internal/util"
	"coursemart_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var statusByError = []struct {
	err    error
	status int
}{
	{util.ErrSignatureInvalid, http.StatusBadRequest},
	{util.ErrInvalidInput, http.StatusBadRequest},
	{util.ErrPaymentMismatch, http.StatusBadRequest},
	{util.ErrFreeCourse, http.StatusBadRequest},
	{util.ErrCourseNotFound, http.StatusNotFound},
	{util.ErrStudentNotFound, http.StatusNotFound},
	{util.ErrQuizNotFound, http.StatusNotFound},
	{util.ErrEnrollmentNotFound, http.StatusNotFound},
	{util.ErrCertificateNotFound, http.StatusNotFound},
	{util.ErrNotEnrolled, http.StatusForbidden},
	{util.ErrPermissionDenied, http.StatusForbidden},
	{util.ErrPaymentReused, http.StatusConflict},
	{util.ErrAttemptExists, http.StatusConflict},
	{util.ErrAlreadyEnrolled, http.StatusConflict},
	{util.ErrGatewayRejected, http.StatusUnprocessableEntity},
}

// respondError 把服务层错误映射为 HTTP 响应，存储层错误只写日志不返回给客户端
func respondError(ctx *gin.Context, err error) {
	var eligErr *util.EligibilityError
	if errors.As(err, &eligErr) {
		data := gin.H{"attempted": eligErr.Attempted, "required": eligErr.Required}
		if errors.Is(err, util.ErrIneligible) {
			data["average"] = eligErr.Average
		}
		util.ErrorWithData(ctx, http.StatusBadRequest, eligErr.Reason.Error(), data)
		return
	}

	for _, m := range statusByError {
		if errors.Is(err, m.err) {
			util.Error(ctx, m.status, m.err.Error())
			return
		}
	}

	if util.IsTransient(err) {
		logger.Log.Warn("Transient failure",
			zap.String("path", ctx.FullPath()),
			zap.Error(err))
		util.ServiceUnavailable(ctx)
		return
	}

	util.LogInternalError(ctx, err)
}
