package controller

import (
	"coursemart_backend/internal/service"
	"coursemart_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type EnrollmentController struct {
	Service *service.EnrollmentService
}

func NewEnrollmentController(svc *service.EnrollmentService) *EnrollmentController {
	return &EnrollmentController{Service: svc}
}

// @Summary 获取报名记录
// @Tags 报名
// @Produce json
// @Security BearerAuth
// @Param courseId path string true "课程ID"
// @Param studentId path string true "学生ID"
// @Success 200 {object} util.Response{data=model.Enrollment}
// @Failure 404 {object} util.Response
// @Router /api/enrollments/{courseId}/{studentId} [get]
func (c *EnrollmentController) Get(ctx *gin.Context) {
	e, err := c.Service.GetEnrollment(ctx.Request.Context(), ctx.Param("studentId"), ctx.Param("courseId"))
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, e)
}

// @Summary 更新视频观看进度
// @Tags 报名
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param courseId path string true "课程ID"
// @Param studentId path string true "学生ID"
// @Param body body service.ProgressUpdate true "观看进度"
// @Success 200 {object} util.Response{data=model.Enrollment}
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/enrollments/{courseId}/{studentId}/progress [put]
func (c *EnrollmentController) SaveProgress(ctx *gin.Context) {
	var upd service.ProgressUpdate
	if err := ctx.ShouldBindJSON(&upd); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	upd.StudentID = ctx.Param("studentId")
	upd.CourseID = ctx.Param("courseId")

	e, err := c.Service.SaveProgress(ctx.Request.Context(), &upd)
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, e)
}
