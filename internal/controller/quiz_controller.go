package controller

import (
	"strconv"

	"coursemart_backend/internal/middleware"
	"coursemart_backend/internal/service"
	"coursemart_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type QuizController struct {
	Service *service.QuizService
}

func NewQuizController(svc *service.QuizService) *QuizController {
	return &QuizController{Service: svc}
}

// @Summary 提交测验作答
// @Description 每个学生每个测验只能提交一次
// @Tags 测验
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param quizId path int true "测验ID"
// @Param body body service.QuizSubmission true "作答，key 为题目ID"
// @Success 201 {object} util.Response{data=model.QuizAttempt}
// @Failure 400 {object} util.Response
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/quizzes/{quizId}/attempts [post]
func (c *QuizController) SubmitAttempt(ctx *gin.Context) {
	quizID, err := strconv.ParseUint(ctx.Param("quizId"), 10, 64)
	if err != nil {
		util.BadRequest(ctx, "invalid quiz id")
		return
	}

	var sub service.QuizSubmission
	if err := ctx.ShouldBindJSON(&sub); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	sub.QuizID = uint(quizID)
	if !middleware.CanActFor(ctx, sub.StudentID) {
		respondError(ctx, util.ErrPermissionDenied)
		return
	}

	attempt, err := c.Service.SubmitAttempt(ctx.Request.Context(), &sub)
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Created(ctx, attempt)
}
