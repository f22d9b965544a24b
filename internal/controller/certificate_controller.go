package controller

import (
	"coursemart_backend/internal/service"
	"coursemart_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type CertificateController struct {
	Service *service.CertificateService
}

func NewCertificateController(svc *service.CertificateService) *CertificateController {
	return &CertificateController{Service: svc}
}

// @Summary 签发课程证书
// @Description 已有证书时原样返回；平均分不足或测验未完成时返回 400
// @Tags 证书
// @Produce json
// @Security BearerAuth
// @Param courseId path string true "课程ID"
// @Param studentId path string true "学生ID"
// @Success 200 {object} util.Response{data=model.Certificate} "已存在"
// @Success 201 {object} util.Response{data=model.Certificate} "新签发"
// @Failure 400 {object} util.Response
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Failure 503 {object} util.Response
// @Router /api/certificates/issue/{courseId}/{studentId} [post]
func (c *CertificateController) Issue(ctx *gin.Context) {
	cert, created, err := c.Service.Issue(ctx.Request.Context(), ctx.Param("studentId"), ctx.Param("courseId"))
	if err != nil {
		respondError(ctx, err)
		return
	}

	if created {
		util.Created(ctx, cert)
		return
	}
	util.Success(ctx, cert)
}

// @Summary 查询证书资格
// @Tags 证书
// @Produce json
// @Security BearerAuth
// @Param courseId path string true "课程ID"
// @Param studentId path string true "学生ID"
// @Success 200 {object} util.Response{data=service.Eligibility}
// @Failure 404 {object} util.Response
// @Router /api/certificates/eligibility/{courseId}/{studentId} [get]
func (c *CertificateController) Eligibility(ctx *gin.Context) {
	elig, err := c.Service.CheckEligibility(ctx.Request.Context(), ctx.Param("studentId"), ctx.Param("courseId"))
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, elig)
}

// @Summary 获取课程证书
// @Tags 证书
// @Produce json
// @Security BearerAuth
// @Param courseId path string true "课程ID"
// @Param studentId path string true "学生ID"
// @Success 200 {object} util.Response{data=model.Certificate}
// @Failure 404 {object} util.Response
// @Router /api/certificates/{courseId}/{studentId} [get]
func (c *CertificateController) Get(ctx *gin.Context) {
	cert, err := c.Service.Get(ctx.Request.Context(), ctx.Param("studentId"), ctx.Param("courseId"))
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, cert)
}

// @Summary 学生的全部证书
// @Tags 证书
// @Produce json
// @Security BearerAuth
// @Param studentId path string true "学生ID"
// @Success 200 {object} util.Response{data=[]model.Certificate}
// @Failure 404 {object} util.Response
// @Router /api/students/{studentId}/certificates [get]
func (c *CertificateController) ListByStudent(ctx *gin.Context) {
	certs, err := c.Service.ListByStudent(ctx.Request.Context(), ctx.Param("studentId"))
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, certs)
}
