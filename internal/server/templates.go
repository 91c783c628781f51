package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	templatedomain "github.com/smallbiznis/songgift/internal/prompttemplate/domain"
)

func templateTypeParam(c *gin.Context) (templatedomain.Type, error) {
	t := templatedomain.Type(strings.TrimSpace(c.Param("type")))
	if !t.Valid() {
		return "", templatedomain.ErrInvalidType
	}
	return t, nil
}

func (s *Server) ListTemplateVersions(c *gin.Context) {
	t, err := templateTypeParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	versions, err := s.templateSvc.Versions(c.Request.Context(), t)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": versions})
}

func (s *Server) PublishTemplate(c *gin.Context) {
	t, err := templateTypeParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req templatedomain.PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Type = t

	tmpl, err := s.templateSvc.Publish(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": tmpl})
}
