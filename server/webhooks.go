package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lvillar/docfill"
	"github.com/lvillar/docfill/fill"
	"go.uber.org/zap"
)

// Response headers carrying the fill report counts.
const (
	headerFilled  = "X-Fields-Filled"
	headerSkipped = "X-Fields-Skipped"
)

type fillFunc func(context.Context, fill.Request) (*fill.Artifact, error)

func (s *Server) bindFill(c *gin.Context) (fill.Request, bool) {
	var req fill.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		if errors.Is(err, docfill.ErrValidation) {
			s.fail(c, err)
		} else {
			badRequest(c, "invalid request body")
		}
		return req, false
	}
	return req, true
}

// serveFill runs fn and sends the artifact as an attachment.
func (s *Server) serveFill(c *gin.Context, fn fillFunc) {
	req, ok := s.bindFill(c)
	if !ok {
		return
	}
	a, err := fn(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	sendAttachment(c, a)
}

func sendAttachment(c *gin.Context, a *fill.Artifact) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.FileName))
	c.Header(headerFilled, strconv.Itoa(len(a.Report.Filled)))
	c.Header(headerSkipped, strconv.Itoa(len(a.Report.Skipped)))
	c.Data(http.StatusOK, a.ContentType, a.Data)
}

func (s *Server) formFields(c *gin.Context) {
	name := c.Query("template")
	if name == "" {
		badRequest(c, "template parameter is required")
		return
	}
	fields, err := s.fills.FormFields(name)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "template": name, "fields": fields})
}

func (s *Server) fillPDF(c *gin.Context)       { s.serveFill(c, s.fills.FillForm) }
func (s *Server) fillPDFCustom(c *gin.Context) { s.serveFill(c, s.fills.FillZones) }
func (s *Server) fillHTML(c *gin.Context)      { s.serveFill(c, s.fills.FillHTML) }
func (s *Server) fillHTMLPDF(c *gin.Context)   { s.serveFill(c, s.fills.FillHTMLToPDF) }
func (s *Server) fillHTMLAuto(c *gin.Context)  { s.serveFill(c, s.fills.FillHTMLAuto) }

// fillHTMLAutoUpload publishes the PDF and answers with its URL. When the
// upload fails the PDF itself is returned instead.
func (s *Server) fillHTMLAutoUpload(c *gin.Context) {
	req, ok := s.bindFill(c)
	if !ok {
		return
	}
	a, err := s.fills.FillHTMLAuto(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}

	if err := s.fills.Publish(c.Request.Context(), a); err != nil {
		s.log.Warn("upload failed, returning the PDF directly",
			zap.String("template", req.TemplateName),
			zap.Error(err))
		sendAttachment(c, a)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"pdfUrl":   a.URL,
		"fileName": a.FileName,
	})
}
