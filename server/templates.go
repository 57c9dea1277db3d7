package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lvillar/docfill"
)

func (s *Server) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "no file provided")
		return
	}
	if err := docfill.ValidateName(fh.Filename); err != nil {
		s.fail(c, err)
		return
	}

	f, err := fh.Open()
	if err != nil {
		s.fail(c, fmt.Errorf("opening upload: %w", err))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		s.fail(c, fmt.Errorf("reading upload: %w", err))
		return
	}
	if err := s.templates.Save(fh.Filename, data); err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  fmt.Sprintf("%s template uploaded", docfill.KindOf(fh.Filename)),
		"filename": fh.Filename,
	})
}

func (s *Server) listTemplates(c *gin.Context) {
	names, err := s.templates.List()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "files": names})
}

func (s *Server) getZones(c *gin.Context) {
	name := c.Query("template")
	if name == "" {
		badRequest(c, "template parameter is required")
		return
	}
	set, _, err := s.templates.ZoneSet(name)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "zones": set.Zones})
}

// setBody is the body of the zone and variable set routes. The list is kept
// raw so a non-array value can be told apart from a missing one.
type setBody struct {
	TemplateName string          `json:"templateName"`
	Zones        json.RawMessage `json:"zones"`
	Variables    json.RawMessage `json:"variables"`
}

func decodeList[T any](raw json.RawMessage, what string) ([]T, error) {
	if len(raw) == 0 || raw[0] != '[' {
		return nil, docfill.Validationf("%s are required and must be an array", what)
	}
	var out []T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, docfill.Validationf("decoding %s: %v", what, err)
	}
	return out, nil
}

func (s *Server) saveZones(c *gin.Context) {
	var body setBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if body.TemplateName == "" {
		badRequest(c, "templateName is required")
		return
	}
	zones, err := decodeList[docfill.Zone](body.Zones, "zones")
	if err != nil {
		s.fail(c, err)
		return
	}
	for i := range zones {
		if zones[i].ID == "" {
			zones[i].ID = uuid.NewString()
		}
	}
	if err := s.templates.SaveZones(docfill.ZoneSet{TemplateName: body.TemplateName, Zones: zones}); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message":    "zones saved",
		"zonesCount": len(zones),
	})
}

func (s *Server) getVariables(c *gin.Context) {
	name := c.Query("template")
	if name == "" {
		badRequest(c, "template parameter is required")
		return
	}
	set, _, err := s.templates.VariableSet(name)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "variables": set.Variables})
}

func (s *Server) saveVariables(c *gin.Context) {
	var body setBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if body.TemplateName == "" {
		badRequest(c, "templateName is required")
		return
	}
	vars, err := decodeList[docfill.Variable](body.Variables, "variables")
	if err != nil {
		s.fail(c, err)
		return
	}
	for i := range vars {
		if vars[i].ID == "" {
			vars[i].ID = uuid.NewString()
		}
	}
	if err := s.templates.SaveVariables(docfill.VariableSet{TemplateName: body.TemplateName, Variables: vars}); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"message":        "variables saved",
		"variablesCount": len(vars),
	})
}

// document serves a stored template inline. The name is checked before the
// file system is touched.
func (s *Server) document(c *gin.Context) {
	// The wildcard captures nested paths so they are rejected here, not by the
	// router.
	name := strings.TrimPrefix(c.Param("filename"), "/")
	if err := docfill.ValidateName(name); err != nil {
		s.fail(c, err)
		return
	}
	data, err := s.templates.Read(name)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
	c.Data(http.StatusOK, docfill.ContentType(name), data)
}

func (s *Server) artifact(c *gin.Context) {
	if s.objects == nil {
		s.fail(c, docfill.NotFoundf("no object store configured"))
		return
	}
	key := c.Param("key")
	data, err := s.objects.Get(c.Request.Context(), key)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", key))
	c.Data(http.StatusOK, docfill.ContentType(key), data)
}
