package server

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v5"

	"example.com/nitfgate/internal/common"
	"example.com/nitfgate/internal/nitf"
	"example.com/nitfgate/internal/report"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeError(c *echo.Context, status int, msg string) error {
	return c.JSON(status, errorBody{Error: msg})
}

// statusFor maps core errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case nitf.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, nitf.ErrMalformedField),
		errors.Is(err, nitf.ErrFieldOverflow),
		errors.Is(err, nitf.ErrUnsupportedVersion):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeCoreError(c *echo.Context, err error) error {
	return writeError(c, statusFor(err), err.Error())
}

func (s *Server) lookup(c *echo.Context, param string) (Container, error) {
	id := c.Param(param)
	ct, ok := s.containers.Get(id)
	if !ok {
		return Container{}, fmt.Errorf("container %q not found", id)
	}
	return ct, nil
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":     "ok",
		"containers": len(s.containers.List()),
	})
}

type containerResponse struct {
	Container Container      `json:"container"`
	Problems  []nitf.Problem `json:"problems"`
}

func (s *Server) handleUpload(c *echo.Context) error {
	name := strings.TrimSpace(c.QueryParam("name"))
	if name == "" {
		name = "upload.ntf"
	}
	body := http.MaxBytesReader(c.Response(), c.Request().Body, s.maxUpload)
	ct, problems, err := s.ingest(body, name, "upload")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return writeError(c, http.StatusRequestEntityTooLarge, err.Error())
		}
		status := statusFor(err)
		if status == http.StatusInternalServerError || status == http.StatusNotFound {
			status = http.StatusBadRequest
		}
		return writeError(c, status, fmt.Sprintf("reject %s: %v", name, err))
	}
	return c.JSON(http.StatusCreated, containerResponse{Container: ct, Problems: emptyProblems(problems)})
}

func (s *Server) handleList(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"containers": s.containers.List()})
}

func (s *Server) handleGet(c *echo.Context) error {
	ct, err := s.lookup(c, "id")
	if err != nil {
		return writeError(c, http.StatusNotFound, err.Error())
	}
	problems, err := s.check(ct)
	if err != nil {
		return writeCoreError(c, err)
	}
	return c.JSON(http.StatusOK, containerResponse{Container: ct, Problems: emptyProblems(problems)})
}

func (s *Server) handleLayout(c *echo.Context) error {
	ct, err := s.lookup(c, "id")
	if err != nil {
		return writeError(c, http.StatusNotFound, err.Error())
	}
	store, closeFn, err := s.openStore(ct)
	if err != nil {
		return writeCoreError(c, err)
	}
	defer closeFn()
	layout, err := nitf.Load(store)
	if err != nil {
		return writeCoreError(c, err)
	}
	return c.JSON(http.StatusOK, layout)
}

type fieldResponse struct {
	Field  string `json:"field"`
	Offset int64  `json:"offset"`
	Width  int64  `json:"width"`
	Hex    string `json:"hex"`
	Text   string `json:"text"`
}

func (s *Server) handleField(c *echo.Context) error {
	ct, err := s.lookup(c, "id")
	if err != nil {
		return writeError(c, http.StatusNotFound, err.Error())
	}
	field, err := nitf.ParseField(c.Param("field"))
	if err != nil {
		return writeError(c, http.StatusBadRequest, err.Error())
	}
	store, closeFn, err := s.openStore(ct)
	if err != nil {
		return writeCoreError(c, err)
	}
	defer closeFn()
	off, width, err := nitf.Span(store, field)
	if err != nil {
		return writeCoreError(c, err)
	}
	raw := make([]byte, width)
	if _, err := store.ReadAt(raw, off); err != nil {
		return writeCoreError(c, fmt.Errorf("read %s: %w", field, err))
	}
	text, err := nitf.ReadText(store, field)
	if err != nil {
		return writeCoreError(c, err)
	}
	return c.JSON(http.StatusOK, fieldResponse{
		Field:  field.String(),
		Offset: off,
		Width:  width,
		Hex:    hex.EncodeToString(raw),
		Text:   text,
	})
}

func (s *Server) handleElements(c *echo.Context) error {
	ct, err := s.lookup(c, "id")
	if err != nil {
		return writeError(c, http.StatusNotFound, err.Error())
	}
	kind, err := nitf.ParseSegmentKind(c.Param("kind"))
	if err != nil {
		return writeError(c, http.StatusBadRequest, err.Error())
	}
	store, closeFn, err := s.openStore(ct)
	if err != nil {
		return writeCoreError(c, err)
	}
	defer closeFn()
	elements, err := nitf.Elements(store, kind)
	if err != nil {
		return writeCoreError(c, err)
	}
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "application/x-ndjson")
	res.WriteHeader(http.StatusOK)
	w := NewNDJSONWriter(res)
	for _, el := range elements {
		if err := w.WriteObject(el); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) handleElement(c *echo.Context) error {
	ct, err := s.lookup(c, "id")
	if err != nil {
		return writeError(c, http.StatusNotFound, err.Error())
	}
	kind, err := nitf.ParseSegmentKind(c.Param("kind"))
	if err != nil {
		return writeError(c, http.StatusBadRequest, err.Error())
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return writeError(c, http.StatusBadRequest, fmt.Sprintf("invalid index %q", c.Param("index")))
	}
	mode := nitf.DefaultMode(kind)
	if v := c.QueryParam("subheader"); v != "" {
		with, err := strconv.ParseBool(v)
		if err != nil {
			return writeError(c, http.StatusBadRequest, fmt.Sprintf("invalid subheader flag %q", v))
		}
		mode = nitf.DataOnly
		if with {
			mode = nitf.WithSubheader
		}
	}
	store, closeFn, err := s.openStore(ct)
	if err != nil {
		return writeCoreError(c, err)
	}
	defer closeFn()
	data, err := nitf.ExtractElement(store, kind, index, mode)
	if err != nil {
		return writeCoreError(c, err)
	}
	c.Response().Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", nitf.ElementFileName(kind.String(), kind, index)))
	c.Response().Header().Set("X-Element-CRC32", fmt.Sprintf("%08x", common.CRC32(data)))
	return c.Blob(http.StatusOK, "application/octet-stream", data)
}

type spliceResponse struct {
	Container Container         `json:"container"`
	Kind      string            `json:"kind"`
	Result    nitf.SpliceResult `json:"result"`
}

func (s *Server) handleSplice(c *echo.Context) error {
	host, err := s.lookup(c, "id")
	if err != nil {
		return writeError(c, http.StatusNotFound, err.Error())
	}
	kind, err := nitf.ParseSegmentKind(c.Param("kind"))
	if err != nil {
		return writeError(c, http.StatusBadRequest, err.Error())
	}
	donorID := c.QueryParam("donor")
	if donorID == "" {
		return writeError(c, http.StatusBadRequest, "donor query parameter is required")
	}
	donor, ok := s.containers.Get(donorID)
	if !ok {
		return writeError(c, http.StatusNotFound, fmt.Sprintf("container %q not found", donorID))
	}
	out, res, err := s.splice(kind, host, donor)
	if err != nil {
		return writeCoreError(c, err)
	}
	return c.JSON(http.StatusCreated, spliceResponse{Container: out, Kind: kind.String(), Result: res})
}

func (s *Server) handleReport(c *echo.Context) error {
	ct, err := s.lookup(c, "id")
	if err != nil {
		return writeError(c, http.StatusNotFound, err.Error())
	}
	store, closeFn, err := s.openStore(ct)
	if err != nil {
		return writeCoreError(c, err)
	}
	defer closeFn()
	rep, err := report.Build(ct.Name, ct.SHA256, store)
	if err != nil {
		return writeCoreError(c, err)
	}
	pdf, err := report.WriteLayoutPDF(rep)
	if err != nil {
		return writeError(c, http.StatusInternalServerError, err.Error())
	}
	return c.Blob(http.StatusOK, "application/pdf", pdf)
}

func emptyProblems(p []nitf.Problem) []nitf.Problem {
	if p == nil {
		return []nitf.Problem{}
	}
	return p
}
