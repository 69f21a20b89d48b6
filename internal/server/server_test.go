package server

import (
	"bufio"
	"bytes"
	"fmt"
	"hash/crc32"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/nitfgate/internal/nitf"
	"example.com/nitfgate/internal/nitf/nitftest"
)

func newTestServer(t *testing.T, opts Options) (*Server, *echo.Echo) {
	t.Helper()
	if opts.StorageDir == "" {
		opts.StorageDir = t.TempDir()
	}
	s, err := NewServer(opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	e := echo.New()
	s.Register(e)
	return s, e
}

func do(t *testing.T, e *echo.Echo, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func upload(t *testing.T, e *echo.Echo, name string, raw []byte) Container {
	t.Helper()
	rec := do(t, e, http.MethodPost, "/containers?name="+name, raw)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp containerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Container
}

func hostAndDonor() ([]byte, []byte) {
	host := (&nitftest.Builder{Title: "host"}).
		AddSized(nitf.Image, 30, 40).
		AddSized(nitf.DataExtension, 20, 5).
		MustBuild()
	donor := (&nitftest.Builder{Title: "donor"}).
		AddSized(nitf.DataExtension, 12, 9).
		AddSized(nitf.DataExtension, 14, 0).
		MustBuild()
	return host, donor
}

func TestUploadAndLayout(t *testing.T) {
	for _, useMmap := range []bool{false, true} {
		_, e := newTestServer(t, Options{UseMmap: useMmap})
		host, _ := hostAndDonor()
		ct := upload(t, e, "host.ntf", host)
		assert.Equal(t, int64(len(host)), ct.Size)
		assert.Equal(t, "host.ntf", ct.Name)

		rec := do(t, e, http.MethodGet, "/containers/"+ct.ID+"/layout", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var layout nitf.Layout
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &layout))
		assert.Equal(t, "NITF02.10", layout.Version)
		require.Len(t, layout.Kinds, 5)
		assert.Equal(t, 1, layout.Kinds[nitf.Image].Count)

		rec = do(t, e, http.MethodGet, "/containers/"+ct.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"problems":[]`)
	}
}

func TestUploadRejectsGarbage(t *testing.T) {
	s, e := newTestServer(t, Options{})
	rec := do(t, e, http.MethodPost, "/containers", []byte("not a container"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Empty(t, s.Containers().List())

	old := (&nitftest.Builder{Version: "NITF02.00"}).MustBuild()
	rec = do(t, e, http.MethodPost, "/containers", old)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported")
}

func TestUploadTooLarge(t *testing.T) {
	_, e := newTestServer(t, Options{MaxUploadBytes: 100})
	host, _ := hostAndDonor()
	rec := do(t, e, http.MethodPost, "/containers", host)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestFieldAndElementEndpoints(t *testing.T) {
	_, e := newTestServer(t, Options{})
	host, _ := hostAndDonor()
	ct := upload(t, e, "host.ntf", host)

	rec := do(t, e, http.MethodGet, "/containers/"+ct.ID+"/fields/ftitle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var field fieldResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &field))
	assert.Equal(t, "host", field.Text)
	assert.Equal(t, int64(39), field.Offset)
	assert.Equal(t, int64(80), field.Width)

	rec = do(t, e, http.MethodGet, "/containers/"+ct.ID+"/fields/udhd", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, e, http.MethodGet, "/containers/"+ct.ID+"/elements/image/0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, nitftest.DataBytes(nitf.Image, 0, 40), rec.Body.Bytes())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "image0.jp2")
	assert.Equal(t, fmt.Sprintf("%08x", crc32.ChecksumIEEE(rec.Body.Bytes())), rec.Header().Get("X-Element-CRC32"))

	rec = do(t, e, http.MethodGet, "/containers/"+ct.ID+"/elements/des/0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, rec.Body.Bytes(), 25)

	rec = do(t, e, http.MethodGet, "/containers/"+ct.ID+"/elements/des/0?subheader=false", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, rec.Body.Bytes(), 5)

	rec = do(t, e, http.MethodGet, "/containers/"+ct.ID+"/elements/image/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, e, http.MethodGet, "/containers/"+ct.ID+"/elements/bogus/0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, e, http.MethodGet, "/containers/missing/layout", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestElementsNDJSON(t *testing.T) {
	_, e := newTestServer(t, Options{})
	_, donor := hostAndDonor()
	ct := upload(t, e, "donor.ntf", donor)

	rec := do(t, e, http.MethodGet, "/containers/"+ct.ID+"/elements/des", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	scanner := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	var got []nitf.Element
	for scanner.Scan() {
		var el nitf.Element
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &el))
		got = append(got, el)
	}
	require.Len(t, got, 2)
	assert.Equal(t, got[0].End(), got[1].SubheaderOffset)
	assert.Equal(t, int64(14), got[1].SubheaderLength)
}

func TestSpliceEndpoint(t *testing.T) {
	s, e := newTestServer(t, Options{})
	host, donor := hostAndDonor()
	hostCt := upload(t, e, "host.ntf", host)
	donorCt := upload(t, e, "donor.ntf", donor)

	rec := do(t, e, http.MethodPost, "/containers/"+hostCt.ID+"/splice/des?donor="+donorCt.ID, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp spliceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Result.HostCountAfter)
	assert.Equal(t, "host+donor.des.ntf", resp.Container.Name)

	onDisk, err := os.ReadFile(hostCt.Path)
	require.NoError(t, err)
	assert.Equal(t, host, onDisk, "host container must not change")

	spliced, ok := s.Containers().Get(resp.Container.ID)
	require.True(t, ok)
	raw, err := os.ReadFile(spliced.Path)
	require.NoError(t, err)
	_, problems, err := nitf.Inspect(nitf.NewMemStore(raw))
	require.NoError(t, err)
	assert.Empty(t, problems)

	rec = do(t, e, http.MethodPost, "/containers/"+hostCt.ID+"/splice/des", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, e, http.MethodPost, "/containers/"+hostCt.ID+"/splice/des?donor=nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReportEndpoint(t *testing.T) {
	_, e := newTestServer(t, Options{})
	host, _ := hostAndDonor()
	ct := upload(t, e, "host.ntf", host)
	rec := do(t, e, http.MethodGet, "/containers/"+ct.ID+"/report.pdf", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))
}

func TestPreloadAndHealth(t *testing.T) {
	dir := t.TempDir()
	host, _ := hostAndDonor()
	path := filepath.Join(dir, "preloaded.ntf")
	require.NoError(t, os.WriteFile(path, host, 0o644))

	_, e := newTestServer(t, Options{Preload: []string{path}})
	rec := do(t, e, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"containers":1`)

	rec = do(t, e, http.MethodGet, "/containers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "preloaded.ntf")
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nitfd.yaml")
	doc := "addr: \":9090\"\nstorageDir: store\nuseMmap: true\npreload:\n  - samples/a.ntf\nlogs:\n  maxSizeMB: 3\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, filepath.Join(dir, "store"), cfg.StorageDir)
	assert.True(t, cfg.UseMmap)
	assert.Equal(t, []string{filepath.Join(dir, "samples", "a.ntf")}, cfg.Preload)
	assert.Equal(t, filepath.Join(dir, "store", "logs"), cfg.Logs.Directory)
	assert.Equal(t, 3, cfg.Logs.MaxSizeMB)
	assert.Equal(t, 5, cfg.Logs.MaxBackups)
	assert.Equal(t, "nitfd.log", cfg.Logs.FileName)
	assert.Equal(t, int64(defaultMaxUploadBytes), cfg.MaxUploadBytes)

	require.NoError(t, os.WriteFile(path, []byte("unknown: 1\n"), 0o644))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}
