package smoke

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/nitfgate/internal/nitf"
	"example.com/nitfgate/internal/nitf/nitftest"
	"example.com/nitfgate/internal/server"
)

type containerRef struct {
	Container struct {
		ID   string `json:"id"`
		Size int64  `json:"size"`
	} `json:"container"`
}

func post(t *testing.T, url string, body []byte) []byte {
	t.Helper()
	resp, err := http.Post(url, "application/octet-stream", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(out))
	return out
}

func get(t *testing.T, url string) []byte {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(out))
	return out
}

// TestDaemonSpliceMatchesLibrary drives a listening daemon and checks that
// every element of a spliced container matches an in-memory splice.
func TestDaemonSpliceMatchesLibrary(t *testing.T) {
	srv, err := server.NewServer(server.Options{StorageDir: t.TempDir(), UseMmap: true})
	require.NoError(t, err)
	defer srv.Close()
	ts := httptest.NewServer(server.NewRouter(srv))
	defer ts.Close()

	host := (&nitftest.Builder{Title: "smoke host", UserHeader: []byte("uh")}).
		AddSized(nitf.Image, 64, 512).
		AddSized(nitf.Graphic, 10, 10).
		AddSized(nitf.ReservedExtension, 5, 5).
		MustBuild()
	donor := (&nitftest.Builder{Title: "smoke donor"}).
		AddSized(nitf.Graphic, 22, 33).
		AddSized(nitf.Graphic, 1, 0).
		AddSized(nitf.Graphic, 7, 70).
		MustBuild()

	var hostRef, donorRef, outRef containerRef
	require.NoError(t, json.Unmarshal(post(t, ts.URL+"/containers?name=host.ntf", host), &hostRef))
	require.NoError(t, json.Unmarshal(post(t, ts.URL+"/containers?name=donor.ntf", donor), &donorRef))
	require.NoError(t, json.Unmarshal(post(t,
		fmt.Sprintf("%s/containers/%s/splice/graphic?donor=%s", ts.URL, hostRef.Container.ID, donorRef.Container.ID), nil), &outRef))

	want := nitf.NewMemStore(append([]byte(nil), host...))
	_, err = nitf.SpliceKind(nitf.Graphic, nitf.NewMemStore(donor), want)
	require.NoError(t, err)
	assert.Equal(t, int64(len(want.Bytes())), outRef.Container.Size)

	for _, k := range nitf.Kinds() {
		n, err := nitf.Count(want, k)
		require.NoError(t, err)
		for i := 0; i < n; i++ {
			expected, err := nitf.ExtractElement(want, k, i, nitf.WithSubheader)
			require.NoError(t, err)
			got := get(t, fmt.Sprintf("%s/containers/%s/elements/%s/%d?subheader=true", ts.URL, outRef.Container.ID, k, i))
			assert.Equal(t, expected, got, "%s[%d]", k, i)
		}
	}

	var layout nitf.Layout
	require.NoError(t, json.Unmarshal(get(t, ts.URL+"/containers/"+outRef.Container.ID+"/layout"), &layout))
	assert.Equal(t, 4, layout.Kinds[nitf.Graphic].Count)
	assert.Equal(t, layout.FileLength, outRef.Container.Size)

	untouched := get(t, fmt.Sprintf("%s/containers/%s/layout", ts.URL, hostRef.Container.ID))
	require.NoError(t, json.Unmarshal(untouched, &layout))
	assert.Equal(t, 1, layout.Kinds[nitf.Graphic].Count)
}
