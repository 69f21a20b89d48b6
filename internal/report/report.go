package report

import (
	"os"
	"time"

	"github.com/goccy/go-json"

	"example.com/nitfgate/internal/nitf"
)

// LayoutReport bundles a container layout with its provenance.
type LayoutReport struct {
	Path      string         `json:"path"`
	SHA256    string         `json:"sha256"`
	Size      int64          `json:"size"`
	Generated time.Time      `json:"generated"`
	Layout    *nitf.Layout   `json:"layout"`
	Problems  []nitf.Problem `json:"problems"`
}

// Build loads the layout of store and validates it.
func Build(path, sha string, store nitf.ByteStore) (LayoutReport, error) {
	l, problems, err := nitf.Inspect(store)
	if err != nil {
		return LayoutReport{}, err
	}
	return LayoutReport{
		Path:      path,
		SHA256:    sha,
		Size:      l.StoreLength,
		Generated: time.Now().UTC(),
		Layout:    l,
		Problems:  problems,
	}, nil
}

func SaveLayoutJSON(rep LayoutReport, out string) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func LoadLayoutJSON(path string) (LayoutReport, error) {
	var rep LayoutReport
	b, err := os.ReadFile(path)
	if err != nil {
		return rep, err
	}
	err = json.Unmarshal(b, &rep)
	return rep, err
}
