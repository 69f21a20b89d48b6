package server

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/nitfgate/internal/common"
	"example.com/nitfgate/internal/nitf"
)

// Server coordinates HTTP handlers and owns the containers uploaded to or
// produced by the daemon.
type Server struct {
	containers *ContainerStore
	workDir    string
	uploadsDir string
	useMmap    bool
	maxUpload  int64
}

// Container is a stored NITF file.
type Container struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Path    string    `json:"-"`
	Size    int64     `json:"size"`
	SHA256  string    `json:"sha256"`
	Source  string    `json:"source"`
	Created time.Time `json:"created"`
}

// ContainerStore keeps track of known containers.
type ContainerStore struct {
	mu      sync.RWMutex
	entries map[string]Container
}

func newContainerStore() *ContainerStore {
	return &ContainerStore{entries: make(map[string]Container)}
}

func (cs *ContainerStore) Add(c Container) {
	cs.mu.Lock()
	cs.entries[c.ID] = c
	cs.mu.Unlock()
}

func (cs *ContainerStore) Get(id string) (Container, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	c, ok := cs.entries[id]
	return c, ok
}

// List returns containers oldest first.
func (cs *ContainerStore) List() []Container {
	cs.mu.RLock()
	out := make([]Container, 0, len(cs.entries))
	for _, c := range cs.entries {
		out = append(out, c)
	}
	cs.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].ID < out[j].ID
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out
}

// NewServer constructs a Server rooted at a temporary workspace directory.
func NewServer(opts Options) (*Server, error) {
	storageDir := opts.StorageDir
	if storageDir == "" {
		storageDir = os.TempDir()
	}
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, err
	}
	workDir, err := os.MkdirTemp(storageDir, "nitfd-")
	if err != nil {
		return nil, err
	}
	uploadsDir := filepath.Join(workDir, "containers")
	if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
		os.RemoveAll(workDir)
		return nil, err
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	s := &Server{
		containers: newContainerStore(),
		workDir:    workDir,
		uploadsDir: uploadsDir,
		useMmap:    opts.UseMmap,
		maxUpload:  maxUpload,
	}
	for _, path := range opts.Preload {
		c, err := s.importFile(path)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("preload %s: %w", path, err)
		}
		common.Logf("preloaded %s as %s", path, c.ID)
	}
	return s, nil
}

// Close removes any temporary state associated with the server.
func (s *Server) Close() error {
	if s == nil || s.workDir == "" {
		return nil
	}
	return os.RemoveAll(s.workDir)
}

// Containers exposes the container registry.
func (s *Server) Containers() *ContainerStore {
	return s.containers
}

// openStore opens a read-only store over c. The returned closer releases it.
func (s *Server) openStore(c Container) (nitf.ByteStore, func() error, error) {
	if s.useMmap {
		m, err := nitf.OpenMmap(c.Path)
		if err != nil {
			return nil, nil, err
		}
		return m, m.Close, nil
	}
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, nil, err
	}
	return nitf.NewFileStore(f), f.Close, nil
}

// ingest copies r into a new container file and registers it once its
// header resolves. Rejected uploads are removed.
func (s *Server) ingest(r io.Reader, name, source string) (Container, []nitf.Problem, error) {
	id := uuid.NewString()
	path := filepath.Join(s.uploadsDir, id+".ntf")
	f, err := os.Create(path)
	if err != nil {
		return Container{}, nil, err
	}
	h := common.NewHasher()
	size, err := io.Copy(io.MultiWriter(f, h), r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return Container{}, nil, err
	}
	c := Container{ID: id, Name: name, Path: path, Size: size, SHA256: h.Sum(), Source: source, Created: time.Now().UTC()}
	problems, err := s.check(c)
	if err != nil {
		os.Remove(path)
		return Container{}, nil, err
	}
	s.containers.Add(c)
	return c, problems, nil
}

func (s *Server) importFile(path string) (Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return Container{}, err
	}
	defer f.Close()
	c, _, err := s.ingest(f, filepath.Base(path), "preload")
	return c, err
}

func (s *Server) check(c Container) ([]nitf.Problem, error) {
	store, closeFn, err := s.openStore(c)
	if err != nil {
		return nil, err
	}
	defer closeFn()
	if err := nitf.CheckVersion(store); err != nil {
		return nil, err
	}
	_, problems, err := nitf.Inspect(store)
	return problems, err
}

// splice copies host, splices kind from donor into the copy and registers
// the result as a new container. Neither input is modified.
func (s *Server) splice(kind nitf.SegmentKind, host, donor Container) (Container, nitf.SpliceResult, error) {
	id := uuid.NewString()
	path := filepath.Join(s.uploadsDir, id+".ntf")
	if err := common.CopyFile(host.Path, path); err != nil {
		return Container{}, nitf.SpliceResult{}, err
	}
	fail := func(err error) (Container, nitf.SpliceResult, error) {
		os.Remove(path)
		return Container{}, nitf.SpliceResult{}, err
	}
	donorStore, closeDonor, err := s.openStore(donor)
	if err != nil {
		return fail(err)
	}
	defer closeDonor()
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fail(err)
	}
	res, err := nitf.SpliceKind(kind, donorStore, nitf.NewFileStore(f))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fail(err)
	}
	sum, size, err := common.Sha256OfFile(path)
	if err != nil {
		return fail(err)
	}
	name := fmt.Sprintf("%s+%s.%s", trimExt(host.Name), trimExt(donor.Name), kind)
	c := Container{ID: id, Name: name + ".ntf", Path: path, Size: size, SHA256: sum, Source: "splice", Created: time.Now().UTC()}
	s.containers.Add(c)
	common.Logf("spliced %s from %s into %s as %s", kind, donor.ID, host.ID, c.ID)
	return c, res, nil
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
