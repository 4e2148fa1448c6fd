package images

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidPath = errors.New("invalid image path")
	ErrNotFound    = errors.New("image not found")
)

var folderName = regexp.MustCompile(`^[a-z0-9_-]{1,32}$`)

// Image describes one stored file.
type Image struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	URL       string    `json:"url"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Store keeps processed images under a root directory. Paths handed out
// are slash-separated and relative to root, e.g. "products/1700000000-ab12cd34.jpg".
type Store struct {
	root    string
	baseURL string
	now     func() time.Time
}

// NewStore creates root if needed. baseURL is the public prefix the
// files are served under.
func NewStore(root, baseURL string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	return &Store{root: root, baseURL: strings.TrimRight(baseURL, "/"), now: time.Now}, nil
}

// URL returns the public address of p.
func (s *Store) URL(p string) string {
	return s.baseURL + "/" + p
}

// Owns reports whether p looks like a path this store handed out, as
// opposed to an external URL typed in by hand.
func (s *Store) Owns(p string) bool {
	_, err := s.resolve(p)
	return err == nil
}

// Save writes a processed JPEG under folder ("" for the root) with a
// fresh unique name.
func (s *Store) Save(folder string, data []byte) (Image, error) {
	if folder != "" && !folderName.MatchString(folder) {
		return Image{}, ErrInvalidPath
	}
	name := fmt.Sprintf("%d-%s.jpg", s.now().UnixMilli(), uuid.NewString()[:8])
	rel := path.Join(folder, name)

	full, err := s.resolve(rel)
	if err != nil {
		return Image{}, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return Image{}, fmt.Errorf("create folder: %w", err)
	}
	// O_EXCL: never overwrite an existing upload.
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Image{}, fmt.Errorf("create image: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(full)
		return Image{}, fmt.Errorf("write image: %w", err)
	}
	if err := f.Close(); err != nil {
		return Image{}, fmt.Errorf("close image: %w", err)
	}

	return Image{Name: name, Path: rel, URL: s.URL(rel), Size: int64(len(data)), CreatedAt: s.now()}, nil
}

// Read returns the stored bytes of p.
func (s *Store) Read(p string) ([]byte, error) {
	full, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Replace overwrites p in place so references to it stay valid.
func (s *Store) Replace(p string, data []byte) error {
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	if _, err := os.Stat(full); errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	return os.Rename(tmp, full)
}

// Delete removes p.
func (s *Store) Delete(p string) error {
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}

// List returns the images directly inside folder, newest first, at most limit.
func (s *Store) List(folder string, limit int) ([]Image, error) {
	if folder != "" && !folderName.MatchString(folder) {
		return nil, ErrInvalidPath
	}
	entries, err := os.ReadDir(filepath.Join(s.root, folder))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Image{}, nil
		}
		return nil, fmt.Errorf("list images: %w", err)
	}

	out := []Image{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jpg") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		rel := path.Join(folder, e.Name())
		out = append(out, Image{Name: e.Name(), Path: rel, URL: s.URL(rel), Size: info.Size(), CreatedAt: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Handler serves stored files. Directory listings are not exposed.
func (s *Store) Handler() http.Handler {
	files := http.FileServer(http.Dir(s.root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=3600")
		files.ServeHTTP(w, r)
	})
}

// resolve maps a relative slash path to a file under root, refusing
// anything that would escape it.
func (s *Store) resolve(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", ErrInvalidPath
	}
	clean := path.Clean(p)
	if clean != p || clean == "." || strings.HasPrefix(clean, "../") || clean == ".." {
		return "", ErrInvalidPath
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}
