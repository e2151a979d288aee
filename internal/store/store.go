// Package store owns the bounded, time-ordered image collection on disk.
// It is the single source of truth for which images exist and which one
// the panel is showing.
package store

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/asetapen/picinplace/internal/codec"
	"github.com/asetapen/picinplace/internal/models"
)

const thumbDirName = "thumbnails"

// timeNow is a variable so tests can inject deterministic timestamps.
var timeNow = time.Now

// ImageStore maintains the ordered collection of stored images, bounded by
// maxImages, plus the display cursor. All collection and cursor mutations
// are serialized behind one mutex; only Render happens outside it.
//
// The store is the only writer and deleter of files under its directory.
type ImageStore struct {
	mu        sync.Mutex
	dir       string
	thumbDir  string
	codec     *codec.Codec
	maxImages int
	images    []models.StoredImage
	current   int
}

// New creates an ImageStore managing dir. The directory and its thumbnail
// subdirectory are created if missing.
func New(dir string, c *codec.Codec, maxImages int) (*ImageStore, error) {
	thumbDir := filepath.Join(dir, thumbDirName)
	if err := os.MkdirAll(thumbDir, 0755); err != nil {
		return nil, fmt.Errorf("create image directories: %w", err)
	}
	return &ImageStore{
		dir:       dir,
		thumbDir:  thumbDir,
		codec:     c,
		maxImages: maxImages,
	}, nil
}

// Dir returns the managed image directory.
func (s *ImageStore) Dir() string { return s.dir }

// SetMaxImages updates the collection bound. Shrinking does not evict
// already-loaded images; the bound is enforced on the next Insert.
func (s *ImageStore) SetMaxImages(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxImages = n
}

// Load scans the managed directory for existing full-resolution artifacts,
// sorted oldest first by modification time, keeps the most recent
// maxImages, and ensures each has a thumbnail. A thumbnail failure for one
// image is logged and skipped, never aborts the scan.
func (s *ImageStore) Load() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("scan image directory: %w", err)
	}

	type candidate struct {
		name  string
		mtime time.Time
	}
	var found []candidate
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg":
		default:
			continue
		}
		info, err := e.Info()
		if err != nil {
			slog.Warn("store: cannot stat image, skipping", "name", e.Name(), "err", err)
			continue
		}
		found = append(found, candidate{name: e.Name(), mtime: info.ModTime()})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].mtime.Before(found[j].mtime) })

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(found) > s.maxImages {
		found = found[len(found)-s.maxImages:]
	}

	s.images = s.images[:0]
	for _, c := range found {
		img := s.stored(c.name)
		s.images = append(s.images, img)
		if _, err := os.Stat(img.ThumbPath); err != nil {
			if err := s.generateThumbnail(img); err != nil {
				slog.Warn("store: thumbnail generation failed, skipping", "name", img.Name, "err", err)
			}
		}
	}
	s.current = 0

	slog.Info("store: loaded existing images", "count", len(s.images), "dir", s.dir)
	return nil
}

// Insert normalizes raw upload bytes to the display resolution, persists
// the full-resolution artifact and its thumbnail, and appends to the
// collection. When the bound is exceeded the oldest entry and both of its
// artifacts are removed. The cursor moves to the new image.
func (s *ImageStore) Insert(raw []byte, filenameHint string) (models.StoredImage, error) {
	decoded, err := codec.Decode(raw, filenameHint)
	if err != nil {
		return models.StoredImage{}, err
	}
	normalized := s.codec.Normalize(decoded)

	data, err := codec.EncodeJPEG(normalized, models.ImageJPEGQuality)
	if err != nil {
		return models.StoredImage{}, models.ErrInternal("encode JPEG: " + err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	img := s.stored(s.nextName())
	if err := os.WriteFile(img.Path, data, 0644); err != nil {
		return models.StoredImage{}, models.ErrIO("persist image: " + err.Error())
	}
	if err := writeThumbnail(normalized, img.ThumbPath); err != nil {
		// Lazy regeneration covers this on the first thumbnail request.
		slog.Warn("store: thumbnail write failed", "name", img.Name, "err", err)
	}

	s.images = append(s.images, img)
	if len(s.images) > s.maxImages {
		oldest := s.images[0]
		s.images = s.images[1:]
		s.removeArtifacts(oldest)
	}
	s.current = len(s.images) - 1

	slog.Info("store: image inserted", "name", img.Name, "count", len(s.images))
	return img, nil
}

// Thumbnail returns the thumbnail artifact for the named image, generating
// it on demand from the full-resolution artifact when absent.
func (s *ImageStore) Thumbnail(name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	img := s.stored(name)
	data, err := os.ReadFile(img.ThumbPath)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, models.ErrIO("read thumbnail: " + err.Error())
	}

	if _, err := os.Stat(img.Path); err != nil {
		return nil, models.ErrNotFound("no image named " + name)
	}
	if err := s.generateThumbnail(img); err != nil {
		return nil, models.ErrInternal("generate thumbnail: " + err.Error())
	}
	data, err = os.ReadFile(img.ThumbPath)
	if err != nil {
		return nil, models.ErrIO("read thumbnail: " + err.Error())
	}
	return data, nil
}

// List returns a read-only snapshot of the collection.
func (s *ImageStore) List() (names []string, current, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names = make([]string, len(s.images))
	for i, img := range s.images {
		names[i] = img.Name
	}
	return names, s.current, len(s.images)
}

// At returns the image at index i.
func (s *ImageStore) At(i int) (models.StoredImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.images) {
		return models.StoredImage{}, models.ErrIndex(fmt.Sprintf("index %d out of range [0, %d)", i, len(s.images)))
	}
	return s.images[i], nil
}

// SetCurrent moves the cursor to index i and returns the image there.
func (s *ImageStore) SetCurrent(i int) (models.StoredImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.images) {
		return models.StoredImage{}, models.ErrIndex(fmt.Sprintf("index %d out of range [0, %d)", i, len(s.images)))
	}
	s.current = i
	return s.images[i], nil
}

// NextForRender returns the image at the cursor and advances the cursor by
// one, wrapping around. Reports false on an empty collection, leaving all
// state unchanged.
func (s *ImageStore) NextForRender() (models.StoredImage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.images) == 0 {
		return models.StoredImage{}, false
	}
	if s.current >= len(s.images) {
		s.current = 0
	}
	img := s.images[s.current]
	s.current = (s.current + 1) % len(s.images)
	return img, true
}

// Len returns the number of stored images.
func (s *ImageStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.images)
}

// stored builds the StoredImage record for a file name.
func (s *ImageStore) stored(name string) models.StoredImage {
	return models.StoredImage{
		Name:      name,
		Path:      filepath.Join(s.dir, name),
		ThumbPath: filepath.Join(s.thumbDir, "thumb_"+name),
	}
}

// nextName derives a timestamp identifier, suffixed when two inserts land
// in the same second.
func (s *ImageStore) nextName() string {
	base := "image_" + timeNow().Format("20060102_150405")
	name := base + ".jpg"
	for n := 2; s.nameTaken(name); n++ {
		name = fmt.Sprintf("%s_%d.jpg", base, n)
	}
	return name
}

func (s *ImageStore) nameTaken(name string) bool {
	for _, img := range s.images {
		if img.Name == name {
			return true
		}
	}
	_, err := os.Stat(filepath.Join(s.dir, name))
	return err == nil
}

// generateThumbnail builds the thumbnail from the full-resolution artifact.
func (s *ImageStore) generateThumbnail(img models.StoredImage) error {
	data, err := os.ReadFile(img.Path)
	if err != nil {
		return err
	}
	decoded, err := codec.Decode(data, img.Name)
	if err != nil {
		return err
	}
	return writeThumbnail(decoded, img.ThumbPath)
}

// writeThumbnail encodes and writes a thumbnail via a temp file and atomic
// rename, so concurrent regeneration never leaves a corrupt artifact.
func writeThumbnail(img image.Image, path string) error {
	data, err := codec.Thumbnail(img)
	if err != nil {
		return err
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// removeArtifacts deletes both artifacts of an evicted image. Deletion
// failures are logged, never surfaced: the in-memory eviction stands.
func (s *ImageStore) removeArtifacts(img models.StoredImage) {
	if err := os.Remove(img.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("store: failed to delete evicted image", "name", img.Name, "err", err)
	}
	if err := os.Remove(img.ThumbPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("store: failed to delete evicted thumbnail", "name", img.Name, "err", err)
	}
	slog.Debug("store: evicted oldest image", "name", img.Name)
}
