package frame

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/tphakala/emotion-go/internal/errors"
)

var imageExtensions = []string{".jpg", ".jpeg", ".png"}

// DirectorySource replays image files from a directory in lexical order.
type DirectorySource struct {
	dir   string
	loop  bool
	files []string
	seq   sequencer

	mu   sync.Mutex
	next int
}

// NewDirectorySource lists dir once. It fails when the directory holds no
// images.
func NewDirectorySource(dir string, loop bool) (*DirectorySource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.New(err).
			Component("frame").
			Category(errors.CategoryConfiguration).
			Context("directory", dir).
			Build()
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(e.Name()))) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, errors.Newf("no images found in %s", dir).
			Component("frame").
			Category(errors.CategoryConfiguration).
			Build()
	}
	slices.Sort(files)
	return &DirectorySource{dir: dir, loop: loop, files: files}, nil
}

// Capture returns the next file. Once exhausted without loop it yields
// (nil, nil) forever.
func (d *DirectorySource) Capture(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	if d.next >= len(d.files) {
		if !d.loop {
			d.mu.Unlock()
			return nil, nil
		}
		d.next = 0
	}
	path := d.files[d.next]
	d.next++
	d.mu.Unlock()

	return readFrame(&d.seq, path)
}

// Load reads a single image file as a frame.
func Load(path string) (*Frame, error) {
	var seq sequencer
	return readFrame(&seq, path)
}

func readFrame(seq *sequencer, path string) (*Frame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Component("frame").
			Category(errors.CategoryFrameSource).
			Context("file", filepath.Base(path)).
			Build()
	}
	return seq.build(data, "")
}

// Exhausted reports whether a non-looping replay has delivered every file.
func (d *DirectorySource) Exhausted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.loop && d.next >= len(d.files)
}

// Len returns the number of files in the replay.
func (d *DirectorySource) Len() int { return len(d.files) }

func (d *DirectorySource) Close() error { return nil }
