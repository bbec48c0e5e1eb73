package klondike

import (
	"context"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/meigma/klondike/internal/platform"
	"github.com/meigma/klondike/internal/progress"
	"github.com/meigma/klondike/internal/sizing"
)

// AddFile reads the file at path and adds it under name. An empty name uses
// the file's base name.
func (a *Archive) AddFile(name, path string) (Entry, error) {
	if a.closed {
		return Entry{}, ErrClosed
	}
	if name == "" {
		name = filepath.Base(path)
	}
	f, err := os.Open(path) //nolint:gosec // caller-chosen input file
	if err != nil {
		return Entry{}, fmt.Errorf("klondike: add file: %w", err)
	}
	defer f.Close()

	data, err := sizing.ReadAllWithLimit(f, math.MaxUint32, ErrTooLarge)
	if err != nil {
		return Entry{}, fmt.Errorf("klondike: add file %s: %w", path, err)
	}
	return a.Add(name, data)
}

// dirFile is a regular file found while walking a directory.
type dirFile struct {
	name string
	size int64
}

// AddDir adds every regular file under dir, named by its slash-separated
// path relative to dir. Symbolic links and other non-regular files are
// skipped.
//
// Files are encoded in parallel, bounded by WithWorkers and
// WithMemoryBudget, and inserted in walk order. On error nothing is added and any spooled data
// taken for the new files is released.
func (a *Archive) AddDir(ctx context.Context, dir string) ([]Entry, error) {
	if a.closed {
		return nil, ErrClosed
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("klondike: open source root %s: %w", dir, err)
	}
	defer root.Close()

	files, err := a.walk(root)
	if err != nil {
		return nil, err
	}

	workers := a.cfg.workers
	switch {
	case workers == 0:
		workers = runtime.GOMAXPROCS(0)
	case workers < 0:
		workers = 1
	}
	budget := a.cfg.memoryBudget
	sem := semaphore.NewWeighted(budget)

	var (
		mu   sync.Mutex
		done int
	)
	slots := make([]*slot, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, file := range files {
		weight := max(1, min(file.size, budget))
		if err := sem.Acquire(gctx, weight); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(weight)
			data, err := platform.ReadFile(root, filepath.FromSlash(file.name), math.MaxUint32, ErrTooLarge)
			if err != nil {
				return fmt.Errorf("klondike: read %s: %w", file.name, err)
			}
			s, err := a.encode(gctx, file.name, data)
			if err != nil {
				return err
			}
			slots[i] = s

			mu.Lock()
			done++
			a.cfg.progress.Report(progress.Event{
				Stage:        progress.StageCompressing,
				Name:         file.name,
				BytesDone:    uint64(len(data)),
				BytesTotal:   uint64(len(data)),
				EntriesDone:  done,
				EntriesTotal: len(files),
			})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, s := range slots {
		if err := a.spoolSlot(s); err != nil {
			for _, done := range slots[:i] {
				a.release(done)
			}
			return nil, err
		}
	}
	// Every slot is spooled, so insert cannot fail from here on.
	entries := make([]Entry, 0, len(slots))
	for _, s := range slots {
		if err := a.insert(s); err != nil {
			return entries, err
		}
		e, _ := a.Entry(s.entry.Name)
		entries = append(entries, e)
	}
	a.log().Info("directory added", "dir", dir, "entries", len(entries))
	return entries, nil
}

// walk lists the regular files under root in lexical order.
func (a *Archive) walk(root *os.Root) ([]dirFile, error) {
	var files []dirFile
	err := fs.WalkDir(root.FS(), ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			a.log().Debug("skipping non-regular file", "path", path, "mode", d.Type().String())
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, dirFile{name: path, size: info.Size()})
		a.cfg.progress.Report(progress.Event{
			Stage:       progress.StageEnumerating,
			Name:        path,
			EntriesDone: len(files),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("klondike: walk: %w", err)
	}
	return files, nil
}

