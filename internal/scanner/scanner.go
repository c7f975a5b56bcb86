package scanner

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"sql-guard/internal/model"
)

// FileWalker is responsible for traversing directories and feeding files to a channel
type FileWalker struct {
	Extensions map[string]struct{}
	Excludes   []string
}

func NewFileWalker(exts []string, excludes []string) *FileWalker {
	e := make(map[string]struct{})
	for _, ext := range exts {
		e[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}
	return &FileWalker{
		Extensions: e,
		Excludes:   excludes,
	}
}

// Walk starts the traversal and returns a channel of file paths.
// It runs in a separate goroutine and closes the channel when done.
func (fw *FileWalker) Walk(ctx context.Context, root string) (<-chan string, <-chan error) {
	paths := make(chan string, 100)
	errs := make(chan error, 1)

	go func() {
		defer close(paths)
		defer close(errs)

		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			// TODO: Add .gitignore support here

			if d.IsDir() {
				if path == root {
					return nil
				}
				for _, exclude := range fw.Excludes {
					if fw.excluded(path, d.Name(), exclude) {
						return filepath.SkipDir
					}
				}
				if strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir // hidden directories like .git
				}
				return nil
			}

			for _, exclude := range fw.Excludes {
				if fw.excluded(path, d.Name(), exclude) {
					return nil
				}
			}

			ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
			if _, ok := fw.Extensions[ext]; ok {
				select {
				case paths <- path:
				case <-ctx.Done():
					return ctx.Err()
				}
			}

			return nil
		})

		if err != nil {
			errs <- err
		}
	}()

	return paths, errs
}

// excluded matches a glob against the base name, or a plain pattern against
// any path element.
func (fw *FileWalker) excluded(path, name, pattern string) bool {
	if matched, _ := filepath.Match(pattern, name); matched {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == pattern {
			return true
		}
	}
	return false
}

type ScanResult struct {
	File     string
	Findings []model.Finding
	Error    error
}

// Processor defines a function that processes a file
type Processor func(path string) ([]model.Finding, error)

// WorkerPool manages concurrent processing
type WorkerPool struct {
	Concurrency int
	Processor   Processor
}

func NewWorkerPool(concurrency int, proc Processor) *WorkerPool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &WorkerPool{
		Concurrency: concurrency,
		Processor:   proc,
	}
}

func (wp *WorkerPool) Start(ctx context.Context, paths <-chan string) <-chan ScanResult {
	results := make(chan ScanResult)
	var wg sync.WaitGroup

	for i := 0; i < wp.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range paths {
				select {
				case <-ctx.Done():
					return
				default:
					res, err := wp.Processor(path)
					// extraction errors are sent too so the caller can report them
					select {
					case results <- ScanResult{File: path, Findings: res, Error: err}:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// Linter walks a source tree, extracts SQL templates from each file and
// validates every template.
type Linter struct {
	Walker      *FileWalker
	Extract     func(path string) ([]model.SQLSegment, error)
	Validate    func(segments []model.SQLSegment) []model.Finding
	Concurrency int
	Logger      *slog.Logger
}

// Run returns the findings ordered by file and line. Files that cannot be
// read are logged and skipped; a failed walk is returned as an error.
func (l *Linter) Run(ctx context.Context, root string) ([]model.Finding, error) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	paths, errs := l.Walker.Walk(ctx, root)
	pool := NewWorkerPool(l.Concurrency, func(path string) ([]model.Finding, error) {
		segments, err := l.Extract(path)
		if err != nil {
			return nil, err
		}
		return l.Validate(segments), nil
	})

	var findings []model.Finding
	files := 0
	for res := range pool.Start(ctx, paths) {
		files++
		if res.Error != nil {
			logger.Warn("skipping file", slog.String("file", res.File), slog.String("error", res.Error.Error()))
			continue
		}
		findings = append(findings, res.Findings...)
	}
	if err := <-errs; err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i].Segment.Location, findings[j].Segment.Location
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		return a.Line < b.Line
	})
	logger.Debug("scan complete", slog.Int("files", files), slog.Int("templates", len(findings)))
	return findings, nil
}
