// Package batch validates receipt images sitting in a directory, either as a
// one-off scan or continuously as new files land.
package batch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"receiptgate/pkg/gate"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const (
	debounceTick   = 250 * time.Millisecond
	debounceStable = 300 * time.Millisecond
)

// Options tunes a Validator.
type Options struct {
	// Workers is the pool size; <= 0 uses NumCPU.
	Workers int
	// SortDir, when set, receives every validated file: accepted/<name> or
	// rejected/<REASON>/<name>.
	SortDir string
}

// Result is the verdict for one file.
type Result struct {
	Name    string       `json:"name"`
	Verdict gate.Verdict `json:"verdict"`
}

// Summary counts the outcomes of a scan.
type Summary struct {
	Total    int                 `json:"total"`
	Accepted int                 `json:"accepted"`
	Rejected map[gate.Reason]int `json:"rejected"`
}

func (s *Summary) add(v gate.Verdict) {
	s.Total++
	if v.OK {
		s.Accepted++
		return
	}
	if s.Rejected == nil {
		s.Rejected = map[gate.Reason]int{}
	}
	s.Rejected[v.Reason]++
}

// Validator runs one pipeline over the images of a directory.
type Validator struct {
	dir  string
	p    *gate.Pipeline
	opts Options

	mu sync.Mutex
	// seen holds the size and mtime each file had when it was last claimed,
	// so a scan and a watch never validate the same content twice.
	seen map[string]stamp
}

type stamp struct {
	size int64
	mod  time.Time
}

// New returns a validator for dir.
func New(dir string, p *gate.Pipeline, opts Options) *Validator {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Validator{dir: dir, p: p, opts: opts, seen: map[string]stamp{}}
}

// claim reports whether name should be validated now. Files that vanished
// or are unchanged since their last claim are skipped.
func (v *Validator) claim(name string) (bool, error) {
	fi, err := os.Stat(filepath.Join(v.dir, name))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return true, err
	}
	st := stamp{size: fi.Size(), mod: fi.ModTime()}
	v.mu.Lock()
	defer v.mu.Unlock()
	if prev, ok := v.seen[name]; ok && prev.size == st.size && prev.mod.Equal(st.mod) {
		return false, nil
	}
	v.seen[name] = st
	return true, nil
}

func (v *Validator) forget(name string) {
	v.mu.Lock()
	delete(v.seen, name)
	v.mu.Unlock()
}

// Scan validates every supported file currently in the directory. Files this
// validator already saw with the same size and mtime are left out.
func (v *Validator) Scan(ctx context.Context) (Summary, []Result, error) {
	files, err := ListImageFiles(v.dir)
	if err != nil {
		return Summary{}, nil, err
	}
	log.Info().Str("dir", v.dir).Int("files", len(files)).Int("workers", v.opts.Workers).Msg("scanning")

	in := make(chan string)
	go func() {
		defer close(in)
		for _, f := range files {
			select {
			case in <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	var (
		mu      sync.Mutex
		sum     Summary
		results []Result
	)
	v.runPool(in, func(r Result) {
		mu.Lock()
		sum.add(r.Verdict)
		results = append(results, r)
		mu.Unlock()
	})
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return sum, results, ctx.Err()
}

// ScanAndWatch registers the watcher first and then scans, so files landing
// while the scan runs are picked up by one side or the other. Content
// already validated by the scan is not reported again by the watch.
func (v *Validator) ScanAndWatch(ctx context.Context) (Summary, <-chan Result, error) {
	results, err := v.Watch(ctx)
	if err != nil {
		return Summary{}, nil, err
	}
	sum, _, err := v.Scan(ctx)
	return sum, results, err
}

// Watch validates files as they are created in the directory until ctx is
// done. The watcher is active when Watch returns; the results channel is
// closed after shutdown.
func (v *Validator) Watch(ctx context.Context) (<-chan Result, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(v.dir); err != nil {
		w.Close()
		return nil, err
	}
	log.Info().Str("dir", v.dir).Msg("watching (debounced)")

	fileCh := make(chan string, 256)
	go func() {
		defer close(fileCh)
		defer w.Close()
		// a file is handed over once it has seen no events for debounceStable
		pending := map[string]time.Time{}
		ticker := time.NewTicker(debounceTick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
					continue
				}
				name := filepath.Base(ev.Name)
				if !IsSupportedExt(name) {
					continue
				}
				pending[name] = time.Now()
			case <-ticker.C:
				now := time.Now()
				for name, t := range pending {
					if now.Sub(t) > debounceStable {
						delete(pending, name)
						select {
						case fileCh <- name:
						case <-ctx.Done():
							return
						}
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("watch error")
			}
		}
	}()

	out := make(chan Result, 16)
	go func() {
		defer close(out)
		v.runPool(fileCh, func(r Result) {
			select {
			case out <- r:
			case <-ctx.Done():
			}
		})
	}()
	return out, nil
}

// runPool drains in with the configured number of workers and returns when
// in is closed and every file has been handled.
func (v *Validator) runPool(in <-chan string, emit func(Result)) {
	var wg sync.WaitGroup
	for i := 0; i < v.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range in {
				if r, ok := v.validateFile(name); ok {
					emit(r)
				}
			}
		}()
	}
	wg.Wait()
}

func (v *Validator) validateFile(name string) (Result, bool) {
	path := filepath.Join(v.dir, name)
	ok, err := v.claim(name)
	if !ok {
		log.Debug().Str("file", name).Msg("already validated or gone")
		return Result{}, false
	}
	var (
		verdict gate.Verdict
		data    []byte
	)
	if err == nil {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		verdict = gate.SystemError(err)
	} else {
		verdict = v.p.Check(data)
	}

	evt := log.Info()
	if verdict.Reason == gate.ReasonSystemError {
		evt = log.Error().Str("msg", verdict.Msg)
	}
	evt.Str("file", name).
		Str("profile", v.p.Config().Name).
		Bool("ok", verdict.OK).
		Str("reason", string(verdict.Reason)).
		Interface("metrics", verdict.Metrics).
		Msg("verdict")

	if v.opts.SortDir != "" && err == nil {
		if err := moveSorted(path, v.opts.SortDir, name, verdict); err != nil {
			log.Warn().Err(err).Str("file", name).Msg("sort failed")
		} else {
			v.forget(name)
		}
	}
	return Result{Name: name, Verdict: verdict}, true
}

// ListImageFiles returns the supported image files directly inside dir,
// sorted by name.
func ListImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !IsSupportedExt(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

// IsSupportedExt reports whether name looks like an image the decoder
// handles. Hidden files are skipped so uploads can be staged under a dot
// name and renamed into place.
func IsSupportedExt(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp", ".tif", ".tiff",
		".pgm", ".ppm", ".pbm", ".pam", ".pnm":
		return true
	}
	return false
}

// moveSorted files src under root by outcome. It tries a rename and falls
// back to copy+remove across filesystems.
func moveSorted(src, root, name string, v gate.Verdict) error {
	dir := filepath.Join(root, "accepted")
	if !v.OK {
		dir = filepath.Join(root, "rejected", string(v.Reason))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	dst := filepath.Join(dir, name)
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	return copyRemove(src, dst)
}

func copyRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
