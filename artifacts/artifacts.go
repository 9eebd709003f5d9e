// Package artifacts downloads and caches the circuit files needed to prove
// poll joining: the wasm witness generator, the Groth16 proving key (zkey)
// and the verification key. Downloads resume from a .partial file, are
// checked against a sha256 manifest and fall back across sources.
package artifacts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/vocdoni/maci-voter/log"
	"github.com/vocdoni/maci-voter/types"
	"golang.org/x/sync/errgroup"
)

// ManifestName is the object listing the sha256 of every artifact.
const ManifestName = "manifest.json"

const progressLogInterval = 10 * time.Second

// ErrHashMismatch is returned when downloaded content does not match the
// manifest. The partial file is removed so the next attempt starts over.
var ErrHashMismatch = errors.New("artifact hash mismatch")

// Request selects the artifact set for a poll.
type Request struct {
	Testing        bool
	StateTreeDepth uint8
}

// Artifacts holds the local paths of a downloaded set.
type Artifacts struct {
	Zkey            string
	Wasm            string
	VerificationKey string
}

// Names returns the object names of the poll joining artifacts for req.
func Names(req Request) (zkey, wasm, vkey string) {
	base := fmt.Sprintf("PollJoining_%d", req.StateTreeDepth)
	if req.Testing {
		base += "_test"
	}
	return base + ".zkey", base + ".wasm", base + "_vk.json"
}

// Source serves artifact objects by name. Open returns the content starting
// at offset, the full object size when known (or -1), and whether the
// source honoured the offset.
type Source interface {
	Name() string
	Open(ctx context.Context, object string, offset int64) (body io.ReadCloser, size int64, resumed bool, err error)
}

// ProgressFunc receives download progress of a single object.
type ProgressFunc func(object string, done, total int64)

// Config configures a Fetcher.
type Config struct {
	// Dir is the cache directory.
	Dir string
	// CheckHashes enables verification against the manifest.
	CheckHashes bool
	// Progress, if set, is called as downloads advance.
	Progress ProgressFunc
}

// Fetcher implements the artifact fetcher of the join flow.
type Fetcher struct {
	cfg     Config
	sources []Source
}

// New returns a Fetcher trying sources in order.
func New(cfg Config, sources ...Source) (*Fetcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("artifacts: no cache directory")
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("artifacts: no sources")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifacts: create cache dir: %w", err)
	}
	return &Fetcher{cfg: cfg, sources: sources}, nil
}

// Fetch returns the local paths of the artifacts for req, downloading
// whatever is not cached yet. The three files are fetched concurrently.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*Artifacts, error) {
	if req.StateTreeDepth == 0 {
		return nil, types.NotReady("state tree depth")
	}
	done := log.Elapsed("artifacts fetched", "depth", req.StateTreeDepth, "testing", req.Testing)
	defer done()

	var manifest map[string]string
	if f.cfg.CheckHashes {
		var err error
		if manifest, err = f.manifest(ctx); err != nil {
			return nil, err
		}
	}

	zkey, wasm, vkey := Names(req)
	out := &Artifacts{
		Zkey:            filepath.Join(f.cfg.Dir, zkey),
		Wasm:            filepath.Join(f.cfg.Dir, wasm),
		VerificationKey: filepath.Join(f.cfg.Dir, vkey),
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range []string{zkey, wasm, vkey} {
		g.Go(func() error {
			var hash []byte
			if manifest != nil {
				h, ok := manifest[name]
				if !ok {
					return types.NewBoundaryError(types.CodeUnknown, "artifact "+name,
						fmt.Errorf("not listed in %s", ManifestName))
				}
				decoded, err := hex.DecodeString(h)
				if err != nil {
					return fmt.Errorf("manifest hash of %s: %w", name, err)
				}
				hash = decoded
			}
			return f.ensure(gctx, name, hash)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// manifest loads the cached manifest or downloads it.
func (f *Fetcher) manifest(ctx context.Context) (map[string]string, error) {
	path := filepath.Join(f.cfg.Dir, ManifestName)
	if _, err := os.Stat(path); err != nil {
		if err := f.ensure(ctx, ManifestName, nil); err != nil {
			return nil, err
		}
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m := map[string]string{}
	if err := json.Unmarshal(content, &m); err != nil {
		// a corrupt manifest is dropped so the retry downloads it again
		_ = os.Remove(path)
		return nil, types.NewBoundaryError(types.CodeNetwork, "manifest", fmt.Errorf("decode: %w", err))
	}
	return m, nil
}

// ensure makes sure object is in the cache with the given hash, trying each
// source in turn.
func (f *Fetcher) ensure(ctx context.Context, object string, hash []byte) error {
	path := filepath.Join(f.cfg.Dir, object)
	if ok, err := cached(path, hash); err != nil {
		return err
	} else if ok {
		log.Debugw("artifact cache hit", "object", object)
		return nil
	}
	var lastErr error
	for _, src := range f.sources {
		err := f.download(ctx, src, object, path, hash)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		log.Warnw("artifact source failed", "source", src.Name(), "object", object, "error", err.Error())
	}
	return types.NewBoundaryError(Code(lastErr), "fetch artifact "+object, lastErr)
}

// cached reports whether path exists and, if hash is set, matches it.
func cached(path string, hash []byte) (bool, error) {
	fd, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("open %s: %w", path, err)
	}
	defer fd.Close()
	if hash == nil {
		return true, nil
	}
	hasher := sha256.New()
	if _, err := io.Copy(hasher, fd); err != nil {
		return false, fmt.Errorf("hash %s: %w", path, err)
	}
	if !bytes.Equal(hasher.Sum(nil), hash) {
		log.Warnw("cached artifact has a stale hash, downloading again", "path", path)
		return false, nil
	}
	return true, nil
}

// progressReader wraps an io.Reader and keeps track of the total bytes read.
type progressReader struct {
	reader io.Reader
	total  int64 // updated atomically
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	atomic.AddInt64(&pr.total, int64(n))
	return n, err
}

// download fetches object from src into path, resuming a previous partial
// download when the source supports it.
func (f *Fetcher) download(ctx context.Context, src Source, object, path string, hash []byte) error {
	partialPath := path + ".partial"
	var startByte int64
	if info, err := os.Stat(partialPath); err == nil {
		startByte = info.Size()
	}
	body, size, resumed, err := src.Open(ctx, object, startByte)
	if err != nil {
		return err
	}
	defer body.Close()

	fileMode := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if startByte > 0 && resumed {
		fileMode = os.O_APPEND | os.O_WRONLY
	} else {
		startByte = 0
	}
	fd, err := os.OpenFile(partialPath, fileMode, 0o644)
	if err != nil {
		return fmt.Errorf("error opening artifact file: %w", err)
	}
	defer fd.Close()

	hasher := sha256.New()
	if startByte > 0 {
		existing, err := os.Open(partialPath)
		if err != nil {
			return fmt.Errorf("reopen partial file: %w", err)
		}
		_, err = io.CopyN(hasher, existing, startByte)
		existing.Close()
		if err != nil {
			return fmt.Errorf("hash partial file: %w", err)
		}
		log.Infow("resuming artifact download", "object", object, "offset", startByte, "source", src.Name())
	}

	pr := &progressReader{reader: body}
	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(io.MultiWriter(fd, hasher), pr)
		done <- err
	}()
	ticker := time.NewTicker(progressLogInterval)
	defer ticker.Stop()
	report := func() {
		total := startByte + atomic.LoadInt64(&pr.total)
		if f.cfg.Progress != nil {
			f.cfg.Progress(object, total, size)
		}
		log.Debugw("download artifacts", "object", object,
			"downloaded", fmt.Sprintf("%.2fMiB", float64(total)/(1024*1024)),
			"size", size)
	}
wait:
	for {
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("error copying data to file: %w", err)
			}
			break wait
		case <-ticker.C:
			report()
		}
	}
	report()

	if hash != nil {
		if computed := hasher.Sum(nil); !bytes.Equal(computed, hash) {
			_ = os.Remove(partialPath)
			return fmt.Errorf("%w: %s expected %x, got %x", ErrHashMismatch, object, hash, computed)
		}
	}
	if err := fd.Close(); err != nil {
		return fmt.Errorf("close %s: %w", partialPath, err)
	}
	if err := os.Rename(partialPath, path); err != nil {
		return fmt.Errorf("error renaming file: %w", err)
	}
	log.Infow("artifact downloaded", "object", object, "source", src.Name())
	return nil
}
