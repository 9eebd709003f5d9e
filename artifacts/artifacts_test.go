package artifacts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/maci-voter/types"
)

var testReq = Request{Testing: true, StateTreeDepth: 10}

// artifactServer serves named objects and a manifest of their hashes,
// recording the Range headers it receives.
type artifactServer struct {
	*httptest.Server
	mu      sync.Mutex
	files   map[string][]byte
	ranges  map[string]string
	hits    map[string]int
	failAll bool
}

func newArtifactServer(t *testing.T, files map[string][]byte) *artifactServer {
	s := &artifactServer{files: map[string][]byte{}, ranges: map[string]string{}, hits: map[string]int{}}
	manifest := map[string]string{}
	for name, content := range files {
		s.files[name] = content
		sum := sha256.Sum256(content)
		manifest[name] = hex.EncodeToString(sum[:])
	}
	m, _ := json.Marshal(manifest)
	s.files[ManifestName] = m
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		name := strings.TrimPrefix(r.URL.Path, "/")
		s.hits[name]++
		s.ranges[name] = r.Header.Get("Range")
		content, ok := s.files[name]
		fail := s.failAll
		s.mu.Unlock()
		if fail {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		if !ok {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, name, time.Now(), bytes.NewReader(content))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *artifactServer) setFailAll(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAll = v
}

func (s *artifactServer) hitCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[name]
}

func (s *artifactServer) rangeHeader(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ranges[name]
}

func testFiles() map[string][]byte {
	zkey, wasm, vkey := Names(testReq)
	return map[string][]byte{
		zkey: bytes.Repeat([]byte("z"), 4096),
		wasm: []byte("wasm module"),
		vkey: []byte(`{"protocol":"groth16"}`),
	}
}

func TestNames(t *testing.T) {
	c := qt.New(t)
	zkey, wasm, vkey := Names(Request{StateTreeDepth: 20})
	c.Assert(zkey, qt.Equals, "PollJoining_20.zkey")
	c.Assert(wasm, qt.Equals, "PollJoining_20.wasm")
	c.Assert(vkey, qt.Equals, "PollJoining_20_vk.json")
	zkey, _, _ = Names(testReq)
	c.Assert(zkey, qt.Equals, "PollJoining_10_test.zkey")
}

func TestFetchDownloadsAndCaches(t *testing.T) {
	c := qt.New(t)
	files := testFiles()
	srv := newArtifactServer(t, files)
	src, err := NewHTTPSource(srv.URL)
	c.Assert(err, qt.IsNil)

	var progressMu sync.Mutex
	progress := map[string]int64{}
	f, err := New(Config{Dir: t.TempDir(), CheckHashes: true, Progress: func(object string, done, _ int64) {
		progressMu.Lock()
		progress[object] = done
		progressMu.Unlock()
	}}, src)
	c.Assert(err, qt.IsNil)

	arts, err := f.Fetch(context.Background(), testReq)
	c.Assert(err, qt.IsNil)
	content, err := os.ReadFile(arts.Zkey)
	c.Assert(err, qt.IsNil)
	zkey, wasm, _ := Names(testReq)
	c.Assert(content, qt.DeepEquals, files[zkey])
	c.Assert(filepath.Base(arts.Wasm), qt.Equals, wasm)
	c.Assert(progress[zkey], qt.Equals, int64(len(files[zkey])))

	// second fetch is served from the cache
	_, err = f.Fetch(context.Background(), testReq)
	c.Assert(err, qt.IsNil)
	c.Assert(srv.hitCount(zkey), qt.Equals, 1)
	c.Assert(srv.hitCount(ManifestName), qt.Equals, 1)
}

func TestFetchResumesPartialDownload(t *testing.T) {
	c := qt.New(t)
	files := testFiles()
	srv := newArtifactServer(t, files)
	src, err := NewHTTPSource(srv.URL)
	c.Assert(err, qt.IsNil)
	dir := t.TempDir()
	zkey, _, _ := Names(testReq)
	c.Assert(os.WriteFile(filepath.Join(dir, zkey+".partial"), files[zkey][:1000], 0o644), qt.IsNil)

	f, err := New(Config{Dir: dir, CheckHashes: true}, src)
	c.Assert(err, qt.IsNil)
	arts, err := f.Fetch(context.Background(), testReq)
	c.Assert(err, qt.IsNil)
	c.Assert(srv.rangeHeader(zkey), qt.Equals, "bytes=1000-")
	content, err := os.ReadFile(arts.Zkey)
	c.Assert(err, qt.IsNil)
	c.Assert(content, qt.DeepEquals, files[zkey])
	_, err = os.Stat(filepath.Join(dir, zkey+".partial"))
	c.Assert(os.IsNotExist(err), qt.IsTrue)
}

func TestFetchHashMismatch(t *testing.T) {
	c := qt.New(t)
	files := testFiles()
	srv := newArtifactServer(t, files)
	zkey, _, _ := Names(testReq)
	srv.mu.Lock()
	srv.files[zkey] = []byte("tampered")
	srv.mu.Unlock()
	src, err := NewHTTPSource(srv.URL)
	c.Assert(err, qt.IsNil)
	dir := t.TempDir()

	f, err := New(Config{Dir: dir, CheckHashes: true}, src)
	c.Assert(err, qt.IsNil)
	_, err = f.Fetch(context.Background(), testReq)
	c.Assert(err, qt.ErrorIs, ErrHashMismatch)
	c.Assert(types.CodeOf(err), qt.Equals, types.CodeNetwork)
	_, err = os.Stat(filepath.Join(dir, zkey+".partial"))
	c.Assert(os.IsNotExist(err), qt.IsTrue)
}

func TestFetchFallsBackToNextSource(t *testing.T) {
	c := qt.New(t)
	files := testFiles()
	broken := newArtifactServer(t, files)
	broken.setFailAll(true)
	good := newArtifactServer(t, files)
	first, err := NewHTTPSource(broken.URL)
	c.Assert(err, qt.IsNil)
	second, err := NewHTTPSource(good.URL)
	c.Assert(err, qt.IsNil)

	f, err := New(Config{Dir: t.TempDir(), CheckHashes: true}, first, second)
	c.Assert(err, qt.IsNil)
	_, err = f.Fetch(context.Background(), testReq)
	c.Assert(err, qt.IsNil)
}

func TestFetchAllSourcesDown(t *testing.T) {
	c := qt.New(t)
	srv := newArtifactServer(t, testFiles())
	srv.setFailAll(true)
	src, err := NewHTTPSource(srv.URL)
	c.Assert(err, qt.IsNil)

	f, err := New(Config{Dir: t.TempDir()}, src)
	c.Assert(err, qt.IsNil)
	_, err = f.Fetch(context.Background(), testReq)
	c.Assert(err, qt.IsNotNil)
	c.Assert(types.CodeOf(err), qt.Equals, types.CodeNetwork)
}

func TestFetchWithoutDepthIsNotReady(t *testing.T) {
	c := qt.New(t)
	src, err := NewHTTPSource("http://127.0.0.1:1")
	c.Assert(err, qt.IsNil)
	f, err := New(Config{Dir: t.TempDir()}, src)
	c.Assert(err, qt.IsNil)
	_, err = f.Fetch(context.Background(), Request{})
	c.Assert(err, qt.ErrorIs, types.ErrNotReady)
}

func TestS3Source(t *testing.T) {
	c := qt.New(t)
	files := testFiles()
	zkey, _, _ := Names(testReq)
	// path-style requests arrive as /<space>/<bucket>/<object>
	prefixed := map[string][]byte{}
	for name, content := range files {
		prefixed["circuits/dev/"+name] = content
	}
	srv := newArtifactServer(t, prefixed)

	src, err := NewS3Source(context.Background(), S3Config{
		Enabled:   true,
		HostBase:  srv.URL,
		AccessKey: "key",
		SecretKey: "secret",
		Space:     "circuits",
		Bucket:    "dev",
	})
	c.Assert(err, qt.IsNil)
	c.Assert(src.Name(), qt.Equals, "s3://circuits/dev")

	f, err := New(Config{Dir: t.TempDir()}, src)
	c.Assert(err, qt.IsNil)
	arts, err := f.Fetch(context.Background(), testReq)
	c.Assert(err, qt.IsNil)
	content, err := os.ReadFile(arts.Zkey)
	c.Assert(err, qt.IsNil)
	c.Assert(content, qt.DeepEquals, files[zkey])

	_, err = NewS3Source(context.Background(), S3Config{})
	c.Assert(err, qt.IsNotNil)
}

func TestContentRangeSize(t *testing.T) {
	c := qt.New(t)
	c.Assert(contentRangeSize("bytes 100-199/200", 0), qt.Equals, int64(200))
	c.Assert(contentRangeSize("bytes 100-199/*", 7), qt.Equals, int64(7))
	c.Assert(contentRangeSize("", 7), qt.Equals, int64(7))
}

func TestCode(t *testing.T) {
	c := qt.New(t)
	c.Assert(Code(context.DeadlineExceeded), qt.Equals, types.CodeTimeout)
	c.Assert(Code(&StatusError{URL: "https://example.org/a.zkey", StatusCode: 503}), qt.Equals, types.CodeNetwork)
	c.Assert(Code(fmt.Errorf("get object: %w", &smithy.GenericAPIError{Code: "NoSuchKey"})), qt.Equals, types.CodeNetwork)
	c.Assert(Code(ErrHashMismatch), qt.Equals, types.CodeNetwork)
	c.Assert(Code(errors.New("disk full")), qt.Equals, types.CodeUnknown)

	c.Assert(isInvalidRange(&smithy.GenericAPIError{Code: "InvalidRange"}), qt.IsTrue)
	c.Assert(isInvalidRange(&StatusError{StatusCode: 416}), qt.IsTrue)
	c.Assert(isInvalidRange(&StatusError{StatusCode: 404}), qt.IsFalse)
}
