package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/cloudhire/internal/model"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	ls, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	key := ObjectKey(7, "CV.PDF")
	require.NoError(t, ls.Put(ctx, "resumes", key, MIMEPDF, strings.NewReader("%PDF")))

	data, err := ls.Get(ctx, "resumes", key)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))

	_, err = ls.Get(ctx, "resumes", "7/missing.pdf")
	assert.ErrorIs(t, err, ErrNotFound)

	u, err := ls.URL(ctx, "resumes", key)
	require.NoError(t, err)
	assert.Empty(t, u)
}

func TestLocalStoreStaysInsideRoot(t *testing.T) {
	root := t.TempDir()
	ls, err := NewLocalStore(root)
	require.NoError(t, err)

	p, err := ls.path("resumes", "../../etc/passwd")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p, root), "path %s escapes %s", p, root)

	_, err = ls.path("../x", "a.txt")
	assert.Error(t, err)
}

func TestObjectKeyAndBuckets(t *testing.T) {
	assert.Regexp(t, regexp.MustCompile(`^42/[0-9a-f-]{36}\.docx$`), ObjectKey(42, "My Resume.DOCX"))

	for kind, want := range map[model.FileKind]string{
		model.FileResume:     "resumes",
		model.FileTranscript: "transcripts",
		model.FileProject:    "projects",
	} {
		got, err := BucketFor(kind)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := BucketFor("photo")
	assert.Error(t, err)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, MIMEDOCX, ContentType("cv.docx", "application/zip"))
	assert.Equal(t, "text/csv", ContentType("grades.csv", "text/csv"))
	assert.Equal(t, "application/octet-stream", ContentType("blob", ""))
	assert.True(t, Allowed(MIMEPDF))
	assert.False(t, Allowed("application/x-msdownload"))
}

func TestExtractText(t *testing.T) {
	text, err := ExtractText("text/plain; charset=utf-8", []byte("Ada Lovelace\nAnalyst"))
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace\nAnalyst", text)

	_, err = ExtractText("image/png", nil)
	assert.Error(t, err)

	_, err = ExtractText(MIMEPDF, []byte("not a pdf"))
	assert.Error(t, err)
}

func TestStripXML(t *testing.T) {
	in := `<w:body><w:p><w:r><w:t>Hello</w:t></w:r></w:p><w:p><w:r><w:t>World</w:t></w:r></w:p></w:body>`
	assert.Equal(t, "Hello\nWorld", stripXML(in))
}

func TestReadLimited(t *testing.T) {
	_, err := ReadLimited(strings.NewReader(strings.Repeat("x", MaxUploadSize+1)))
	assert.Error(t, err)
	data, err := ReadLimited(strings.NewReader("ok"))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
}

// fakeS3 answers path-style object requests from memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
	puts    []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		f.puts = append(f.puts, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`))
			return
		}
		_, _ = w.Write([]byte(body))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3Store(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{"/hire-resumes/1/cv.txt": "resume text"}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	s, err := NewS3Store(ctx, S3Config{
		Endpoint:     srv.URL,
		AccessKey:    "access",
		SecretKey:    "secret",
		BucketPrefix: "hire-",
	})
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "projects", "1/p.zip", "application/zip", strings.NewReader("zip")))
	fake.mu.Lock()
	assert.Equal(t, []string{"/hire-projects/1/p.zip"}, fake.puts)
	fake.mu.Unlock()

	data, err := s.Get(ctx, "resumes", "1/cv.txt")
	require.NoError(t, err)
	assert.Equal(t, "resume text", string(data))

	_, err = s.Get(ctx, "resumes", "1/none.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	u, err := s.URL(ctx, "resumes", "1/cv.txt")
	require.NoError(t, err)
	assert.Contains(t, u, "/hire-resumes/1/cv.txt")
	assert.Contains(t, u, "X-Amz-Signature=")
}
