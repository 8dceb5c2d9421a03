package testutil

import (
	"archive/tar"
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// Entry is one archive member. A trailing slash in Name makes a directory;
// a non-empty Link makes a symlink.
type Entry struct {
	Name string
	Body string
	Link string
	Mode int64
}

// Tarball returns a tar archive of entries, gzip-compressed when gz is set.
// Like the archives served by source forges it starts with a pax global
// header.
func Tarball(t testing.TB, gz bool, entries ...Entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	var tw *tar.Writer
	var zw *gzip.Writer
	if gz {
		zw = gzip.NewWriter(&buf)
		tw = tar.NewWriter(zw)
	} else {
		tw = tar.NewWriter(&buf)
	}
	must := func(err error) {
		if err != nil {
			t.Fatalf("write tarball: %v", err)
		}
	}
	must(tw.WriteHeader(&tar.Header{
		Typeflag:   tar.TypeXGlobalHeader,
		Name:       "pax_global_header",
		PAXRecords: map[string]string{"comment": "0123456789abcdef"},
		Format:     tar.FormatPAX,
	}))
	for _, e := range entries {
		hdr := &tar.Header{Name: e.Name, Mode: e.Mode, Format: tar.FormatPAX}
		switch {
		case e.Link != "":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = e.Link
		case len(e.Name) > 0 && e.Name[len(e.Name)-1] == '/':
			hdr.Typeflag = tar.TypeDir
		default:
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(e.Body))
		}
		if hdr.Mode == 0 {
			hdr.Mode = 0o644
			if hdr.Typeflag == tar.TypeDir {
				hdr.Mode = 0o755
			}
		}
		must(tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(e.Body))
			must(err)
		}
	}
	must(tw.Close())
	if zw != nil {
		must(zw.Close())
	}
	return buf.Bytes()
}

// Zip returns a zip archive of entries. Symlinks are not supported.
func Zip(t testing.TB, entries ...Entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.Name)
		if err != nil {
			t.Fatalf("write zip: %v", err)
		}
		if _, err := w.Write([]byte(e.Body)); err != nil {
			t.Fatalf("write zip: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("write zip: %v", err)
	}
	return buf.Bytes()
}

// ServeFiles starts an HTTP server returning files[path] for GET path and
// 404 for anything else. It is closed when the test ends.
func ServeFiles(t testing.TB, files map[string][]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}
