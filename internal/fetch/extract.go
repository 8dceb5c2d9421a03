package fetch

import (
	"archive/tar"
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/goplus/upsync/internal/fault"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zipMagic  = []byte("PK\x03\x04")
)

// extract unpacks the archive file into dir. The format is detected from
// the leading bytes: gzip-compressed tar, zip, or plain tar.
func extract(archive, dir string) error {
	f, err := os.Open(archive)
	if err != nil {
		return fault.New(fault.Filesystem, "open", archive, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	head, _ := br.Peek(4)
	switch {
	case bytes.HasPrefix(head, zipMagic):
		info, err := f.Stat()
		if err != nil {
			return fault.New(fault.Filesystem, "stat", archive, err)
		}
		return extractZip(f, info.Size(), dir)
	case bytes.HasPrefix(head, gzipMagic):
		gz, err := gzip.NewReader(br)
		if err != nil {
			return fault.New(fault.Layout, "extract", archive, err)
		}
		defer gz.Close()
		return extractTar(gz, dir)
	}
	return extractTar(br, dir)
}

func extractTar(r io.Reader, dir string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fault.New(fault.Layout, "extract", dir, fmt.Errorf("reading tar entry: %w", err))
		}
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}
		name, err := entryName(hdr.Name)
		if err != nil {
			return fault.New(fault.Layout, "extract", hdr.Name, err)
		}
		if err := noLinkParents(dir, name); err != nil {
			return fault.New(fault.Layout, "extract", hdr.Name, err)
		}
		target := filepath.Join(dir, filepath.FromSlash(name))

		switch hdr.Typeflag {
		case tar.TypeDir:
			err = os.MkdirAll(target, 0o755)
		case tar.TypeReg:
			err = writeFile(target, tr, hdr.FileInfo().Mode().Perm())
		case tar.TypeSymlink:
			if err := checkLink(name, hdr.Linkname); err != nil {
				return fault.New(fault.Layout, "extract", hdr.Name, err)
			}
			err = symlink(hdr.Linkname, target)
		case tar.TypeLink:
			linked, lerr := entryName(hdr.Linkname)
			if lerr == nil {
				lerr = noLinkParents(dir, linked)
			}
			if lerr != nil {
				return fault.New(fault.Layout, "extract", hdr.Name, lerr)
			}
			err = copyLinked(filepath.Join(dir, filepath.FromSlash(linked)), target)
		default:
			// Devices, fifos and the like have no place in a source tree.
			continue
		}
		if err != nil {
			return fault.New(fault.Filesystem, "extract", target, err)
		}
	}
}

func extractZip(r io.ReaderAt, size int64, dir string) error {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return fault.New(fault.Layout, "extract", dir, err)
	}
	for _, zf := range zr.File {
		name, err := entryName(zf.Name)
		if err != nil {
			return fault.New(fault.Layout, "extract", zf.Name, err)
		}
		if err := noLinkParents(dir, name); err != nil {
			return fault.New(fault.Layout, "extract", zf.Name, err)
		}
		target := filepath.Join(dir, filepath.FromSlash(name))
		mode := zf.Mode()

		switch {
		case mode.IsDir():
			err = os.MkdirAll(target, 0o755)
		case mode&fs.ModeSymlink != 0:
			var link string
			if link, err = readZipLink(zf); err == nil {
				if err := checkLink(name, link); err != nil {
					return fault.New(fault.Layout, "extract", zf.Name, err)
				}
				err = symlink(link, target)
			}
		case mode.IsRegular():
			err = writeZipFile(zf, target)
		default:
			continue
		}
		if err != nil {
			return fault.New(fault.Filesystem, "extract", target, err)
		}
	}
	return nil
}

// entryName returns the cleaned slash-separated name of an archive entry,
// or an error if it would land outside the extraction directory.
func entryName(name string) (string, error) {
	clean := path.Clean(strings.TrimPrefix(name, "./"))
	if clean == "." || !filepath.IsLocal(filepath.FromSlash(clean)) {
		return "", fmt.Errorf("entry %q escapes the archive root", name)
	}
	return clean, nil
}

// checkLink rejects a symlink at name whose target resolves outside the
// extraction directory.
func checkLink(name, link string) error {
	if link == "" || path.IsAbs(link) || filepath.IsAbs(link) {
		return fmt.Errorf("symlink %q points to absolute target %q", name, link)
	}
	if !filepath.IsLocal(filepath.FromSlash(path.Join(path.Dir(name), link))) {
		return fmt.Errorf("symlink %q points outside the archive root", name)
	}
	return nil
}

// noLinkParents rejects entries that would be written through a symlink
// extracted earlier.
func noLinkParents(dir, name string) error {
	p := dir
	for _, elem := range strings.Split(path.Dir(name), "/") {
		if elem == "." {
			break
		}
		p = filepath.Join(p, elem)
		info, err := os.Lstat(p)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("entry %q is below symlink %q", name, elem)
		}
	}
	return nil
}

func symlink(link, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return os.Symlink(link, target)
}

func writeFile(target string, r io.Reader, perm fs.FileMode) (err error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0o644
	}
	if info, err := os.Lstat(target); err == nil && info.Mode()&fs.ModeSymlink != 0 {
		if err := os.Remove(target); err != nil {
			return err
		}
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	_, err = io.Copy(out, r)
	return err
}

func writeZipFile(zf *zip.File, target string) error {
	rc, err := zf.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return writeFile(target, rc, zf.Mode().Perm())
}

func readZipLink(zf *zip.File) (string, error) {
	rc, err := zf.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, 4096))
	return string(data), err
}

// copyLinked materializes a hard link entry as a copy of an already
// extracted file.
func copyLinked(src, target string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	return writeFile(target, in, info.Mode().Perm())
}
