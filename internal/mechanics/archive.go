package mechanics

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var vcsDirs = map[string]bool{".bzr": true, ".git": true, ".hg": true, ".svn": true}

// modTimeZero mirrors tar_reset's mtime=0 (the Unix epoch), used for
// every entry so two builds of identical content produce byte-identical
// tarballs.
var modTimeZero = time.Unix(0, 0)

// Archiver is the filesystem-and-archive-format implementation of
// hooks.ArchiveIO.
type Archiver struct{}

func NewArchiver() *Archiver { return &Archiver{} }

func (a *Archiver) ExtractTarGz(src, destDir string) error {
	f, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "opening %s", src)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "reading gzip stream of %s", src)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "reading tar entry in %s", src)
		}
		target := filepath.Join(destDir, hdr.Name)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) && target != filepath.Clean(destDir) {
			return errors.Errorf("tar entry %q escapes destination %s", hdr.Name, destDir)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
}

func (a *Archiver) ExtractZip(src, destDir string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return errors.Wrapf(err, "opening %s", src)
	}
	defer r.Close()

	for _, f := range r.File {
		target := filepath.Join(destDir, f.Name)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) && target != filepath.Clean(destDir) {
			return errors.Errorf("zip entry %q escapes destination %s", f.Name, destDir)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, f.Mode())
		if err != nil {
			rc.Close()
			return err
		}
		_, copyErr := io.Copy(out, rc)
		rc.Close()
		out.Close()
		if copyErr != nil {
			return copyErr
		}
	}
	return nil
}

// WheelMetadata extracts "*.dist-info/METADATA" from a wheel's zip
// central directory, the fallback path Candidate.Metadata takes when no
// PEP 658 sidecar is available.
func (a *Archiver) WheelMetadata(wheelPath string) ([]byte, error) {
	r, err := zip.OpenReader(wheelPath)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", wheelPath)
	}
	defer r.Close()

	for _, f := range r.File {
		if strings.HasSuffix(f.Name, ".dist-info/METADATA") {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, errors.Errorf("no *.dist-info/METADATA entry found in %s", wheelPath)
}

// ReproducibleTar packs srcDir into destPath as a gzip-compressed tar
// with deterministic entry order and reset ownership/mtime/mode, the Go
// analogue of tarballs.py's tar_reproducible: sorted walk order, uid/gid
// zeroed, mtime zeroed, mode normalized to 0755 (dirs and executables)
// or 0644, VCS directories excluded.
func (a *Archiver) ReproducibleTar(srcDir, destPath string) error {
	out, err := os.Create(destPath)
	if err != nil {
		return errors.Wrapf(err, "creating %s", destPath)
	}
	defer out.Close()
	gz := gzip.NewWriter(out)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	var paths []string
	err = filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && vcsDirs[d.Name()] {
			return filepath.SkipDir
		}
		if path == srcDir {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(paths)

	for _, path := range paths {
		info, err := os.Lstat(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = rel
		hdr.Uid, hdr.Gid = 0, 0
		hdr.Uname, hdr.Gname = "root", "root"
		hdr.ModTime = modTimeZero
		if info.IsDir() || info.Mode()&0o100 != 0 {
			hdr.Mode = 0o755
		} else {
			hdr.Mode = 0o644
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			_, copyErr := io.Copy(tw, f)
			f.Close()
			if copyErr != nil {
				return copyErr
			}
		}
	}
	return nil
}
