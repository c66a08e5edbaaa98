package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chulingera2025/tron-launcher/internal/utils"
	"github.com/klauspost/compress/gzip"
)

// ExtractFile unpacks a .tgz archive on disk into destDir.
func ExtractFile(ctx context.Context, archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()
	return Extract(ctx, f, destDir)
}

// Extract decompresses a gzip tar stream into destDir. Every entry must
// resolve inside destDir; the first one that does not stops the extraction
// with a PathViolationError.
func Extract(ctx context.Context, r io.Reader, destDir string) error {
	log := utils.GetLogger("archive/extract")
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}
	root, err := filepath.EvalSymlinks(destDir)
	if err != nil {
		return fmt.Errorf("failed to resolve destination: %w", err)
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve destination: %w", err)
	}

	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer gz.Close()
	tr := tar.NewReader(gz)

	var entries int
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read tar entry: %w", err)
		}
		if err := checkEntryName(hdr.Name); err != nil {
			return err
		}
		target, err := resolveTarget(root, hdr.Name)
		if err != nil {
			return err
		}
		if err := writeEntry(root, target, hdr, tr); err != nil {
			return err
		}
		entries++
		if entries%10000 == 0 {
			log.Debug().Int("entries", entries).Msg("extraction progress")
		}
	}
	log.Info().Str("dest", destDir).Int("entries", entries).Msg("extraction complete")
	return nil
}

// checkEntryName rejects absolute names and parent-directory components
// before anything is created on disk.
func checkEntryName(name string) error {
	if name == "" {
		return &utils.PathViolationError{Entry: name, Reason: "has an empty name"}
	}
	if strings.HasPrefix(name, "/") || filepath.IsAbs(name) {
		return &utils.PathViolationError{Entry: name, Reason: "is an absolute path"}
	}
	for _, part := range strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return &utils.PathViolationError{Entry: name, Reason: "contains a parent directory component"}
		}
	}
	return nil
}

// resolveTarget returns the on-disk path for an entry after resolving
// symlinks already present under root. Missing parents are created only
// once their nearest existing ancestor is known to be inside root.
func resolveTarget(root, name string) (string, error) {
	full := filepath.Join(root, filepath.FromSlash(name))
	if _, err := os.Lstat(full); err == nil {
		resolved, err := filepath.EvalSymlinks(full)
		if err != nil {
			// dangling symlink: judge it by its parent
			return resolveParent(root, name, full)
		}
		if !within(root, resolved) {
			return "", &utils.PathViolationError{Entry: name, Reason: "resolves outside the destination"}
		}
		return full, nil
	}
	return resolveParent(root, name, full)
}

func resolveParent(root, name, full string) (string, error) {
	parent := filepath.Dir(full)
	ancestor := parent
	for {
		if _, err := os.Lstat(ancestor); err == nil {
			break
		}
		next := filepath.Dir(ancestor)
		if next == ancestor {
			break
		}
		ancestor = next
	}
	resolved, err := filepath.EvalSymlinks(ancestor)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", ancestor, err)
	}
	if !within(root, resolved) {
		return "", &utils.PathViolationError{Entry: name, Reason: "resolves outside the destination"}
	}
	if err := os.MkdirAll(parent, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", parent, err)
	}
	resolved, err = filepath.EvalSymlinks(parent)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", parent, err)
	}
	if !within(root, resolved) {
		return "", &utils.PathViolationError{Entry: name, Reason: "resolves outside the destination"}
	}
	return filepath.Join(resolved, filepath.Base(full)), nil
}

// checkLinkTarget rejects symlinks whose target is absolute or climbs out
// of root from the link's directory.
func checkLinkTarget(root, target string, hdr *tar.Header) error {
	link := filepath.FromSlash(hdr.Linkname)
	if link == "" || filepath.IsAbs(link) || strings.HasPrefix(hdr.Linkname, "/") {
		return &utils.PathViolationError{Entry: hdr.Name, Reason: "links to an absolute path"}
	}
	if !within(root, filepath.Join(filepath.Dir(target), link)) {
		return &utils.PathViolationError{Entry: hdr.Name, Reason: "links outside the destination"}
	}
	return nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func writeEntry(root, target string, hdr *tar.Header, r io.Reader) error {
	log := utils.GetLogger("archive/extract")
	mode := hdr.FileInfo().Mode().Perm()
	switch hdr.Typeflag {
	case tar.TypeDir:
		if err := os.MkdirAll(target, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", target, err)
		}
	case tar.TypeReg:
		os.Remove(target)
		f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode|0200)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", target, err)
		}
		if _, err := io.Copy(f, r); err != nil {
			f.Close()
			return fmt.Errorf("failed to write %s: %w", target, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to close %s: %w", target, err)
		}
	case tar.TypeSymlink:
		if err := checkLinkTarget(root, target, hdr); err != nil {
			return err
		}
		os.Remove(target)
		if err := os.Symlink(hdr.Linkname, target); err != nil {
			return fmt.Errorf("failed to create symlink %s: %w", target, err)
		}
		if resolved, err := filepath.EvalSymlinks(target); err == nil && !within(root, resolved) {
			os.Remove(target)
			return &utils.PathViolationError{Entry: hdr.Name, Reason: "links outside the destination"}
		}
	case tar.TypeLink:
		if err := checkEntryName(hdr.Linkname); err != nil {
			return err
		}
		source, err := resolveTarget(root, hdr.Linkname)
		if err != nil {
			return err
		}
		os.Remove(target)
		if err := os.Link(source, target); err != nil {
			return fmt.Errorf("failed to create hard link %s: %w", target, err)
		}
	default:
		log.Debug().Str("entry", hdr.Name).Int("type", int(hdr.Typeflag)).Msg("skipping unsupported entry type")
	}
	return nil
}
