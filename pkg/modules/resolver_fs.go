package modules

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// FileSystemResolver resolves relative and absolute specifiers against an
// fs.FS. Canonical paths are slash-separated and rooted at the file system
// root, with a leading "/".
type FileSystemResolver struct {
	name     string
	fs       fs.FS
	priority int
	baseDir  string // host directory the FS is rooted at, for display
	paths    pathRules
}

// NewFileSystemResolver creates a new file system resolver
func NewFileSystemResolver(filesystem fs.FS, baseDir string) *FileSystemResolver {
	cfg := DefaultLoaderConfig()
	return &FileSystemResolver{
		name:     "FileSystem",
		fs:       filesystem,
		priority: 100,
		baseDir:  baseDir,
		paths:    pathRules{extensions: cfg.Extensions, indexFiles: cfg.IndexFiles},
	}
}

// NewOSFileSystemResolver creates a resolver over the OS directory baseDir.
func NewOSFileSystemResolver(baseDir string) *FileSystemResolver {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		abs = baseDir
	}
	r := NewFileSystemResolver(os.DirFS(abs), abs)
	r.name = "OSFileSystem"
	return r
}

func (r *FileSystemResolver) Name() string { return r.name }

func (r *FileSystemResolver) Priority() int { return r.priority }

// CanResolve returns true for "./", "../" and "/" specifiers.
func (r *FileSystemResolver) CanResolve(specifier string) bool {
	return isPathSpecifier(specifier)
}

func (r *FileSystemResolver) Resolve(specifier string, referrer string) (*ResolvedModule, error) {
	if !r.CanResolve(specifier) {
		return nil, fmt.Errorf("%s: unsupported specifier: %w", specifier, ErrNotFound)
	}
	target, err := r.paths.target(specifier, referrer)
	if err != nil {
		return nil, err
	}
	for _, candidate := range r.paths.candidates(target) {
		info, err := fs.Stat(r.fs, candidate)
		if err != nil || info.IsDir() {
			continue
		}
		data, err := fs.ReadFile(r.fs, candidate)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", candidate, err)
		}
		return newResolved(specifier, "/"+candidate, string(data), r.name), nil
	}
	return nil, fmt.Errorf("%s: %w", specifier, ErrNotFound)
}

// HostPath maps a canonical path back to the host file system.
func (r *FileSystemResolver) HostPath(canonical string) string {
	if r.baseDir == "" {
		return canonical
	}
	return filepath.Join(r.baseDir, filepath.FromSlash(strings.TrimPrefix(canonical, "/")))
}

// SetExtensions sets the file extensions to try during resolution
func (r *FileSystemResolver) SetExtensions(extensions []string) {
	r.paths.extensions = extensions
}

// SetIndexFiles sets the index file names to try during resolution
func (r *FileSystemResolver) SetIndexFiles(indexFiles []string) {
	r.paths.indexFiles = indexFiles
}

// SetName renames the resolver; ResolvedModule.Resolver reports it.
func (r *FileSystemResolver) SetName(name string) { r.name = name }

func (r *FileSystemResolver) SetPriority(priority int) {
	r.priority = priority
}

// pathRules turns specifiers into candidate keys: the exact path, the path
// with each extension, then each index file inside it.
type pathRules struct {
	extensions []string
	indexFiles []string
}

func isPathSpecifier(s string) bool {
	return strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../") || strings.HasPrefix(s, "/")
}

// cleanKey normalizes a path to the unrooted slash form fs.FS expects.
func cleanKey(p string) string {
	p = path.Clean("/" + filepath.ToSlash(p))
	return strings.TrimPrefix(p, "/")
}

// target joins specifier onto the directory of referrer. A relative
// specifier with no referrer resolves from the root.
func (pr pathRules) target(specifier, referrer string) (string, error) {
	switch {
	case strings.HasPrefix(specifier, "/"):
		return cleanKey(specifier), nil
	case referrer == "":
		if strings.HasPrefix(specifier, "../") {
			return "", fmt.Errorf("relative specifier %s escapes the module root: %w", specifier, ErrNotFound)
		}
		return cleanKey(specifier), nil
	}
	return cleanKey(path.Join(path.Dir("/"+cleanKey(referrer)), specifier)), nil
}

func (pr pathRules) candidates(target string) []string {
	out := []string{target}
	for _, ext := range pr.extensions {
		if !strings.HasSuffix(target, ext) {
			out = append(out, target+ext)
		}
	}
	for _, idx := range pr.indexFiles {
		if target == "" || target == "." {
			out = append(out, idx)
		} else {
			out = append(out, target+"/"+idx)
		}
	}
	return out
}
