// Package source indexes the source packages of the application being debugged.
//
// The index is built by an external scanner; this package only answers the
// lookups the adapter needs: which package lives in a directory, and where a
// package named by the runtime lives on disk.
package source

import (
	"path/filepath"
	"sort"
	"strings"
)

// Extension is the extension of debuggable source files.
const Extension = ".java"

// Package is one source package.
type Package struct {
	// Name is the dotted package name, e.g. "com.example.app".
	Name string `yaml:"name"`

	// Dir is the directory holding the package's files.
	Dir string `yaml:"dir"`

	// Root is the source root the package path is relative to.
	Root string `yaml:"root"`
}

// Packages is an immutable index of source packages.
type Packages struct {
	byName map[string]Package
	byDir  map[string]Package
}

// NewPackages builds an index. Later entries win on duplicate names or dirs.
func NewPackages(pkgs ...Package) *Packages {
	p := &Packages{
		byName: make(map[string]Package, len(pkgs)),
		byDir:  make(map[string]Package, len(pkgs)),
	}
	for _, pkg := range pkgs {
		pkg.Dir = filepath.Clean(pkg.Dir)
		pkg.Root = filepath.Clean(pkg.Root)
		p.byName[pkg.Name] = pkg
		p.byDir[pkg.Dir] = pkg
	}
	return p
}

// Len returns the number of packages.
func (p *Packages) Len() int {
	if p == nil {
		return 0
	}
	return len(p.byName)
}

// Lookup returns the package with the given dotted name.
func (p *Packages) Lookup(name string) (Package, bool) {
	if p == nil {
		return Package{}, false
	}
	pkg, ok := p.byName[name]
	return pkg, ok
}

// ForDir returns the package whose directory is dir.
func (p *Packages) ForDir(dir string) (Package, bool) {
	if p == nil {
		return Package{}, false
	}
	pkg, ok := p.byDir[filepath.Clean(dir)]
	return pkg, ok
}

// Names returns the package names in sorted order.
func (p *Packages) Names() []string {
	if p == nil {
		return nil
	}
	names := make([]string, 0, len(p.byName))
	for name := range p.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve maps an absolute source file to the agent's relative path, which is
// rooted at the package's source root and starts with a separator, e.g.
// "/com/example/app/Main.java". It reports false for files outside every known
// package or without the source extension.
func (p *Packages) Resolve(file string) (string, bool) {
	if !strings.HasSuffix(file, Extension) {
		return "", false
	}
	pkg, ok := p.ForDir(filepath.Dir(file))
	if !ok {
		return "", false
	}
	rel := strings.TrimPrefix(filepath.Clean(file), pkg.Root)
	if rel == filepath.Clean(file) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
