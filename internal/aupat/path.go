package aupat

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// Path is a resolved absolute path with the stat info captured at
// resolution time. FilesystemManager.Resolve is the only producer outside
// tests; it rejects symlinks and special files.
type Path struct {
	abs   string
	isDir bool
	info  fs.FileInfo
}

// NewPath creates a Path from its components.
func NewPath(abs string, isDir bool, info fs.FileInfo) *Path {
	return &Path{abs: abs, isDir: isDir, info: info}
}

func (p *Path) String() string    { return p.abs }
func (p *Path) IsDir() bool       { return p.isDir }
func (p *Path) Info() fs.FileInfo { return p.info }

// Ext returns the lowercased extension without the leading dot.
func (p *Path) Ext() string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(p.abs), "."))
}
