package util

import (
	"path"
	"strings"
)

// FullPath is an absolute, cleaned path in the namespace, e.g. /dir/file
type FullPath string

func NewFullPath(name ...string) FullPath {
	return FullPath(Join(name...))
}

func (fp FullPath) DirAndName() (string, string) {
	dir, name := path.Split(clearName(string(fp)))
	if dir == "/" {
		return dir, name
	}
	if len(dir) < 1 {
		return "/", ""
	}
	return dir[:len(dir)-1], name
}

func (fp FullPath) Name() string {
	_, name := fp.DirAndName()
	return name
}

func (fp FullPath) Child(name string) FullPath {
	return NewFullPath(string(fp), name)
}

func (fp FullPath) IsRoot() bool {
	return clearName(string(fp)) == "/"
}

func Join(names ...string) string {
	return clearName(path.Join(names...))
}

func clearName(name string) string {
	name = strings.ToValidUTF8(name, "?")
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Clean(name)
	if name == "." {
		name = "/"
	}
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	return name
}
