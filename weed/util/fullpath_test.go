package util

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFullPath_Child(t *testing.T) {
	tests := []struct {
		fp   FullPath
		name string
		want FullPath
	}{
		{FullPath("/"), "test.txt", FullPath("/test.txt")},
		{FullPath("/dir"), "test.txt", FullPath("/dir/test.txt")},
		{FullPath("/dir/"), "test.txt", FullPath("/dir/test.txt")},
		{FullPath("/"), "./test.txt", FullPath("/test.txt")},
		{FullPath("/"), "../test.txt", FullPath("/test.txt")},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, tt.fp.Child(tt.name), "Child(%v)", tt.name)
	}
}

func TestFullPath_DirAndName(t *testing.T) {
	tests := []struct {
		fp   FullPath
		dir  string
		name string
	}{
		{FullPath("/"), "/", ""},
		{FullPath("/xxx"), "/", "xxx"},
		{FullPath("/xxx/yyy"), "/xxx", "yyy"},
		{FullPath("/xxx/yyy/"), "/xxx", "yyy"},
	}
	for _, tt := range tests {
		dir, name := tt.fp.DirAndName()
		assert.Equalf(t, tt.dir, dir, "DirAndName(%s)", tt.fp)
		assert.Equalf(t, tt.name, name, "DirAndName(%s)", tt.fp)
	}
	assert.Equal(t, "yyy", FullPath("/xxx/yyy/.").Name())
	assert.Equal(t, "xxx", FullPath("/xxx/yyy/..").Name())
	assert.True(t, FullPath("/..").IsRoot())
	assert.False(t, FullPath("/a").IsRoot())
}

func TestNewFullPath(t *testing.T) {
	invalidPathUrl, _ := url.Parse("http://localhost:8888/%B2%E2%CA%D4/%B2%E2%CA%D4/%B2%E2.txt")

	tests := []struct {
		names []string
		want  FullPath
	}{
		{[]string{invalidPathUrl.Path}, "/?/?/?.txt"},
		{[]string{""}, "/"},
		{[]string{"/."}, "/"},
		{[]string{"/.."}, "/"},
		{[]string{"xxx", "yyy"}, "/xxx/yyy"},
		{[]string{"/xxx/", "./yyy"}, "/xxx/yyy"},
		{[]string{"/xxx/", "../yyy"}, "/yyy"},
		{[]string{"/xxx/", "/yyy"}, "/xxx/yyy"},
		{[]string{"C:\\tmp\\a"}, "/C:/tmp/a"},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, NewFullPath(tt.names...), "NewFullPath(%v)", tt.names)
	}
}
