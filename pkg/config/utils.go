package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"text/template"
)

// ErrIsDirectory 配置路径指向目录
var ErrIsDirectory = errors.New("config: path is a directory")

// expandPath 展开路径模板中的 {{.AppName}}、{{.ExecDir}}
func expandPath(tpl string, vars map[string]string) (string, error) {
	t, err := template.New("path").Option("missingkey=error").Parse(tpl)
	if err != nil {
		return "", fmt.Errorf("parse path template %q: %w", tpl, err)
	}
	var sb strings.Builder
	if err := t.Execute(&sb, vars); err != nil {
		return "", fmt.Errorf("expand path template %q: %w", tpl, err)
	}
	return sb.String(), nil
}

// checkConfigFile 路径必须是已存在的普通文件。不存在时返回包装了 ErrNotFound 的错误
func checkConfigFile(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrNotFound)
	}

	fi, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case err != nil:
		return fmt.Errorf("stat %s: %w", path, err)
	case fi.IsDir():
		return fmt.Errorf("%w: %s", ErrIsDirectory, path)
	}
	return nil
}

// cloneInto 将 src 深拷贝到 dst。
// 重载时以默认值副本为底解码，map 与 slice 不能与默认值共享，否则解码会改写默认值。
func cloneInto(dst, src reflect.Value) {
	switch src.Kind() {
	case reflect.Ptr:
		if src.IsNil() {
			dst.Set(reflect.Zero(src.Type()))
			return
		}
		p := reflect.New(src.Type().Elem())
		cloneInto(p.Elem(), src.Elem())
		dst.Set(p)

	case reflect.Struct:
		// 未导出字段随整体赋值浅拷贝
		dst.Set(src)
		for i := 0; i < src.NumField(); i++ {
			if f := dst.Field(i); f.CanSet() {
				cloneInto(f, src.Field(i))
			}
		}

	case reflect.Slice:
		if src.IsNil() {
			dst.Set(reflect.Zero(src.Type()))
			return
		}
		s := reflect.MakeSlice(src.Type(), src.Len(), src.Len())
		for i := 0; i < src.Len(); i++ {
			cloneInto(s.Index(i), src.Index(i))
		}
		dst.Set(s)

	case reflect.Map:
		if src.IsNil() {
			dst.Set(reflect.Zero(src.Type()))
			return
		}
		m := reflect.MakeMapWithSize(src.Type(), src.Len())
		iter := src.MapRange()
		for iter.Next() {
			v := reflect.New(src.Type().Elem()).Elem()
			cloneInto(v, iter.Value())
			m.SetMapIndex(iter.Key(), v)
		}
		dst.Set(m)

	default:
		dst.Set(src)
	}
}

// clone 返回 ptr 所指结构体的深拷贝，类型与 ptr 相同
func clone(ptr interface{}) interface{} {
	src := reflect.ValueOf(ptr)
	dst := reflect.New(src.Elem().Type())
	cloneInto(dst.Elem(), src.Elem())
	return dst.Interface()
}
