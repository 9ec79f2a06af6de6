package config

import (
	"bytes"
	"encoding/json"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v2"
)

// Serializer 配置文件格式
type Serializer interface {
	Name() string
	// Extensions 识别的文件后缀，默认路径查找按此顺序尝试
	Extensions() []string
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}

// format 以函数组合出的 Serializer
type format struct {
	name      string
	exts      []string
	marshal   func(v interface{}) ([]byte, error)
	unmarshal func(data []byte, v interface{}) error
}

func (f *format) Name() string                               { return f.name }
func (f *format) Extensions() []string                       { return f.exts }
func (f *format) Marshal(v interface{}) ([]byte, error)      { return f.marshal(v) }
func (f *format) Unmarshal(data []byte, v interface{}) error { return f.unmarshal(data, v) }

// 内置格式。INI 中嵌套结构体对应 section，time.Duration 写作 "5s"
var (
	YAML Serializer = &format{
		name:      "yaml",
		exts:      []string{".yml", ".yaml"},
		marshal:   yaml.Marshal,
		unmarshal: yaml.Unmarshal,
	}

	JSON Serializer = &format{
		name: "json",
		exts: []string{".json"},
		marshal: func(v interface{}) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		},
		unmarshal: json.Unmarshal,
	}

	INI Serializer = &format{
		name:      "ini",
		exts:      []string{".ini"},
		marshal:   marshalINI,
		unmarshal: unmarshalINI,
	}
)

func marshalINI(v interface{}) ([]byte, error) {
	f := ini.Empty()
	if err := f.ReflectFrom(v); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unmarshalINI(data []byte, v interface{}) error {
	f, err := ini.Load(data)
	if err != nil {
		return err
	}
	return f.MapTo(v)
}
