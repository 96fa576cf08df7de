// Package config 从配置文件加载 Options 结构体
//
// 字段通过 cfg tag 与配置键对应，def tag 提供默认值，validate tag 交给
// go-playground/validator 校验。
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Format 配置文件格式
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatINI  Format = "ini"
	FormatJSON Format = "json"
)

// FormatOf 根据文件扩展名推断格式
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".ini":
		return FormatINI, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", errors.Errorf("unsupported config file extension: %q", filepath.Ext(path))
}

// Load 读取配置文件并填充 v，随后设置默认值并校验
func Load(path string, v any) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read config %s", path)
	}
	if err := LoadBytes(data, format, v); err != nil {
		return errors.WithMessagef(err, "load config %s", path)
	}
	return nil
}

// LoadBytes 按指定格式解析 data
func LoadBytes(data []byte, format Format, v any) error {
	dec, ok := decoders[format]
	if !ok {
		return errors.Errorf("unsupported config format: %q", format)
	}
	raw, err := dec(data)
	if err != nil {
		return err
	}
	if err := Convert(raw, v); err != nil {
		return err
	}
	if err := SetDefaults(v); err != nil {
		return errors.WithMessage(err, "set defaults")
	}
	return Validate(v)
}
