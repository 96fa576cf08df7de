package config

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

type decodeFunc func(data []byte) (any, error)

var decoders = map[Format]decodeFunc{
	FormatYAML: decodeYAML,
	FormatTOML: decodeTOML,
	FormatINI:  decodeINI,
	FormatJSON: decodeJSON,
}

func decodeYAML(data []byte) (any, error) {
	var result any
	if err := yaml.Unmarshal(data, &result); err != nil {
		return nil, errors.Wrap(err, "decode yaml")
	}
	return result, nil
}

func decodeTOML(data []byte) (any, error) {
	var result map[string]any
	if err := toml.Unmarshal(data, &result); err != nil {
		return nil, errors.Wrap(err, "decode toml")
	}
	return result, nil
}

func decodeJSON(data []byte) (any, error) {
	var result any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, errors.Wrap(err, "decode json")
	}
	return result, nil
}

// decodeINI 默认 section 的键放在顶层，其他 section 作为嵌套 map
// section 名中的点号表示多级嵌套
func decodeINI(data []byte) (any, error) {
	file, err := ini.LoadSources(ini.LoadOptions{
		AllowBooleanKeys:           true,
		AllowPythonMultilineValues: true,
		SpaceBeforeInlineComment:   true,
	}, data)
	if err != nil {
		return nil, errors.Wrap(err, "decode ini")
	}

	result := map[string]any{}
	for _, section := range file.Sections() {
		target := result
		if name := section.Name(); name != ini.DefaultSection {
			for _, part := range strings.Split(name, ".") {
				next, ok := target[part].(map[string]any)
				if !ok {
					next = map[string]any{}
					target[part] = next
				}
				target = next
			}
		}
		for _, key := range section.Keys() {
			target[key.Name()] = parseINIValue(key.Value())
		}
	}
	return result, nil
}

func parseINIValue(value string) any {
	value = strings.TrimSpace(value)
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}
