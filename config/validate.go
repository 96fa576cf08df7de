package config

import (
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var validate = validator.New()

// Validate 按 validate tag 校验结构体，嵌套结构体一并校验
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return errors.Wrap(err, "validate config")
	}
	return nil
}
