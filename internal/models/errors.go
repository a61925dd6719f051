package models

import "errors"

var (
	// ErrInvalidStatusClass 无效的状态码分类
	ErrInvalidStatusClass = errors.New("invalid status class, expected one of 1xx-5xx")
)
