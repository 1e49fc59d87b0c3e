package svc

import "errors"

// ErrUnknownDriver 错误：不支持的存储驱动
var ErrUnknownDriver = errors.New("unknown storage driver")

// ErrUnknownProvider 错误：不支持的报价源
var ErrUnknownProvider = errors.New("unknown quote provider")
