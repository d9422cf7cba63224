package errors

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// IsUnreachable 判断错误是否为上游服务不可达（连接失败、超时等）
func IsUnreachable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "connection reset")
}

// ClassifyUpstream 将外部服务调用错误映射为AppError
// 不可达 → UPSTREAM_UNAVAILABLE；其余 → INTERNAL_SERVER_ERROR
func ClassifyUpstream(service string, err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	if IsUnreachable(err) {
		return NewUpstreamUnavailableError(service).WithCause(err)
	}
	return NewSystemError(ErrCodeInternalServer, "Internal server error").WithCause(err)
}
