// Package rerror provides the coded error type used across rtp2httpd.
//
// It is a trimmed reimagining of nabbar-golib's errors package: a single
// Code classifies what went wrong (spec §7's error kinds), the Error
// interface stays compatible with errors.Is/errors.As/errors.Unwrap, and
// parent errors chain so a low-level syscall failure can be wrapped by the
// subsystem that observed it without losing the original cause.
package rerror

// Code classifies an Error the way spec §7 classifies failures: transient,
// hard upstream, resource exhaustion, or fatal startup/config.
type Code uint16

const (
	CodeUnknown Code = iota
	CodeConfigInvalid
	CodeBindFailed
	CodePoolAllocFailed
	CodeBufferExhausted
	CodeQueueOverflow
	CodeQueueSaturated
	CodeFCCRefused
	CodeFCCTimeout
	CodeRTSPUpstream
	CodeMulticastJoin
	CodeZeroCopyUnsupported
	CodeUnauthorized
	CodeNotFound
	CodeBadRequest
)

func (c Code) String() string {
	switch c {
	case CodeConfigInvalid:
		return "config-invalid"
	case CodeBindFailed:
		return "bind-failed"
	case CodePoolAllocFailed:
		return "pool-alloc-failed"
	case CodeBufferExhausted:
		return "buffer-exhausted"
	case CodeQueueOverflow:
		return "queue-overflow"
	case CodeQueueSaturated:
		return "queue-saturated"
	case CodeFCCRefused:
		return "fcc-refused"
	case CodeFCCTimeout:
		return "fcc-timeout"
	case CodeRTSPUpstream:
		return "rtsp-upstream"
	case CodeMulticastJoin:
		return "multicast-join"
	case CodeZeroCopyUnsupported:
		return "zero-copy-unsupported"
	case CodeUnauthorized:
		return "unauthorized"
	case CodeNotFound:
		return "not-found"
	case CodeBadRequest:
		return "bad-request"
	default:
		return "unknown"
	}
}

// Fatal reports whether this code corresponds to spec §7's "fatal" class:
// config/startup errors that must exit the process non-zero.
func (c Code) Fatal() bool {
	switch c {
	case CodeConfigInvalid, CodeBindFailed, CodePoolAllocFailed:
		return true
	default:
		return false
	}
}
