package land

import (
	"errors"
	"fmt"
)

// ValidationError means the caller's input was malformed. Not retryable.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NetworkError covers timeouts, connection failures and non-2xx responses on
// load-bearing calls.
type NetworkError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// UpstreamError is an HTTP 200 whose service-level status signals failure.
type UpstreamError struct {
	Op   string
	Code string
	Err  error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: malformed response: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: service returned %q", e.Op, e.Code)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ResolutionError means the search page answered but yielded no region id or coordinates.
type ResolutionError struct {
	Keyword string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("could not resolve region %q", e.Keyword)
}

// UserMessage turns a pipeline error into text a user can act on, separating
// "be more specific" from "try again later".
func UserMessage(err error) string {
	var (
		verr *ValidationError
		rerr *ResolutionError
		nerr *NetworkError
		uerr *UpstreamError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return "지역명을 입력하세요. 예) 서울 종로구 / 잠실동 / 판교"
	case errors.As(err, &rerr):
		return "지역 좌표/코드를 찾지 못했어요. 더 구체적으로 입력해보세요."
	case errors.As(err, &nerr), errors.As(err, &uerr):
		return "부동산 서비스에 연결할 수 없습니다. 잠시 후 다시 시도해주세요."
	default:
		return err.Error()
	}
}
