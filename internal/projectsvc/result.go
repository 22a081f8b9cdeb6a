package projectsvc

// Result is the outcome a flow operation hands back to its caller: a value,
// a classified failure with the message to show, or nothing because the
// operation was ignored (a submit while busy, or a closed flow).
type Result[T any] struct {
	value   T
	kind    Kind
	message string
	ignored bool
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] { return Result[T]{value: v} }

// Fail builds a failed result.
func Fail[T any](kind Kind, message string) Result[T] {
	return Result[T]{kind: kind, message: message}
}

// FailFrom classifies err and picks the message with UserMessage.
func FailFrom[T any](err error, fallback string) Result[T] {
	return Fail[T](KindOf(err), UserMessage(err, fallback))
}

// Ignored builds a result for an operation that did nothing.
func Ignored[T any]() Result[T] { return Result[T]{ignored: true} }

// IsOk reports success.
func (r Result[T]) IsOk() bool { return r.kind == 0 && !r.ignored }

// IsIgnored reports that no request was made and no state changed.
func (r Result[T]) IsIgnored() bool { return r.ignored }

// Value returns the success value. It is the zero value otherwise.
func (r Result[T]) Value() T { return r.value }

// Kind returns the failure kind, zero on success.
func (r Result[T]) Kind() Kind { return r.kind }

// Message returns the user-facing failure message.
func (r Result[T]) Message() string { return r.message }

// Err converts a failed result back to an *Error, nil otherwise.
func (r Result[T]) Err() error {
	if r.kind == 0 {
		return nil
	}
	return &Error{Kind: r.kind, Message: r.message}
}
