package transport

import "fmt"

// Error carries a native transport failure code alongside its message.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport: error %d: %s", e.Code, e.Message)
}
