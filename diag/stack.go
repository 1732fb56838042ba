package diag

import "runtime"

// capturedStack grabs the current goroutine's stack trace for a Bag
// configured with CaptureStack(true).
func capturedStack() []byte {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return buf[:n]
}
