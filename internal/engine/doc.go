// Package engine wraps the local language-model runtime. A Backend is loaded
// once (slowly) and then hands out one Session per generation; sessions stream
// token deltas and can be aborted from another goroutine.
//
// Build tags:
//
//   - `-tags=llama` links the in-process go-llama.cpp runtime
//     (adapter_llama.go, llama_cgo.go).
//   - Without the tag a no-CGO stub is compiled (adapter_llama_stub.go) that
//     fails Load with a dependency-unavailable error.
//
// A Backend is not safe for concurrent generations; callers serialize them.
package engine
