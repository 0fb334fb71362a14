// Package lua wraps gopher-lua for plugin unit execution.
//
// Every plugin unit runs inside its own State: a separate Lua VM with
// only the safe standard libraries opened. Units therefore cannot see
// each other's globals and cannot reach the filesystem, the OS, or the
// module loader. The Bridge converts values between Go and Lua so the
// host can hand event contexts to unit functions and read their
// results back.
package lua
