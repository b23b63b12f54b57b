//go:build !linux

package main

import (
	"os"
	"runtime"

	"golang.design/x/hotkey/mainthread"
)

// The system hotkey needs the main thread on macOS and Windows.
func init() {
	runtime.LockOSThread()
}

func main() {
	code := 0
	mainthread.Init(func() { code = execute() })
	os.Exit(code)
}
