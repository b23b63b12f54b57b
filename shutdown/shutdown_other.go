//go:build !windows

package shutdown

import (
	"os"
	"os/signal"
	"syscall"
)

// Notify relays interrupt, terminate and hangup to ch.
func Notify(ch chan os.Signal) {
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
}
