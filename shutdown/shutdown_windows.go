//go:build windows

package shutdown

import (
	"os"
	"os/signal"
)

// Notify relays interrupt to ch; Windows has no terminate signal.
func Notify(ch chan os.Signal) {
	signal.Notify(ch, os.Interrupt)
}
