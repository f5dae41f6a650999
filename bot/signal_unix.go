//go:build !windows

package bot

import (
	"os"
	"os/signal"
	"syscall"
)

func notifyHangup(ch chan<- os.Signal) {
	signal.Notify(ch, syscall.SIGHUP)
}
