//go:build windows

package bot

import "os"

// Windows has no SIGHUP; state is only saved on exit.
func notifyHangup(chan<- os.Signal) {}
