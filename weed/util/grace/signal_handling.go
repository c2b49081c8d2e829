//go:build !plan9

package grace

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

var signalChan chan os.Signal
var hooks = make([]func(), 0)
var hookLock sync.Mutex

func init() {
	signalChan = make(chan os.Signal, 1)
	signal.Notify(signalChan,
		os.Interrupt,
		os.Kill,
		syscall.SIGALRM,
		// syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		// syscall.SIGQUIT,
	)
	go func() {
		for range signalChan {
			hookLock.Lock()
			for _, hook := range hooks {
				hook()
			}
			hookLock.Unlock()
			os.Exit(0)
		}
	}()
}

// OnInterrupt registers a hook run before the process exits on a signal.
func OnInterrupt(fn func()) {
	hookLock.Lock()
	defer hookLock.Unlock()
	hooks = append(hooks, fn)
}
