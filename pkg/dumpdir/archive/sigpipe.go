package archive

import (
	"os/signal"
	"sync"

	"golang.org/x/sys/unix"
)

// SIGPIPE stays ignored while at least one export runs. The disposition
// seen by the first export is restored by the last one.
var sigpipe struct {
	sync.Mutex
	users      int
	wasIgnored bool
}

func ignoreSIGPIPE() (restore func()) {
	sigpipe.Lock()
	defer sigpipe.Unlock()

	if sigpipe.users == 0 {
		sigpipe.wasIgnored = signal.Ignored(unix.SIGPIPE)
		signal.Ignore(unix.SIGPIPE)
	}
	sigpipe.users++

	var once sync.Once
	return func() {
		once.Do(func() {
			sigpipe.Lock()
			defer sigpipe.Unlock()
			sigpipe.users--
			if sigpipe.users == 0 && !sigpipe.wasIgnored {
				signal.Reset(unix.SIGPIPE)
			}
		})
	}
}
