package observe

import (
	"context"
	"sync"
)

// Notice logs a warning at most once. It is used for configuration gaps that
// would otherwise be reported on every frame or turn, such as a missing
// vision provider.
//
// The zero value is ready to use.
type Notice struct {
	once sync.Once
	mu   sync.Mutex
}

// Warn emits msg with attrs through the context logger the first time it is
// called. Later calls are no-ops until [Notice.Reset].
func (n *Notice) Warn(ctx context.Context, msg string, attrs ...any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.once.Do(func() {
		Logger(ctx).Warn(msg, attrs...)
	})
}

// Reset re-arms the notice so the next [Notice.Warn] logs again. Called when
// configuration is reloaded.
func (n *Notice) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.once = sync.Once{}
}
