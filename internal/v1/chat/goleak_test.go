package chat

import (
	"testing"

	"go.uber.org/goleak"
)

// Every session test funnels through here: a session that leaves its
// keepalive or watcher goroutine running fails the package.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
