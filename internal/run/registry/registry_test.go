package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentboard/agentboard/internal/common/logger"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json", OutputPath: "stdout"})
	require.NoError(t, err)
	return NewRegistry(log)
}

func TestRegistry_CancelInvokesHandle(t *testing.T) {
	reg := testRegistry(t)

	called := false
	reg.Register("ticket-1", func() { called = true })
	assert.True(t, reg.IsActive("ticket-1"))

	assert.True(t, reg.Cancel("ticket-1"))
	assert.True(t, called)
	assert.False(t, reg.IsActive("ticket-1"), "cancel removes the registration")
}

func TestRegistry_CancelUnknownIsNoOp(t *testing.T) {
	reg := testRegistry(t)
	assert.False(t, reg.Cancel("missing"))
}

func TestRegistry_CancelAfterDeregister(t *testing.T) {
	reg := testRegistry(t)

	reg.Register("ticket-1", func() { t.Fatal("must not be invoked after deregister") })
	reg.Deregister("ticket-1")

	assert.False(t, reg.Cancel("ticket-1"))
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := testRegistry(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n%26))
			reg.Register(id, func() {})
			reg.IsActive(id)
			reg.Deregister(id)
		}(i)
	}
	wg.Wait()

	for c := 'a'; c <= 'z'; c++ {
		assert.False(t, reg.IsActive(string(c)))
	}
}
