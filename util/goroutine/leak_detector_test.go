package goroutine

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWaitForGoroutineCount_Reached(t *testing.T) {
	before := runtime.NumGoroutine()
	done := make(chan struct{})
	go func() { <-done }()

	close(done)
	assert.True(t, WaitForGoroutineCount(before, time.Second, 10*time.Millisecond))
}

func TestWaitForGoroutineCount_Timeout(t *testing.T) {
	before := runtime.NumGoroutine()
	stop := make(chan struct{})
	go func() { <-stop }()
	defer close(stop)

	assert.False(t, WaitForGoroutineCount(before, 50*time.Millisecond, 10*time.Millisecond))
}

func TestAssertNoLeaks_CleanTest(t *testing.T) {
	AssertNoLeaks(t)

	done := make(chan struct{})
	go func() { close(done) }()
	<-done
}
