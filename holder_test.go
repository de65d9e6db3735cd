package eventbus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandlerHolderMarkRemovedSingleWinner(t *testing.T) {
	holder := newTestHolder("a")

	var wg sync.WaitGroup
	var wins int32
	var mu sync.Mutex
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if holder.markRemoved() {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins)
	assert.True(t, holder.Removed())
}

func TestNewRegistrationIDsAreUnique(t *testing.T) {
	a := newRegistrationID()
	b := newRegistrationID()
	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a)
}
