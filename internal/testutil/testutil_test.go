package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStepClockAdvances(t *testing.T) {
	c := NewStepClock(time.Second)

	assert.Equal(t, Epoch, c.Now())
	assert.Equal(t, Epoch.Add(time.Second), c.Now())
	assert.Equal(t, 2, c.Reads())
}

func TestStepClockConcurrent(t *testing.T) {
	c := NewStepClock(time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Now()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1000, c.Reads())
	assert.Equal(t, Epoch.Add(1000*time.Millisecond), c.Now())
}

func TestFixedRunIDGenerator(t *testing.T) {
	assert.Equal(t, "run-1", NewFixedRunIDGenerator("run-1").Generate())
	assert.Equal(t, "test-run-default", NewFixedRunIDGenerator("").Generate())
}

func TestCellDefaults(t *testing.T) {
	c := Cell(2, "print(1)", Stdout("1\n"))
	assert.Equal(t, 2, c.Index)
	assert.True(t, c.Policy.Check)
	assert.Len(t, c.Outputs, 1)
}
