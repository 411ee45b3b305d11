package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionsAreIndependent(t *testing.T) {
	p := New(&fakePredictor{label: 0, proba: []float64{1}}, nil)
	a, b := NewSession("a"), NewSession("b")

	for i := 0; i < 3; i++ {
		_, _ = p.Run(context.Background(), a, nominalReading())
	}
	_, _ = p.Run(context.Background(), b, nominalReading())

	assert.Equal(t, 3, a.Len())
	assert.Equal(t, 1, b.Len())
}

func TestSessionConcurrentRecord(t *testing.T) {
	s := NewSession("s")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.record(HistoryEntry{Result: "x"})
			_ = s.History()
		}()
	}
	wg.Wait()
	assert.Equal(t, MaxHistory, s.Len())
}
