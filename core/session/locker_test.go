package session

import (
	"sync"
	"testing"
)

func TestLockerSerializesSameKey(t *testing.T) {
	l := NewLocker()
	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("u1")
			defer unlock()
			v := counter
			v++
			counter = v
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Fatalf("counter = %d, want 50", counter)
	}
	if l.size() != 0 {
		t.Fatalf("locks not released: %d", l.size())
	}
}

func TestLockerIndependentKeys(t *testing.T) {
	l := NewLocker()
	unlockA := l.Lock("a")
	done := make(chan struct{})
	go func() {
		unlock := l.Lock("b")
		unlock()
		close(done)
	}()
	<-done
	unlockA()
	unlockA()
	if l.size() != 0 {
		t.Fatalf("locks not released: %d", l.size())
	}
}
