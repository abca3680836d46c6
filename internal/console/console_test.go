package console

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func TestAppendRedraws(t *testing.T) {
	var got []string
	c := New(10, func(lines []string) { got = lines })

	c.Append("one")
	c.Append("two")
	if len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Fatalf("rendered %v", got)
	}
}

func TestScrollbackDropsOldest(t *testing.T) {
	c := New(3, nil)
	for i := 0; i < 5; i++ {
		c.Append(fmt.Sprint(i))
	}
	lines := c.Lines()
	if len(lines) != 3 || lines[0] != "2" || lines[2] != "4" {
		t.Fatalf("lines %v", lines)
	}
}

func TestLinesIsSnapshot(t *testing.T) {
	c := New(10, nil)
	c.Append("a")
	lines := c.Lines()
	lines[0] = "mutated"
	if c.Lines()[0] != "a" {
		t.Fatal("Lines leaked internal storage")
	}
}

func TestSetRendererRedrawsImmediately(t *testing.T) {
	c := New(10, nil)
	c.Append("before")

	var got []string
	c.SetRenderer(func(lines []string) { got = lines })
	if len(got) != 1 || got[0] != "before" {
		t.Fatalf("rendered %v", got)
	}
}

func TestConcurrentAppendsNeverInterleave(t *testing.T) {
	var inRender atomic.Int32
	var overlaps atomic.Int32
	var renders atomic.Int32

	c := New(DefaultScrollback, func(lines []string) {
		if inRender.Add(1) != 1 {
			overlaps.Add(1)
		}
		renders.Add(1)
		inRender.Add(-1)
	})

	const writers, perWriter = 8, 100
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if i%10 == 0 {
					c.Redraw()
				}
				c.Append(fmt.Sprintf("w%d-%d", w, i))
			}
		}(w)
	}
	wg.Wait()

	if overlaps.Load() != 0 {
		t.Fatalf("%d renders overlapped", overlaps.Load())
	}
	if n := len(c.Lines()); n != writers*perWriter {
		t.Fatalf("history has %d lines, want %d", n, writers*perWriter)
	}
	if renders.Load() < writers*perWriter {
		t.Fatalf("only %d renders", renders.Load())
	}
}
