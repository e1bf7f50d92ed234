package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestPacerUnlimited(t *testing.T) {
	p := NewPacer(0)
	for i := 0; i < 100; i++ {
		if err := p.Wait(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if granted, _ := p.Stats(); granted != 100 {
		t.Errorf("granted: %d", granted)
	}
}

func TestPacerSpacesEvents(t *testing.T) {
	p := NewPacer(600) // one per 100ms
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := p.Wait(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("three events passed in %v, expected pacing", elapsed)
	}
}

func TestPacerHonoursContext(t *testing.T) {
	p := NewPacer(1)
	if err := p.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := p.Wait(ctx); err == nil {
		t.Error("expected an error when the context expires before the next slot")
	}
}
