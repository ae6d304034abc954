package history

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func rec(id uint64, clientID string) *Record {
	return &Record{
		MessageID:   id,
		ClientID:    clientID,
		Priority:    "message",
		Kind:        "text",
		Text:        fmt.Sprintf("message %d", id),
		Outcome:     "spoken",
		SubmittedAt: time.Now(),
		FinishedAt:  time.Now(),
	}
}

func TestMemStoreRecentNewestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemStore(10)
	for i := uint64(1); i <= 3; i++ {
		if err := s.Append(ctx, rec(i, "a")); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := s.Recent(ctx, "", 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Recent returned %d records, want 3", len(got))
	}
	for i, want := range []uint64{3, 2, 1} {
		if got[i].MessageID != want {
			t.Errorf("record %d has ID %d, want %d", i, got[i].MessageID, want)
		}
	}
}

func TestMemStoreEviction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemStore(3)
	for i := uint64(1); i <= 5; i++ {
		s.Append(ctx, rec(i, "a"))
	}

	got, _ := s.Recent(ctx, "", 0)
	if len(got) != 3 {
		t.Fatalf("ring holds %d records, want 3", len(got))
	}
	for i, want := range []uint64{5, 4, 3} {
		if got[i].MessageID != want {
			t.Errorf("record %d has ID %d, want %d", i, got[i].MessageID, want)
		}
	}
}

func TestMemStoreClientFilterAndLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemStore(10)
	s.Append(ctx, rec(1, "a"))
	s.Append(ctx, rec(2, "b"))
	s.Append(ctx, rec(3, "a"))
	s.Append(ctx, rec(4, "a"))

	got, _ := s.Recent(ctx, "a", 2)
	if len(got) != 2 {
		t.Fatalf("Recent returned %d records, want 2", len(got))
	}
	if got[0].MessageID != 4 || got[1].MessageID != 3 {
		t.Errorf("got IDs %d, %d; want 4, 3", got[0].MessageID, got[1].MessageID)
	}
	for _, r := range got {
		if r.ClientID != "a" {
			t.Errorf("record %d leaked from client %q", r.MessageID, r.ClientID)
		}
	}
}

func TestMemStoreDefaultCapacity(t *testing.T) {
	t.Parallel()

	s := NewMemStore(0)
	if len(s.ring) != DefaultMemCapacity {
		t.Errorf("capacity = %d, want %d", len(s.ring), DefaultMemCapacity)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
