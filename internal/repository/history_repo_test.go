package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/web-terminal/backend/internal/db"
)

func TestHistoryRepository_AppendAndList(t *testing.T) {
	database, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	repo := NewHistoryRepository(database, 100)
	ctx := context.Background()

	for _, line := range []string{"pwd", "ls -l", "cat notes.txt"} {
		if err := repo.Append(ctx, "user1", line); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := repo.Append(ctx, "user2", "whoami"); err != nil {
		t.Fatalf("append other user: %v", err)
	}

	entries, err := repo.List(ctx, "user1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len = %d, want 3", len(entries))
	}
	if entries[0].Line != "pwd" || entries[2].Line != "cat notes.txt" {
		t.Errorf("order wrong: %q ... %q", entries[0].Line, entries[2].Line)
	}

	t.Run("empty lines are dropped", func(t *testing.T) {
		if err := repo.Append(ctx, "user1", ""); err != nil {
			t.Fatalf("append empty: %v", err)
		}
		entries, err := repo.List(ctx, "user1")
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 3 {
			t.Errorf("len = %d, want 3", len(entries))
		}
	})

	t.Run("clear removes one user only", func(t *testing.T) {
		if err := repo.Clear(ctx, "user1"); err != nil {
			t.Fatalf("clear: %v", err)
		}
		entries, err := repo.List(ctx, "user1")
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 0 {
			t.Errorf("user1 entries after clear = %d", len(entries))
		}
		other, err := repo.List(ctx, "user2")
		if err != nil {
			t.Fatal(err)
		}
		if len(other) != 1 {
			t.Errorf("user2 entries = %d, want 1", len(other))
		}
	})
}

func TestHistoryRepository_TrimsToLimit(t *testing.T) {
	database, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	repo := NewHistoryRepository(database, 5)
	ctx := context.Background()

	for n := 0; n < 12; n++ {
		if err := repo.Append(ctx, "user1", fmt.Sprintf("cmd-%d", n)); err != nil {
			t.Fatalf("append %d: %v", n, err)
		}
	}

	entries, err := repo.List(ctx, "user1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("len = %d, want 5", len(entries))
	}
	if entries[0].Line != "cmd-7" || entries[4].Line != "cmd-11" {
		t.Errorf("kept range %q ... %q, want cmd-7 ... cmd-11", entries[0].Line, entries[4].Line)
	}
}
