package repo

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestCreateUserThread_FirstContact(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	ut, created, err := CreateUserThread(ctx, db, 1001, 7)
	if err != nil {
		t.Fatalf("CreateUserThread: %v", err)
	}
	if !created {
		t.Fatal("expected created=true on first insert")
	}
	if ut.UserID != 1001 || ut.ThreadID != 7 || ut.Archived {
		t.Fatalf("unexpected mapping: %+v", ut)
	}
	if ut.CreatedAt.IsZero() || ut.LastActiveAt.IsZero() {
		t.Fatalf("timestamps unset: %+v", ut)
	}
}

func TestCreateUserThread_DuplicateKeepsWinner(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	if _, _, err := CreateUserThread(ctx, db, 1001, 7); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	ut, created, err := CreateUserThread(ctx, db, 1001, 99)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if created {
		t.Fatal("expected created=false for duplicate user")
	}
	if ut.ThreadID != 7 {
		t.Fatalf("expected winner's thread 7 to stand, got %d", ut.ThreadID)
	}

	total, err := CountUserThreads(ctx, db)
	if err != nil {
		t.Fatalf("CountUserThreads: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected exactly one mapping, got %d", total)
	}
}

func TestCreateUserThread_ConcurrentSingleRow(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	const racers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func(threadID int) {
			defer wg.Done()
			_, created, err := CreateUserThread(ctx, db, 42, threadID)
			if err != nil {
				t.Errorf("CreateUserThread(%d): %v", threadID, err)
				return
			}
			if created {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(100 + i)
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
	total, err := CountUserThreads(ctx, db)
	if err != nil {
		t.Fatalf("CountUserThreads: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected exactly one mapping after race, got %d", total)
	}
}

func TestGetUserThreadByThreadID_ExcludesArchived(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	if _, _, err := CreateUserThread(ctx, db, 1001, 7); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ut, err := GetUserThreadByThreadID(ctx, db, 7)
	if err != nil {
		t.Fatalf("lookup active: %v", err)
	}
	if ut.UserID != 1001 {
		t.Fatalf("wrong user: %+v", ut)
	}

	if err := ArchiveUserThread(ctx, db, 1001); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if _, err := GetUserThreadByThreadID(ctx, db, 7); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for archived mapping, got %v", err)
	}
	// Direct lookup by user still finds the archived row.
	got, err := GetUserThread(ctx, db, 1001)
	if err != nil {
		t.Fatalf("GetUserThread: %v", err)
	}
	if !got.Archived {
		t.Fatalf("expected archived mapping, got %+v", got)
	}
}

func TestReassignUserThread_Reactivates(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	if _, _, err := CreateUserThread(ctx, db, 1001, 7); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := ArchiveUserThread(ctx, db, 1001); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if err := ReassignUserThread(ctx, db, 1001, 8); err != nil {
		t.Fatalf("reassign: %v", err)
	}

	ut, err := GetUserThreadByThreadID(ctx, db, 8)
	if err != nil {
		t.Fatalf("lookup reassigned: %v", err)
	}
	if ut.UserID != 1001 || ut.Archived {
		t.Fatalf("expected active mapping on thread 8, got %+v", ut)
	}
	if _, err := GetUserThreadByThreadID(ctx, db, 7); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old thread should resolve nowhere, got %v", err)
	}
}

func TestReassignUserThread_MissingRow(t *testing.T) {
	db := newRepoDB(t)

	if err := ReassignUserThread(context.Background(), db, 555, 8); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestArchiveUserThread_MissingRow(t *testing.T) {
	db := newRepoDB(t)

	if err := ArchiveUserThread(context.Background(), db, 555); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTouchUserThread_UpdatesLastActive(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	ut, _, err := CreateUserThread(ctx, db, 1001, 7)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	before := ut.LastActiveAt

	if err := TouchUserThread(ctx, db, 1001); err != nil {
		t.Fatalf("touch: %v", err)
	}
	got, err := GetUserThread(ctx, db, 1001)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.LastActiveAt.Before(before) {
		t.Fatalf("LastActiveAt went backwards: %v -> %v", before, got.LastActiveAt)
	}

	// Touching a missing row is not an error.
	if err := TouchUserThread(ctx, db, 999); err != nil {
		t.Fatalf("touch missing: %v", err)
	}
}
