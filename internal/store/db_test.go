package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go-sales-insights/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUploadHistory(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	uploads := []*model.Upload{
		{Username: "alice", Filename: "jan.csv", UploadedAt: base, Rows: 10, Cols: 5, Checksum: "a1"},
		{Username: "alice", Filename: "feb.xlsx", UploadedAt: base.Add(time.Hour), Rows: 20, Cols: 6},
		{Username: "bob", Filename: "other.csv", UploadedAt: base.Add(2 * time.Hour), Rows: 1, Cols: 1},
	}
	for _, u := range uploads {
		if err := s.SaveUpload(u); err != nil {
			t.Fatalf("SaveUpload: %v", err)
		}
		if u.ID == 0 {
			t.Fatal("ID not set")
		}
	}

	got, err := s.ListUploads("alice")
	if err != nil {
		t.Fatalf("ListUploads: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("uploads = %d, want 2", len(got))
	}
	if got[0].Filename != "feb.xlsx" || got[1].Filename != "jan.csv" {
		t.Fatalf("order = %s, %s", got[0].Filename, got[1].Filename)
	}
	if got[1].Rows != 10 || got[1].Cols != 5 || got[1].Checksum != "a1" || !got[1].UploadedAt.Equal(base) {
		t.Fatalf("row = %+v", got[1])
	}

	none, err := s.ListUploads("carol")
	if err != nil || none == nil || len(none) != 0 {
		t.Fatalf("empty history = %v, %v", none, err)
	}
}

func TestSaveUploadDefaultsTime(t *testing.T) {
	s := openTestStore(t)
	u := &model.Upload{Username: "alice", Filename: "x.csv"}
	if err := s.SaveUpload(u); err != nil {
		t.Fatal(err)
	}
	if u.UploadedAt.IsZero() || u.UploadedAt.Location() != time.UTC {
		t.Fatalf("uploaded_at = %v", u.UploadedAt)
	}
}

func TestUsers(t *testing.T) {
	s := openTestStore(t)

	if ok, err := s.UserExists("alice"); err != nil || ok {
		t.Fatalf("UserExists before create = %v, %v", ok, err)
	}
	u := &model.User{Username: "alice", PasswordHash: "hash", Salt: "salt"}
	if err := s.CreateUser(u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if ok, _ := s.UserExists("alice"); !ok {
		t.Fatal("user not found after create")
	}

	got, err := s.GetUser("alice")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.ID != u.ID || got.PasswordHash != "hash" || got.Salt != "salt" {
		t.Fatalf("user = %+v", got)
	}

	if err := s.CreateUser(&model.User{Username: "alice", PasswordHash: "h", Salt: "s"}); err == nil {
		t.Fatal("duplicate username accepted")
	}
	if _, err := s.GetUser("bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetUser(bob) = %v, want ErrNotFound", err)
	}
}

func TestOpenFileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "insights.db")

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveUpload(&model.Upload{Username: "alice", Filename: "a.csv"}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	got, err := s.ListUploads("alice")
	if err != nil || len(got) != 1 {
		t.Fatalf("reopened history = %v, %v", got, err)
	}
}
