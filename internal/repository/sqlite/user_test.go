package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/exam-archive/internal/apperror"
	"github.com/sakif/exam-archive/internal/model"
)

// =========================================================================
// UPSERT TESTS
// =========================================================================

func TestUserUpsert_NewUser(t *testing.T) {
	db := newTestDB(t)

	user := &model.User{
		GoogleID:  "1093",
		Email:     "b09901001@g.ntu.edu.tw",
		Name:      "Student",
		AvatarURL: "https://example.com/a.png",
	}
	if err := db.UpsertByEmail(context.Background(), user); err != nil {
		t.Fatalf("UpsertByEmail() error = %v", err)
	}

	if user.ID == "" {
		t.Error("UpsertByEmail() did not set user.ID")
	}
	if user.CreatedAt.IsZero() || user.UpdatedAt.IsZero() {
		t.Error("UpsertByEmail() did not set timestamps")
	}

	found, err := db.GetUserByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if found.Email != user.Email || found.GoogleID != "1093" || found.Name != "Student" {
		t.Errorf("GetUserByID() = %+v", found)
	}
}

func TestUserUpsert_ExistingUser_KeepsIDAndCreatedAt(t *testing.T) {
	db := newTestDB(t)

	first := &model.User{Email: "same@g.ntu.edu.tw", Name: "Old Name"}
	if err := db.UpsertByEmail(context.Background(), first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second := &model.User{Email: "same@g.ntu.edu.tw", Name: "New Name", AvatarURL: "https://example.com/new.png"}
	if err := db.UpsertByEmail(context.Background(), second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("ID changed across sign-ins: %q -> %q", first.ID, second.ID)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed: %v -> %v", first.CreatedAt, second.CreatedAt)
	}

	found, err := db.GetUserByID(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if found.Name != "New Name" {
		t.Errorf("Name = %q, want refreshed profile", found.Name)
	}
	if found.AvatarURL != "https://example.com/new.png" {
		t.Errorf("AvatarURL = %q", found.AvatarURL)
	}
}

// =========================================================================
// GET BY ID TESTS
// =========================================================================

func TestUserGetByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByID(context.Background(), "nonexistent-id")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID() error = %v, want ErrNotFound", err)
	}
}
