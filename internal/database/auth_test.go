package database

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSetPasswordAndValidate(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	if db.HasUsers(ctx) {
		t.Error("Expected HasUsers=false initially")
	}

	if err := db.SetPassword(ctx, "short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Errorf("expected ErrPasswordTooShort, got %v", err)
	}
	if err := db.SetPassword(ctx, "correct horse"); err != nil {
		t.Fatalf("SetPassword failed: %v", err)
	}
	if !db.HasUsers(ctx) {
		t.Error("Expected HasUsers=true after SetPassword")
	}

	user, err := db.ValidatePassword(ctx, "correct horse")
	if err != nil {
		t.Fatalf("ValidatePassword failed: %v", err)
	}
	if user.ID == 0 || user.PasswordHash == "correct horse" {
		t.Errorf("unexpected user %+v", user)
	}
	if _, err := db.ValidatePassword(ctx, "wrong password"); !errors.Is(err, ErrInvalidPassword) {
		t.Errorf("expected ErrInvalidPassword, got %v", err)
	}

	if err := db.SetPassword(ctx, "battery staple"); err != nil {
		t.Fatalf("second SetPassword failed: %v", err)
	}
	if _, err := db.ValidatePassword(ctx, "correct horse"); err == nil {
		t.Error("old password still valid")
	}
	again, err := db.ValidatePassword(ctx, "battery staple")
	if err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
	if again.ID != user.ID {
		t.Error("SetPassword created a second user")
	}
}

func TestValidatePassword_NoUser(t *testing.T) {
	db, _ := setupTestDB(t)
	if _, err := db.ValidatePassword(context.Background(), "anything"); !errors.Is(err, ErrInvalidPassword) {
		t.Errorf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestSessions(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	if err := db.SetPassword(ctx, "correct horse"); err != nil {
		t.Fatalf("SetPassword failed: %v", err)
	}
	user, _ := db.ValidatePassword(ctx, "correct horse")

	session, err := db.CreateSession(ctx, user.ID)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if len(session.Token) != 64 {
		t.Errorf("token length = %d, want 64", len(session.Token))
	}

	var stored string
	db.db.QueryRowContext(ctx, "SELECT token FROM sessions WHERE id = ?", session.ID).Scan(&stored)
	if stored == session.Token {
		t.Error("session token stored in plain text")
	}

	got, err := db.ValidateSession(ctx, session.Token)
	if err != nil {
		t.Fatalf("ValidateSession failed: %v", err)
	}
	if got.UserID != user.ID || got.Token != "" {
		t.Errorf("unexpected session %+v", got)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"not hex", "zz"},
		{"empty", ""},
		{"unknown", "00ff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := db.ValidateSession(ctx, tt.token); !errors.Is(err, ErrInvalidSession) {
				t.Errorf("expected ErrInvalidSession, got %v", err)
			}
		})
	}

	if err := db.DeleteSession(ctx, session.Token); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if _, err := db.ValidateSession(ctx, session.Token); err == nil {
		t.Error("deleted session still valid")
	}
}

func TestSessions_PasswordChangeInvalidates(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	db.SetPassword(ctx, "correct horse")
	user, _ := db.ValidatePassword(ctx, "correct horse")
	session, _ := db.CreateSession(ctx, user.ID)

	if err := db.SetPassword(ctx, "battery staple"); err != nil {
		t.Fatalf("SetPassword failed: %v", err)
	}
	if _, err := db.ValidateSession(ctx, session.Token); err == nil {
		t.Error("session survived password change")
	}
}

func TestSessions_Expired(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	db.SetPassword(ctx, "correct horse")
	user, _ := db.ValidatePassword(ctx, "correct horse")
	session, _ := db.CreateSession(ctx, user.ID)

	past := time.Now().Add(-time.Hour).Unix()
	if _, err := db.db.ExecContext(ctx, "UPDATE sessions SET expires_at = ?", past); err != nil {
		t.Fatalf("expiring session failed: %v", err)
	}

	if _, err := db.ValidateSession(ctx, session.Token); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("expected ErrSessionExpired, got %v", err)
	}

	second, _ := db.CreateSession(ctx, user.ID)
	db.db.ExecContext(ctx, "UPDATE sessions SET expires_at = ? WHERE id = ?", past, second.ID)

	// The expired lookup above may already have removed the first session.
	removed, err := db.CleanExpiredSessions(ctx)
	if err != nil {
		t.Fatalf("CleanExpiredSessions failed: %v", err)
	}
	if removed < 1 {
		t.Errorf("removed %d sessions, want at least 1", removed)
	}
}
