package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

// These tests drive the store against a mocked driver to pin down how
// infrastructure failures surface, independent of any real database.

func TestStore_EffectiveRolePropagatesQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	defer db.Close()

	queryErr := errors.New("connection reset by peer")
	mock.ExpectQuery("FROM role_assignments").WillReturnError(queryErr)

	store := NewStore(db)
	assignment, err := store.EffectiveRole(context.Background(), "u1", "Foo")
	if assignment != nil {
		t.Error("Expected nil assignment on query failure")
	}
	if !errors.Is(err, queryErr) {
		t.Errorf("Expected wrapped driver error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestStore_CountForUserPropagatesError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("timeout"))

	store := NewStore(db)
	if _, err := store.CountForUser(context.Background(), "u1"); err == nil {
		t.Error("Expected error from CountForUser on driver failure")
	}
}
