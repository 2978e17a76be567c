package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hospitalnet/agenda/internal/platform/apperr"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperr.Code
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, apperr.CodeStorageConflict},
		{"deadlock", fmt.Errorf("exec: %w", &pgconn.PgError{Code: "40P01"}), apperr.CodeStorageConflict},
		{"no rows", pgx.ErrNoRows, apperr.CodeNotFound},
		{"foreign key", &pgconn.PgError{Code: "23503"}, apperr.CodeValidation},
		{"check", &pgconn.PgError{Code: "23514", ConstraintName: "hospital_schedules_capacity_check"}, apperr.CodeValidation},
		{"already typed", apperr.SlotFull("full"), apperr.CodeSlotFull},
		{"other", errors.New("connection reset"), apperr.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err, "reserve")
			if code := apperr.CodeOf(got); code != tt.want {
				t.Errorf("Classify() code = %s, want %s (err %v)", code, tt.want, got)
			}
		})
	}
	if Classify(nil, "x") != nil {
		t.Error("expected nil for nil error")
	}
}

func TestClassify_KeepsCause(t *testing.T) {
	cause := &pgconn.PgError{Code: "40001"}
	if err := Classify(cause, "save booking"); !errors.Is(err, cause) {
		t.Error("expected driver error reachable through Unwrap")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "hospital_schedules_natural_key"})
	if !IsUniqueViolation(err, "") {
		t.Error("expected unique violation")
	}
	if !IsUniqueViolation(err, "hospital_schedules_natural_key") {
		t.Error("expected match on constraint name")
	}
	if IsUniqueViolation(err, "bookings_pkey") {
		t.Error("expected no match on other constraint")
	}
	if IsUniqueViolation(errors.New("x"), "") {
		t.Error("expected plain error not to match")
	}
}

func TestInTx_EmptyContext(t *testing.T) {
	if InTx(context.Background()) {
		t.Error("expected no transaction on a bare context")
	}
}
