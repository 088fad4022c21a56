package passport

import (
	"errors"
	"fmt"
	"testing"
)

func TestDraftValidate(t *testing.T) {
	tests := []struct {
		name  string
		draft Draft
		ok    bool
	}{
		{"complete", Draft{FullName: "Ada Lovelace", PlaceOfBirth: "UK", DateOfBirth: -3197500800}, true},
		{"missing name", Draft{PlaceOfBirth: "UK", DateOfBirth: 1}, false},
		{"blank name", Draft{FullName: "   ", PlaceOfBirth: "UK", DateOfBirth: 1}, false},
		{"missing place", Draft{FullName: "Ada", DateOfBirth: 1}, false},
		{"unset dob", Draft{FullName: "Ada", PlaceOfBirth: "UK"}, false},
		{"empty", Draft{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.draft.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatal("expected error")
				}
				if !errors.Is(err, ErrIncompleteDraft) {
					t.Errorf("error %v should wrap ErrIncompleteDraft", err)
				}
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("1990-06-15")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != 645408000 {
		t.Errorf("got %d, want 645408000", got)
	}

	got, err = ParseDate("1815-12-10")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got >= 0 {
		t.Errorf("pre-1970 date should be negative, got %d", got)
	}
	if FormatDate(got) != "1815-12-10" {
		t.Errorf("format: got %q", FormatDate(got))
	}
}

func TestParseDateInvalid(t *testing.T) {
	for _, in := range []string{"", "15/06/1990", "1990-13-01"} {
		if _, err := ParseDate(in); !errors.Is(err, ErrIncompleteDraft) {
			t.Errorf("ParseDate(%q): got %v, want ErrIncompleteDraft", in, err)
		}
	}
}

func TestFormatDateUnset(t *testing.T) {
	if got := FormatDate(0); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, KindNone},
		{errors.New("other"), KindNone},
		{fmt.Errorf("wrap: %w", ErrIncompleteDraft), KindValidation},
		{ErrNotConnected, KindValidation},
		{fmt.Errorf("upload: %w", ErrStorageUnavailable), KindStorage},
		{ErrStorageAuth, KindStorage},
		{ErrUserRejected, KindSigning},
		{ErrWalletUnavailable, KindSigning},
		{fmt.Errorf("%w: PassportAlreadyMinted", ErrAlreadyMinted), KindChain},
		{ErrTransactionReverted, KindChain},
		{ErrSettlementTimeout, KindChain},
		{ErrReadUnavailable, KindRead},
	}

	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestSafeToRetry(t *testing.T) {
	if !SafeToRetry(ErrUserRejected) {
		t.Error("user rejection should be safe to retry")
	}
	if !SafeToRetry(ErrStorageUnavailable) {
		t.Error("storage failure should be safe to retry")
	}
	if SafeToRetry(ErrTransactionReverted) {
		t.Error("reverted tx requires a re-read before retry")
	}
	if SafeToRetry(ErrReadUnavailable) {
		t.Error("read failure requires a re-read before retry")
	}
}
