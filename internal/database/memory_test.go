package database

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestMemorySettingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySettings()

	if _, err := s.GetSetting(ctx, "missing"); !errors.Is(err, ErrSettingNotFound) {
		t.Errorf("got %v, want ErrSettingNotFound", err)
	}

	if err := s.SetSetting(ctx, "k", "v1"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := s.SetSetting(ctx, "k", "v2"); err != nil {
		t.Fatalf("SetSetting overwrite: %v", err)
	}

	got, err := s.GetSetting(ctx, "k")
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if got != "v2" {
		t.Errorf("got %q, want v2", got)
	}

	if err := s.DeleteSetting(ctx, "k"); err != nil {
		t.Fatalf("DeleteSetting: %v", err)
	}
	if _, err := s.GetSetting(ctx, "k"); !errors.Is(err, ErrSettingNotFound) {
		t.Errorf("got %v after delete, want ErrSettingNotFound", err)
	}
}

func TestMemoryLedgerDebit(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	if err := l.Credit(ctx, "u1", 100); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if err := l.Debit(ctx, "u1", 60); err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if err := l.Debit(ctx, "u1", 60); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("got %v, want ErrInsufficientBalance", err)
	}

	balance, _ := l.GetBalance(ctx, "u1")
	if balance != 40 {
		t.Errorf("balance = %f, want 40", balance)
	}
}

func TestMemoryLedgerRejectsNonPositiveAmounts(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	if err := l.Credit(ctx, "u1", 0); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Credit(0): got %v, want ErrInvalidAmount", err)
	}
	if err := l.Debit(ctx, "u1", -5); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Debit(-5): got %v, want ErrInvalidAmount", err)
	}
}

func TestMemoryLedgerConcurrentDebitsNeverGoNegative(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	if err := l.Credit(ctx, "u1", 100); err != nil {
		t.Fatalf("Credit: %v", err)
	}

	var wg sync.WaitGroup
	succeeded := make(chan struct{}, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Debit(ctx, "u1", 10); err == nil {
				succeeded <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(succeeded)

	wins := 0
	for range succeeded {
		wins++
	}
	if wins != 10 {
		t.Errorf("%d debits succeeded, want exactly 10", wins)
	}

	balance, _ := l.GetBalance(ctx, "u1")
	if balance != 0 {
		t.Errorf("balance = %f, want 0", balance)
	}
	if balance < 0 {
		t.Errorf("balance went negative: %f", balance)
	}
}
