// Package quota enforces per-account daily sending allowances. It is the
// single admission gate: a campaign is only created after Reserve grants
// its full recipient count.
package quota

import (
	"sync"
	"time"

	appErrors "github.com/masswhatsapp/campaign-engine/internal/errors"
	"github.com/masswhatsapp/campaign-engine/internal/model"
	"github.com/masswhatsapp/campaign-engine/internal/repository"
)

// Ledger serializes quota mutations per account. Each account gets its
// own lock so unrelated accounts never contend.
type Ledger struct {
	Accounts repository.AccountRepositoryInterface

	mu      sync.Mutex
	entries map[string]*entry

	// now is swappable in tests to cross the reset boundary.
	now func() time.Time
}

type entry struct {
	mu sync.Mutex
}

func NewLedger(accounts repository.AccountRepositoryInterface) *Ledger {
	return &Ledger{
		Accounts: accounts,
		entries:  make(map[string]*entry),
		now:      time.Now,
	}
}

func (l *Ledger) entry(accountID string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[accountID]
	if !ok {
		e = &entry{}
		l.entries[accountID] = e
	}
	return e
}

// Reserve grants n messages against the account's daily allowance, or
// nothing at all. Admission is all-or-nothing: a request larger than the
// remaining allowance is rejected outright and usage stays unchanged.
func (l *Ledger) Reserve(accountID string, n int) (int, error) {
	e := l.entry(accountID)
	e.mu.Lock()
	defer e.mu.Unlock()

	acct, err := l.Accounts.GetByID(accountID)
	if err != nil {
		return 0, err
	}
	if acct.IsPaused {
		return 0, appErrors.NewAccountPaused(accountID)
	}

	usage, resetAt, err := l.applyReset(acct)
	if err != nil {
		return 0, err
	}

	remaining := acct.DailyLimit - usage
	if remaining < n {
		return 0, appErrors.NewQuotaExhausted(n, remaining, acct.DailyLimit)
	}

	if err := l.Accounts.UpdateUsage(accountID, usage+n, resetAt); err != nil {
		return 0, err
	}
	return n, nil
}

// Release returns n messages to the account's allowance, for when a
// reservation was granted but the campaign never materialized. Only the
// current window is credited; usage never goes below zero.
func (l *Ledger) Release(accountID string, n int) error {
	e := l.entry(accountID)
	e.mu.Lock()
	defer e.mu.Unlock()

	acct, err := l.Accounts.GetByID(accountID)
	if err != nil {
		return err
	}
	usage, resetAt, err := l.applyReset(acct)
	if err != nil {
		return err
	}
	usage -= n
	if usage < 0 {
		usage = 0
	}
	return l.Accounts.UpdateUsage(accountID, usage, resetAt)
}

// Remaining reports the unreserved allowance for the current UTC day.
func (l *Ledger) Remaining(accountID string) (int, error) {
	e := l.entry(accountID)
	e.mu.Lock()
	defer e.mu.Unlock()

	acct, err := l.Accounts.GetByID(accountID)
	if err != nil {
		return 0, err
	}
	usage, _, err := l.applyReset(acct)
	if err != nil {
		return 0, err
	}
	return acct.DailyLimit - usage, nil
}

// applyReset zeroes the usage counter the first time the account is
// touched after a UTC midnight boundary and persists the new window.
// Caller must hold the account entry lock.
func (l *Ledger) applyReset(acct *model.Account) (int, time.Time, error) {
	today := midnightUTC(l.now())
	if !acct.UsageResetAt.Before(today) {
		return acct.DailyUsage, acct.UsageResetAt, nil
	}
	if err := l.Accounts.UpdateUsage(acct.ID, 0, today); err != nil {
		return 0, time.Time{}, err
	}
	acct.DailyUsage = 0
	acct.UsageResetAt = today
	return 0, today, nil
}

func midnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
