package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/peacelink/peacelink/internal/domain/dispute"
	"github.com/peacelink/peacelink/internal/domain/peacelink"
	"github.com/peacelink/peacelink/internal/domain/wallet"
)

type appliedKey struct {
	peaceLinkID uuid.UUID
	toState     peacelink.State
}

// Store backs the wallet, peacelink, dispute and ledger contracts with maps
// under one mutex. It mirrors the transactional guarantees of the Postgres
// layer: a commit either applies fully or not at all. Used by tests and local
// development.
type Store struct {
	mu          sync.Mutex
	wallets     map[uuid.UUID]*wallet.Wallet
	links       map[uuid.UUID]*peacelink.PeaceLink
	disputes    map[uuid.UUID]*dispute.Dispute
	transitions map[uuid.UUID][]*peacelink.Transition
	applied     map[appliedKey]bool
	nextSeq     int64
}

func NewStore() *Store {
	return &Store{
		wallets:     make(map[uuid.UUID]*wallet.Wallet),
		links:       make(map[uuid.UUID]*peacelink.PeaceLink),
		disputes:    make(map[uuid.UUID]*dispute.Dispute),
		transitions: make(map[uuid.UUID][]*peacelink.Transition),
		applied:     make(map[appliedKey]bool),
	}
}

// Wallets returns the wallet repository view of the store.
func (s *Store) Wallets() wallet.Repository { return walletRepo{s} }

// PeaceLinks returns the peacelink repository view of the store.
func (s *Store) PeaceLinks() peacelink.Repository { return linkRepo{s} }

// Ledger returns the transition ledger view of the store.
func (s *Store) Ledger() peacelink.Ledger { return ledger{s} }

// Disputes returns the dispute repository view of the store.
func (s *Store) Disputes() dispute.Repository { return disputeRepo{s} }

type walletRepo struct{ s *Store }

func (r walletRepo) Create(ctx context.Context, w *wallet.Wallet) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.wallets[w.ID]; ok {
		return fmt.Errorf("wallet %s already exists", w.ID)
	}
	cp := *w
	r.s.wallets[w.ID] = &cp
	return nil
}

func (r walletRepo) GetByID(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wallets[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r walletRepo) CashOut(ctx context.Context, walletID uuid.UUID, amount, fee int64, platformWalletID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wallets[walletID]
	if !ok {
		return wallet.ErrNotFound
	}
	platform, ok := r.s.wallets[platformWalletID]
	if !ok {
		return wallet.ErrNotFound
	}
	if w.Frozen() {
		return wallet.ErrWalletHeld
	}
	if w.Balance < amount+fee {
		return wallet.ErrInsufficientFunds
	}
	now := time.Now().UTC()
	w.Balance -= amount + fee
	w.UpdatedAt = now
	platform.Balance += fee
	platform.UpdatedAt = now
	return nil
}

type linkRepo struct{ s *Store }

func (r linkRepo) Create(ctx context.Context, pl *peacelink.PeaceLink) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.links[pl.ID]; ok {
		return fmt.Errorf("peacelink %s already exists", pl.ID)
	}
	r.s.links[pl.ID] = pl.Clone()
	return nil
}

func (r linkRepo) GetByID(ctx context.Context, id uuid.UUID) (*peacelink.PeaceLink, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	pl, ok := r.s.links[id]
	if !ok {
		return nil, nil
	}
	return pl.Clone(), nil
}

func (r linkRepo) ListByState(ctx context.Context, state peacelink.State, limit, offset int) ([]*peacelink.PeaceLink, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*peacelink.PeaceLink
	for _, pl := range r.s.links {
		if pl.State == state {
			out = append(out, pl.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return paginate(out, limit, offset), nil
}

func (r linkRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]*peacelink.PeaceLink, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*peacelink.PeaceLink
	for _, pl := range r.s.links {
		switch pl.State {
		case peacelink.StateCreated, peacelink.StatePendingApproval:
			if !now.Before(pl.ExpiresAt) {
				out = append(out, pl.Clone())
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type ledger struct{ s *Store }

// CommitTransition applies a transition atomically: optimistic state check,
// idempotent delta application, funds check, dispute bookkeeping. Balances
// are staged and written only after every delta validates.
func (l ledger) CommitTransition(ctx context.Context, commit peacelink.Commit) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	stored, ok := l.s.links[commit.PeaceLink.ID]
	if !ok {
		return peacelink.ErrNotFound
	}
	if stored.State != commit.Record.From {
		return fmt.Errorf("%w: stored %s, expected %s", peacelink.ErrStaleState, stored.State, commit.Record.From)
	}

	key := appliedKey{peaceLinkID: commit.PeaceLink.ID, toState: commit.Record.To}
	applyDeltas := !l.s.applied[key]

	staged := make(map[uuid.UUID]int64)
	if applyDeltas {
		// Wallet order is irrelevant under one mutex; sorting keeps the
		// behavior aligned with the Postgres ledger.
		deltas := append([]wallet.Delta(nil), commit.Record.Deltas...)
		sort.Slice(deltas, func(i, j int) bool {
			return deltas[i].WalletID.String() < deltas[j].WalletID.String()
		})
		for _, d := range deltas {
			w, ok := l.s.wallets[d.WalletID]
			if !ok {
				return fmt.Errorf("delta wallet %s: %w", d.WalletID, wallet.ErrNotFound)
			}
			next := w.Balance + staged[d.WalletID] + d.Amount
			if d.CheckFunds && next < 0 {
				return wallet.ErrInsufficientFunds
			}
			staged[d.WalletID] += d.Amount
		}
	}

	now := time.Now().UTC()
	for id, change := range staged {
		l.s.wallets[id].Balance += change
		l.s.wallets[id].UpdatedAt = now
	}
	for _, id := range commit.HoldWallets {
		if w, ok := l.s.wallets[id]; ok {
			w.Holds++
			w.UpdatedAt = now
		}
	}
	for _, id := range commit.ReleaseWallets {
		if w, ok := l.s.wallets[id]; ok && w.Holds > 0 {
			w.Holds--
			w.UpdatedAt = now
		}
	}
	if commit.Dispute != nil {
		cp := *commit.Dispute
		l.s.disputes[cp.ID] = &cp
	}

	l.s.applied[key] = true
	l.s.links[commit.PeaceLink.ID] = commit.PeaceLink.Clone()

	l.s.nextSeq++
	rec := *commit.Record
	rec.ID = l.s.nextSeq
	l.s.transitions[rec.PeaceLinkID] = append(l.s.transitions[rec.PeaceLinkID], &rec)
	return nil
}

func (l ledger) ListTransitions(ctx context.Context, peaceLinkID uuid.UUID) ([]*peacelink.Transition, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	recs := l.s.transitions[peaceLinkID]
	out := make([]*peacelink.Transition, len(recs))
	for i, r := range recs {
		cp := *r
		out[i] = &cp
	}
	return out, nil
}

type disputeRepo struct{ s *Store }

func (r disputeRepo) GetByID(ctx context.Context, id uuid.UUID) (*dispute.Dispute, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.disputes[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (r disputeRepo) GetByPeaceLinkID(ctx context.Context, peaceLinkID uuid.UUID) (*dispute.Dispute, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, d := range r.s.disputes {
		if d.PeaceLinkID == peaceLinkID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (r disputeRepo) ListOpen(ctx context.Context, limit, offset int) ([]*dispute.Dispute, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*dispute.Dispute
	for _, d := range r.s.disputes {
		if d.Open() {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return paginate(out, limit, offset), nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
