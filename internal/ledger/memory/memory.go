package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"carteira/internal/core"
	"carteira/internal/ledger"
)

// Store is an in-process ledger.Backend.
type Store struct {
	mu        sync.Mutex
	cats      []string
	txs       map[string]core.Transaction
	cards     map[string]core.Card
	recurring map[int64]core.RecurringBill
	nextRBID  int64
	newID     func() string
}

var _ ledger.Backend = (*Store)(nil)

func New(cats []string) *Store {
	return &Store{
		cats:      dedupe(cats),
		txs:       map[string]core.Transaction{},
		cards:     map[string]core.Card{},
		recurring: map[int64]core.RecurringBill{},
		newID:     uuid.NewString,
	}
}

// NewFromFiles seeds categories from base/seed_categories.txt, falling back
// to a small default list.
func NewFromFiles(base string) *Store {
	cats := readLines(filepath.Join(base, "seed_categories.txt"))
	if len(cats) == 0 {
		cats = []string{"Alimentação", "Casa", "Transporte", "Saúde", "Lazer", "Salário"}
	}
	return New(cats)
}

// Categories implements ledger.CategoryReader.
func (s *Store) Categories(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cats...), nil
}

func (s *Store) Get(_ context.Context, userID, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok || tx.UserID != userID {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, ledger.ErrNotFound)
	}
	return tx, nil
}

func (s *Store) ListByMonth(_ context.Context, userID string, year, month int) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter(func(tx core.Transaction) bool {
		return tx.UserID == userID && tx.Date.Year() == year && tx.Date.Month() == month
	}), nil
}

func (s *Store) ListByGroup(_ context.Context, userID, groupID string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter(func(tx core.Transaction) bool {
		return tx.UserID == userID && groupID != "" && tx.InstallmentGroupID == groupID
	}), nil
}

func (s *Store) Insert(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx.ID = s.newID()
	s.txs[tx.ID] = tx
	return tx, nil
}

func (s *Store) Update(_ context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.txs[tx.ID]
	if !ok || old.UserID != tx.UserID {
		return fmt.Errorf("transaction %s: %w", tx.ID, ledger.ErrNotFound)
	}
	s.txs[tx.ID] = tx
	return nil
}

func (s *Store) Delete(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok || tx.UserID != userID {
		return fmt.Errorf("transaction %s: %w", id, ledger.ErrNotFound)
	}
	delete(s.txs, id)
	return nil
}

// CreateInstallmentSeries implements ledger.SeriesCreator. Rows are
// validated before any is stored, so a failure stores nothing.
func (s *Store) CreateInstallmentSeries(_ context.Context, p ledger.SeriesParams) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	groupID := s.newID()
	rows, err := ledger.ExpandSeries(p, groupID)
	if err != nil {
		return "", err
	}
	for _, r := range rows {
		r.ID = s.newID()
		s.txs[r.ID] = r
	}
	return groupID, nil
}

func (s *Store) ListCards(_ context.Context, userID string) ([]core.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Card
	for _, c := range s.cards {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetCard(_ context.Context, userID, id string) (core.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	if !ok || c.UserID != userID {
		return core.Card{}, fmt.Errorf("card %s: %w", id, ledger.ErrNotFound)
	}
	return c, nil
}

// SaveCard inserts c when it has no ID, otherwise replaces the stored card.
func (s *Store) SaveCard(_ context.Context, c core.Card) (core.Card, error) {
	if err := c.Validate(); err != nil {
		return core.Card{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = s.newID()
	} else if old, ok := s.cards[c.ID]; !ok || old.UserID != c.UserID {
		return core.Card{}, fmt.Errorf("card %s: %w", c.ID, ledger.ErrNotFound)
	}
	s.cards[c.ID] = c
	return c, nil
}

func (s *Store) ListRecurring(_ context.Context, userID string) ([]core.RecurringBill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.RecurringBill
	for _, rb := range s.recurring {
		if userID == "" || rb.UserID == userID {
			out = append(out, rb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SaveRecurring(_ context.Context, rb core.RecurringBill) (core.RecurringBill, error) {
	if err := rb.Validate(); err != nil {
		return core.RecurringBill{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rb.ID == 0 {
		s.nextRBID++
		rb.ID = s.nextRBID
	} else if _, ok := s.recurring[rb.ID]; !ok {
		return core.RecurringBill{}, fmt.Errorf("recurring bill %d: %w", rb.ID, ledger.ErrNotFound)
	}
	s.recurring[rb.ID] = rb
	return rb, nil
}

func (s *Store) MarkExecuted(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rb, ok := s.recurring[id]
	if !ok {
		return fmt.Errorf("recurring bill %d: %w", id, ledger.ErrNotFound)
	}
	rb.LastExecution = at
	s.recurring[id] = rb
	return nil
}

// filter must be called with mu held.
func (s *Store) filter(keep func(core.Transaction) bool) []core.Transaction {
	var out []core.Transaction
	for _, tx := range s.txs {
		if keep(tx) {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.Before(out[j].Date.Time)
		}
		if out[i].InstallmentNumber != out[j].InstallmentNumber {
			return out[i].InstallmentNumber < out[j].InstallmentNumber
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return dedupe(out)
}

// dedupe drops blanks and repeats, keeping input order.
func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
