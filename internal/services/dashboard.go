package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"carteira/internal/billing"
	"carteira/internal/cache"
	"carteira/internal/core"
	"carteira/internal/log"
)

// DashboardSource is the read side the dashboard aggregates.
type DashboardSource interface {
	ListCards(ctx context.Context, userID string) ([]core.Card, error)
	ListByMonth(ctx context.Context, userID string, year, month int) ([]core.Transaction, error)
}

// CardStatus is a card with its billing cycle on the clock's current day.
type CardStatus struct {
	Card      core.Card
	Cycle     billing.Cycle
	Statement core.Money // expenses billed to the card in the viewed month
}

type MonthView struct {
	Overview core.MonthOverview
	Cards    []CardStatus
}

// ProjectionMonth is the sum of installment rows already scheduled for a
// month.
type ProjectionMonth struct {
	Year         int
	Month        int
	Committed    core.Money
	Installments int
}

// Dashboard aggregates fetched records into month views. Aggregates are
// cached per user and month until Invalidate is called or the entry
// expires; card cycles are resolved on every call.
type Dashboard struct {
	src   DashboardSource
	clock core.Clock
	views cache.Cache[MonthView]
}

func NewDashboard(src DashboardSource, clock core.Clock, views cache.Cache[MonthView]) *Dashboard {
	return &Dashboard{src: src, clock: clock, views: views}
}

func viewKey(userID string, year, month int) string {
	return fmt.Sprintf("%s|%04d-%02d", userID, year, month)
}

// Invalidate drops every cached view of userID.
func (d *Dashboard) Invalidate(userID string) {
	if d.views != nil {
		d.views.DeletePrefix(userID + "|")
	}
}

// Month builds the view for year/month.
func (d *Dashboard) Month(ctx context.Context, userID string, year, month int) (MonthView, error) {
	if month < 1 || month > 12 {
		return MonthView{}, fmt.Errorf("month %d: %w", month, core.ErrInvalidMonth)
	}
	key := viewKey(userID, year, month)
	if d.views != nil {
		if v, ok := d.views.Get(key); ok {
			return d.withCycles(ctx, v), nil
		}
	}

	var (
		cards []core.Card
		txs   []core.Transaction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cards, err = d.src.ListCards(gctx, userID)
		if err != nil {
			return &BackendError{Op: "list cards", Err: err}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		txs, err = d.src.ListByMonth(gctx, userID, year, month)
		if err != nil {
			return &BackendError{Op: "list transactions", Err: err}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return MonthView{}, err
	}

	ov := core.Summarize(year, month, txs, cards)
	totals := make(map[string]core.Money, len(ov.ByCard))
	for _, st := range ov.ByCard {
		totals[st.CardID] = st.Total
	}

	// The cached view holds aggregates only; cycles depend on the clock.
	view := MonthView{Overview: ov, Cards: make([]CardStatus, 0, len(cards))}
	for _, c := range cards {
		view.Cards = append(view.Cards, CardStatus{Card: c, Statement: totals[c.ID]})
	}
	if d.views != nil {
		d.views.Set(key, view)
	}
	return d.withCycles(ctx, view), nil
}

// withCycles returns a copy of view with every card's cycle resolved on the
// clock's current day.
func (d *Dashboard) withCycles(ctx context.Context, view MonthView) MonthView {
	now := d.clock.Now()
	cards := make([]CardStatus, len(view.Cards))
	for i, cs := range view.Cards {
		cycle, err := billing.Resolve(now, cs.Card.ClosingDay)
		if err != nil {
			slog.WarnContext(ctx, "Card has invalid closing day", log.FieldCardID, cs.Card.ID, "closing_day", cs.Card.ClosingDay)
		}
		cs.Cycle = cycle
		cards[i] = cs
	}
	view.Cards = cards
	return view
}

// Cards returns the user's cards with their current billing cycle.
func (d *Dashboard) Cards(ctx context.Context, userID string) ([]CardStatus, error) {
	cards, err := d.src.ListCards(ctx, userID)
	if err != nil {
		return nil, &BackendError{Op: "list cards", Err: err}
	}
	now := d.clock.Now()
	out := make([]CardStatus, 0, len(cards))
	for _, c := range cards {
		cycle, _ := billing.Resolve(now, c.ClosingDay)
		out = append(out, CardStatus{Card: c, Cycle: cycle})
	}
	return out, nil
}

// Projection sums the installment rows billed in each of the months
// months starting at from's month.
func (d *Dashboard) Projection(ctx context.Context, userID string, from time.Time, months int) ([]ProjectionMonth, error) {
	if months < 1 {
		return nil, fmt.Errorf("projection needs at least one month, got %d", months)
	}
	first := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
	out := make([]ProjectionMonth, months)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range out {
		m := first.AddDate(0, i, 0)
		out[i] = ProjectionMonth{Year: m.Year(), Month: int(m.Month())}
		g.Go(func() error {
			txs, err := d.src.ListByMonth(gctx, userID, out[i].Year, out[i].Month)
			if err != nil {
				return &BackendError{Op: "list transactions", Err: err}
			}
			for _, tx := range txs {
				if tx.Type != core.Expense || !tx.IsInstallment() {
					continue
				}
				out[i].Committed.Cents += tx.Amount.Cents
				out[i].Installments++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
