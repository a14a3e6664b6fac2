package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"carteira/internal/amqp"
	"carteira/internal/core"
	"carteira/internal/installment"
	"carteira/internal/ledger"
	"carteira/internal/log"
)

// ErrSubmissionInFlight is returned when a form is submitted again before
// its previous submission finished.
var ErrSubmissionInFlight = errors.New("submission already in progress")

// BackendError is a failure reported by the ledger backend. Its message is
// the backend's own, unchanged.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string { return e.Err.Error() }
func (e *BackendError) Unwrap() error { return e.Err }

// TransactionStore is the part of the backend submissions write to.
type TransactionStore interface {
	ledger.TransactionReader
	ledger.TransactionWriter
	ledger.SeriesCreator
}

// EventPublisher announces ledger writes. Publishing is best effort.
type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, ev amqp.TransactionEvent) error
}

// SubmitResult describes what a submission persisted.
type SubmitResult struct {
	Mode        installment.Mode
	Transaction core.Transaction // single mode
	GroupID     string           // series mode
	Replaced    string           // row removed by a single-to-series conversion
}

// TransactionService turns submitted forms into backend calls.
type TransactionService struct {
	store  TransactionStore
	events EventPublisher
}

// NewTransactionService wires the service. events may be nil.
func NewTransactionService(store TransactionStore, events EventPublisher) *TransactionService {
	return &TransactionService{store: store, events: events}
}

// LoadForm reads a stored row into an edit form.
func (s *TransactionService) LoadForm(ctx context.Context, userID, id string) (*FormState, error) {
	tx, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return nil, &BackendError{Op: "get transaction", Err: err}
	}
	return LoadForEdit(tx), nil
}

// Submit persists f. The calls made depend on whether f is new or an edit
// and on the mode its input selects:
//
//	new, single        insert
//	new, series        one CreateInstallmentSeries call
//	edit               update the stored row
//	edit, single->series  delete the row, then CreateInstallmentSeries
//
// The conversion is not atomic. If the series call fails the original row
// stays deleted.
func (s *TransactionService) Submit(ctx context.Context, f *FormState) (SubmitResult, error) {
	if !f.busy.CompareAndSwap(false, true) {
		return SubmitResult{}, ErrSubmissionInFlight
	}
	defer f.busy.Store(false)

	if err := f.validate(); err != nil {
		return SubmitResult{}, err
	}
	req, err := installment.BuildRequest(f.input())
	if err != nil {
		return SubmitResult{}, fmt.Errorf("%w: %v", ErrInvalidForm, err)
	}
	amount := core.MoneyFromDecimal(req.Amount)
	if amount.Cents <= 0 {
		return SubmitResult{}, fmt.Errorf("%w: amount must be at least one cent", ErrInvalidForm)
	}

	switch {
	case !f.Editing() && req.Mode == installment.ModeSingle:
		return s.insert(ctx, req, amount)
	case !f.Editing():
		return s.createSeries(ctx, req, amount)
	case req.Mode == installment.ModeSeries && !f.original.IsInstallment():
		return s.convert(ctx, f, req, amount)
	default:
		return s.update(ctx, f, req, amount)
	}
}

func (s *TransactionService) insert(ctx context.Context, req installment.Request, amount core.Money) (SubmitResult, error) {
	tx := core.Transaction{
		UserID:      req.UserID,
		Description: req.Description,
		Amount:      amount,
		Type:        req.Type,
		Category:    req.Category,
		Date:        core.DateOf(req.Date),
		CardID:      req.CardID,
	}
	if err := tx.Validate(); err != nil {
		return SubmitResult{}, fmt.Errorf("%w: %v", ErrInvalidForm, err)
	}
	saved, err := s.store.Insert(ctx, tx)
	if err != nil {
		return SubmitResult{}, &BackendError{Op: "insert transaction", Err: err}
	}
	s.publish(ctx, amqp.NewTransactionEvent(amqp.TransactionCreated, saved.UserID, saved.ID))
	return SubmitResult{Mode: installment.ModeSingle, Transaction: saved}, nil
}

func (s *TransactionService) createSeries(ctx context.Context, req installment.Request, amount core.Money) (SubmitResult, error) {
	groupID, err := s.store.CreateInstallmentSeries(ctx, seriesParams(req, amount))
	if err != nil {
		return SubmitResult{}, &BackendError{Op: "create installment series", Err: err}
	}
	s.publish(ctx, amqp.NewSeriesEvent(req.UserID, groupID))
	slog.InfoContext(ctx, "Created installment series",
		log.FieldMode, installment.ModeSeries.String(),
		log.FieldGroupID, groupID,
		log.FieldInstallments, *req.TotalInstallments,
		"total_cents", amount.Cents)
	return SubmitResult{Mode: installment.ModeSeries, GroupID: groupID}, nil
}

func (s *TransactionService) convert(ctx context.Context, f *FormState, req installment.Request, amount core.Money) (SubmitResult, error) {
	if err := s.store.Delete(ctx, f.UserID, f.EditingID); err != nil {
		return SubmitResult{}, &BackendError{Op: "delete original transaction", Err: err}
	}
	s.publish(ctx, amqp.NewTransactionEvent(amqp.TransactionDeleted, f.UserID, f.EditingID))

	res, err := s.createSeries(ctx, req, amount)
	if err != nil {
		slog.ErrorContext(ctx, "Series creation failed after original was deleted",
			log.FieldTransactionID, f.EditingID,
			log.FieldError, err)
		return SubmitResult{Replaced: f.EditingID}, err
	}
	res.Replaced = f.EditingID
	return res, nil
}

// update rewrites the stored row. Rows of an existing series keep their
// group fields and purchase date; only that row changes.
func (s *TransactionService) update(ctx context.Context, f *FormState, req installment.Request, amount core.Money) (SubmitResult, error) {
	tx := f.original
	tx.UserID = f.UserID
	tx.Description = req.Description
	tx.Amount = amount
	tx.Type = req.Type
	tx.Category = req.Category
	tx.CardID = req.CardID
	tx.Date = core.DateOf(req.Date)
	if tx.IsInstallment() {
		tx.PurchaseDate = core.DateOf(f.purchaseDate)
	}
	if err := tx.Validate(); err != nil {
		return SubmitResult{}, fmt.Errorf("%w: %v", ErrInvalidForm, err)
	}
	if err := s.store.Update(ctx, tx); err != nil {
		return SubmitResult{}, &BackendError{Op: "update transaction", Err: err}
	}
	f.original = tx
	s.publish(ctx, amqp.NewTransactionEvent(amqp.TransactionUpdated, tx.UserID, tx.ID))
	return SubmitResult{Mode: installment.ModeSingle, Transaction: tx}, nil
}

// Delete removes one row.
func (s *TransactionService) Delete(ctx context.Context, userID, id string) error {
	if err := s.store.Delete(ctx, userID, id); err != nil {
		return &BackendError{Op: "delete transaction", Err: err}
	}
	s.publish(ctx, amqp.NewTransactionEvent(amqp.TransactionDeleted, userID, id))
	return nil
}

func (s *TransactionService) publish(ctx context.Context, ev amqp.TransactionEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishTransactionEvent(ctx, ev); err != nil {
		slog.WarnContext(ctx, "Failed to publish transaction event",
			"kind", ev.Kind,
			log.FieldTransactionID, ev.TransactionID,
			log.FieldGroupID, ev.GroupID,
			log.FieldError, err)
	}
}

func seriesParams(req installment.Request, amount core.Money) ledger.SeriesParams {
	p := ledger.SeriesParams{
		UserID:      req.UserID,
		Description: req.Description,
		Amount:      amount,
		Category:    req.Category,
		Date:        core.DateOf(req.Date),
		CardID:      req.CardID,
	}
	if req.TotalInstallments != nil {
		p.TotalInstallments = *req.TotalInstallments
	}
	if req.PurchaseDate != nil {
		p.PurchaseDate = core.DateOf(*req.PurchaseDate)
	}
	return p
}
