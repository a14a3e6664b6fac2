package http

import (
	"time"

	"carteira/internal/billing"
	"carteira/internal/core"
	"carteira/internal/prefs"
	"carteira/internal/services"
)

const dateLayout = "2006-01-02"

// amountDTO is a monetary value. Cents is omitted while values are masked.
type amountDTO struct {
	Cents     *int64 `json:"cents,omitempty"`
	Formatted string `json:"formatted"`
}

type transactionDTO struct {
	ID                 string    `json:"id"`
	Description        string    `json:"description"`
	Amount             amountDTO `json:"amount"`
	Type               string    `json:"type"`
	Category           string    `json:"category"`
	Date               string    `json:"date"`
	CardID             string    `json:"card_id,omitempty"`
	InstallmentGroupID string    `json:"installment_group_id,omitempty"`
	InstallmentNumber  int       `json:"installment_number,omitempty"`
	TotalInstallments  int       `json:"total_installments,omitempty"`
	PurchaseDate       string    `json:"purchase_date,omitempty"`
}

type formDTO struct {
	EditingID            string `json:"editing_id,omitempty"`
	Description          string `json:"description"`
	Amount               string `json:"amount"`
	Type                 string `json:"type"`
	Category             string `json:"category"`
	CardID               string `json:"card_id,omitempty"`
	IsInstallment        bool   `json:"is_installment"`
	Installments         int    `json:"installments"`
	PurchaseDate         string `json:"purchase_date"`
	FirstInstallmentDate string `json:"first_installment_date"`
	Mode                 string `json:"mode"`
}

type submitDTO struct {
	Mode        string          `json:"mode"`
	Transaction *transactionDTO `json:"transaction,omitempty"`
	GroupID     string          `json:"group_id,omitempty"`
	Replaced    string          `json:"replaced,omitempty"`
}

type cycleDTO struct {
	Status              string `json:"status"`
	ClosingDay          int    `json:"closing_day"`
	BestPurchaseDate    string `json:"best_purchase_date"`
	IsGoodDayToBuy      bool   `json:"is_good_day_to_buy"`
	CurrentInvoiceMonth string `json:"current_invoice_month"`
}

type cardDTO struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	ClosingDay  int        `json:"closing_day"`
	DueDay      int        `json:"due_day"`
	CreditLimit amountDTO  `json:"credit_limit"`
	Cycle       *cycleDTO  `json:"cycle,omitempty"`
	Statement   *amountDTO `json:"statement,omitempty"`
}

type categoryDTO struct {
	Name   string    `json:"name"`
	Amount amountDTO `json:"amount"`
}

type dashboardDTO struct {
	Year         int           `json:"year"`
	Month        int           `json:"month"`
	Income       amountDTO     `json:"income"`
	Expenses     amountDTO     `json:"expenses"`
	Balance      amountDTO     `json:"balance"`
	ByCategory   []categoryDTO `json:"by_category"`
	Transactions int           `json:"transactions"`
	Cards        []cardDTO     `json:"cards"`
}

type projectionDTO struct {
	Year         int       `json:"year"`
	Month        int       `json:"month"`
	Committed    amountDTO `json:"committed"`
	Installments int       `json:"installments"`
}

type recurringDTO struct {
	ID            int64     `json:"id"`
	Description   string    `json:"description"`
	Amount        amountDTO `json:"amount"`
	Category      string    `json:"category"`
	Every         string    `json:"every"`
	StartDate     string    `json:"start_date"`
	EndDate       string    `json:"end_date,omitempty"`
	CardID        string    `json:"card_id,omitempty"`
	LastExecution string    `json:"last_execution,omitempty"`
}

type preferencesDTO struct {
	Masked bool `json:"masked"`
}

// presenter renders domain values, hiding amounts while masking is on.
type presenter struct {
	prefs *prefs.Store
}

func (p presenter) money(m core.Money) amountDTO {
	formatted := core.FormatBRL(m.Cents)
	if p.prefs != nil && p.prefs.Masked() {
		return amountDTO{Formatted: p.prefs.Amount(formatted)}
	}
	cents := m.Cents
	return amountDTO{Cents: &cents, Formatted: formatted}
}

func formatDate(d core.Date) string {
	if d.IsEmpty() {
		return ""
	}
	return d.Format(dateLayout)
}

func (p presenter) transaction(tx core.Transaction) transactionDTO {
	return transactionDTO{
		ID:                 tx.ID,
		Description:        tx.Description,
		Amount:             p.money(tx.Amount),
		Type:               string(tx.Type),
		Category:           tx.Category,
		Date:               formatDate(tx.Date),
		CardID:             tx.CardID,
		InstallmentGroupID: tx.InstallmentGroupID,
		InstallmentNumber:  tx.InstallmentNumber,
		TotalInstallments:  tx.TotalInstallments,
		PurchaseDate:       formatDate(tx.PurchaseDate),
	}
}

func (p presenter) transactions(txs []core.Transaction) []transactionDTO {
	out := make([]transactionDTO, 0, len(txs))
	for _, tx := range txs {
		out = append(out, p.transaction(tx))
	}
	return out
}

// form is not masked: it carries the values being edited.
func (p presenter) form(f *services.FormState) formDTO {
	return formDTO{
		EditingID:            f.EditingID,
		Description:          f.Description,
		Amount:               f.Amount.StringFixed(2),
		Type:                 string(f.Type),
		Category:             f.Category,
		CardID:               f.CardID,
		IsInstallment:        f.IsInstallment,
		Installments:         f.Installments,
		PurchaseDate:         f.PurchaseDate().Format(dateLayout),
		FirstInstallmentDate: f.FirstInstallmentDate().Format(dateLayout),
		Mode:                 f.Mode().String(),
	}
}

func (p presenter) submit(res services.SubmitResult) submitDTO {
	out := submitDTO{Mode: res.Mode.String(), GroupID: res.GroupID, Replaced: res.Replaced}
	if res.Transaction.ID != "" {
		tx := p.transaction(res.Transaction)
		out.Transaction = &tx
	}
	return out
}

func cycle(c billing.Cycle) *cycleDTO {
	return &cycleDTO{
		Status:              string(c.Status),
		ClosingDay:          c.ClosingDay,
		BestPurchaseDate:    c.BestPurchaseDate.Format(dateLayout),
		IsGoodDayToBuy:      c.IsGoodDayToBuy,
		CurrentInvoiceMonth: c.CurrentInvoiceMonth.Format("2006-01"),
	}
}

func (p presenter) card(c core.Card) cardDTO {
	return cardDTO{
		ID:          c.ID,
		Name:        c.Name,
		ClosingDay:  c.ClosingDay,
		DueDay:      c.DueDay,
		CreditLimit: p.money(c.CreditLimit),
	}
}

func (p presenter) cardStatus(cs services.CardStatus, withStatement bool) cardDTO {
	out := p.card(cs.Card)
	out.Cycle = cycle(cs.Cycle)
	if withStatement {
		st := p.money(cs.Statement)
		out.Statement = &st
	}
	return out
}

func (p presenter) dashboard(view services.MonthView) dashboardDTO {
	ov := view.Overview
	out := dashboardDTO{
		Year:         ov.Year,
		Month:        ov.Month,
		Income:       p.money(ov.Income),
		Expenses:     p.money(ov.Expenses),
		Balance:      p.money(ov.Balance),
		ByCategory:   make([]categoryDTO, 0, len(ov.ByCategory)),
		Transactions: ov.Transactions,
		Cards:        make([]cardDTO, 0, len(view.Cards)),
	}
	for _, c := range ov.ByCategory {
		out.ByCategory = append(out.ByCategory, categoryDTO{Name: c.Name, Amount: p.money(c.Amount)})
	}
	for _, cs := range view.Cards {
		out.Cards = append(out.Cards, p.cardStatus(cs, true))
	}
	return out
}

func (p presenter) projection(months []services.ProjectionMonth) []projectionDTO {
	out := make([]projectionDTO, 0, len(months))
	for _, m := range months {
		out = append(out, projectionDTO{
			Year:         m.Year,
			Month:        m.Month,
			Committed:    p.money(m.Committed),
			Installments: m.Installments,
		})
	}
	return out
}

func (p presenter) recurring(rb core.RecurringBill) recurringDTO {
	out := recurringDTO{
		ID:          rb.ID,
		Description: rb.Description,
		Amount:      p.money(rb.Amount),
		Category:    rb.Category,
		Every:       string(rb.Every),
		StartDate:   formatDate(rb.StartDate),
		EndDate:     formatDate(rb.EndDate),
		CardID:      rb.CardID,
	}
	if !rb.LastExecution.IsZero() {
		out.LastExecution = rb.LastExecution.Format(time.RFC3339)
	}
	return out
}
