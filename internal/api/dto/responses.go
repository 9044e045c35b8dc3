package dto

import (
	"time"

	"github.com/splitbook/splitbook/internal/domain/ledger"
	"github.com/splitbook/splitbook/internal/infrastructure/storage"
)

// AccountResponse is one account in the hierarchy listing.
type AccountResponse struct {
	ID       int64  `json:"id"`
	ParentID *int64 `json:"parent_id,omitempty"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Type     string `json:"type"`
	Depth    int    `json:"depth"`
}

// AccountsFromHierarchy maps storage hierarchy rows to the response shape.
func AccountsFromHierarchy(nodes []storage.AccountNode) []AccountResponse {
	out := make([]AccountResponse, len(nodes))
	for i, n := range nodes {
		out[i] = AccountResponse{
			ID:       n.Account.ID,
			ParentID: n.Account.ParentID,
			Code:     n.Account.Code,
			Name:     n.Account.Name,
			FullName: n.Account.FullName,
			Type:     string(n.Account.Type),
			Depth:    n.Depth,
		}
	}
	return out
}

// ImportBatchResponse is one import batch audit record.
type ImportBatchResponse struct {
	ID            int64      `json:"id"`
	UID           string     `json:"uid"`
	AccountID     int64      `json:"account_id"`
	Filename      string     `json:"filename"`
	SourceType    string     `json:"source_type"`
	Fingerprint   string     `json:"fingerprint"`
	CoverageStart *time.Time `json:"coverage_start,omitempty"`
	CoverageEnd   *time.Time `json:"coverage_end,omitempty"`
	RowCount      int        `json:"row_count"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ImportBatchFromLedger maps a batch record to the response shape.
func ImportBatchFromLedger(b *ledger.ImportBatch) ImportBatchResponse {
	return ImportBatchResponse{
		ID:            b.ID,
		UID:           b.UID,
		AccountID:     b.AccountID,
		Filename:      b.Filename,
		SourceType:    b.SourceType,
		Fingerprint:   b.Fingerprint,
		CoverageStart: b.CoverageStart,
		CoverageEnd:   b.CoverageEnd,
		RowCount:      b.RowCount,
		CreatedAt:     b.CreatedAt,
	}
}

// StatementPeriodResponse is one statement period with its last
// reconciliation outcome.
type StatementPeriodResponse struct {
	ID           int64     `json:"id"`
	AccountID    int64     `json:"account_id"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	StartBalance string    `json:"start_balance"`
	EndBalance   string    `json:"end_balance"`
	Status       string    `json:"status"`
	ComputedEnd  *string   `json:"computed_end_balance,omitempty"`
	Discrepancy  *string   `json:"discrepancy,omitempty"`
}

// StatementFromLedger maps a statement period to the response shape.
func StatementFromLedger(p *ledger.StatementPeriod) StatementPeriodResponse {
	resp := StatementPeriodResponse{
		ID:           p.ID,
		AccountID:    p.AccountID,
		StartDate:    p.StartDate,
		EndDate:      p.EndDate,
		StartBalance: p.StartBalance.String(),
		EndBalance:   p.EndBalance.String(),
		Status:       string(p.Status),
	}
	if p.ComputedEnd.Valid {
		s := p.ComputedEnd.Decimal.String()
		resp.ComputedEnd = &s
	}
	if p.Discrepancy.Valid {
		s := p.Discrepancy.Decimal.String()
		resp.Discrepancy = &s
	}
	return resp
}
