// Package stock owns the drug catalog and its append-only transaction
// ledger. Every stock-affecting mutation writes a ledger row; the ledger is
// never updated or deleted.
package stock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"drugstock/m/domain"
)

var (
	ErrDrugNotFound = errors.New("drug not found")
	ErrValidation   = errors.New("invalid drug input")
)

const (
	reasonInitialStock = "initial stock"
	reasonUpdateStock  = "update stock"
)

type Service struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func New(db *sqlx.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

const drugColumns = `id, name, grp, brand, active_ingredients, dosage, form, units_count, units_in_stock, expiration_date, is_emergency, created_at, updated_at`

// List returns the full catalog in insertion order. The query engine runs
// over this snapshot.
func (s *Service) List(ctx context.Context) ([]domain.Drug, error) {
	drugs := []domain.Drug{}
	if err := s.db.SelectContext(ctx, &drugs, `SELECT `+drugColumns+` FROM drugs ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list drugs: %w", err)
	}
	return drugs, nil
}

func (s *Service) Get(ctx context.Context, id int64) (domain.Drug, error) {
	var d domain.Drug
	err := s.db.GetContext(ctx, &d, `SELECT `+drugColumns+` FROM drugs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Drug{}, ErrDrugNotFound
	}
	if err != nil {
		return domain.Drug{}, fmt.Errorf("get drug %d: %w", id, err)
	}
	return d, nil
}

// Create persists a new drug and appends its initial-stock ledger entry.
func (s *Service) Create(ctx context.Context, in domain.DrugInput) (domain.Drug, error) {
	if err := validateInput(in); err != nil {
		return domain.Drug{}, err
	}
	exp, err := parseExpiration(in.ExpirationDate)
	if err != nil {
		return domain.Drug{}, err
	}

	var id int64
	err = s.db.QueryRowxContext(ctx,
		`INSERT INTO drugs (name, grp, brand, active_ingredients, dosage, form, units_count, units_in_stock, expiration_date, is_emergency)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		in.Name, in.Group, in.Brand, domain.StringList(in.ActiveIngredients),
		nullIfEmpty(in.Dosage), nullIfEmpty(in.Form), nullIfZero(in.UnitsCount),
		in.UnitsInStock, exp, in.IsEmergency).Scan(&id)
	if err != nil {
		return domain.Drug{}, fmt.Errorf("insert drug: %w", err)
	}

	if err := s.appendTransaction(ctx, id, in.UnitsInStock, reasonInitialStock); err != nil {
		return domain.Drug{}, err
	}

	s.logger.Info("drug created",
		zap.Int64("drug_id", id),
		zap.String("name", in.Name),
		zap.Int64("initial_stock", in.UnitsInStock))

	return s.Get(ctx, id)
}

// Update replaces the full record. When the stock count changes, the delta
// is logged against the previous value first. The read, the ledger append
// and the write are separate statements; concurrent updates race
// last-writer-wins, which is the accepted contract.
func (s *Service) Update(ctx context.Context, id int64, in domain.DrugInput) (domain.Drug, error) {
	if err := validateInput(in); err != nil {
		return domain.Drug{}, err
	}
	exp, err := parseExpiration(in.ExpirationDate)
	if err != nil {
		return domain.Drug{}, err
	}

	prev, err := s.Get(ctx, id)
	if err != nil {
		return domain.Drug{}, err
	}
	if prev.UnitsInStock != in.UnitsInStock {
		if err := s.appendTransaction(ctx, id, in.UnitsInStock-prev.UnitsInStock, reasonUpdateStock); err != nil {
			return domain.Drug{}, err
		}
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE drugs SET name = $1, grp = $2, brand = $3, active_ingredients = $4, dosage = $5, form = $6,
                units_count = $7, units_in_stock = $8, expiration_date = $9, is_emergency = $10,
                updated_at = CURRENT_TIMESTAMP
         WHERE id = $11`,
		in.Name, in.Group, in.Brand, domain.StringList(in.ActiveIngredients),
		nullIfEmpty(in.Dosage), nullIfEmpty(in.Form), nullIfZero(in.UnitsCount),
		in.UnitsInStock, exp, in.IsEmergency, id)
	if err != nil {
		return domain.Drug{}, fmt.Errorf("update drug %d: %w", id, err)
	}

	return s.Get(ctx, id)
}

// Delete removes a drug and returns the deleted record. Its ledger rows are
// intentionally left in place.
func (s *Service) Delete(ctx context.Context, id int64) (domain.Drug, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return domain.Drug{}, err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM drugs WHERE id = $1`, id); err != nil {
		return domain.Drug{}, fmt.Errorf("delete drug %d: %w", id, err)
	}
	s.logger.Info("drug deleted", zap.Int64("drug_id", id), zap.String("name", d.Name))
	return d, nil
}

// AdjustUnits appends a ledger entry, then increments the stored count in a
// single UPDATE. Stock may go negative; nothing clamps or reconciles it. A
// failed increment leaves the ledger row behind.
func (s *Service) AdjustUnits(ctx context.Context, drugID, delta int64, reason string) (domain.Drug, error) {
	if err := s.appendTransaction(ctx, drugID, delta, reason); err != nil {
		return domain.Drug{}, err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE drugs SET units_in_stock = units_in_stock + $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`,
		delta, drugID)
	if err != nil {
		return domain.Drug{}, fmt.Errorf("adjust units for drug %d: %w", drugID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.Drug{}, ErrDrugNotFound
	}

	d, err := s.Get(ctx, drugID)
	if err != nil {
		return domain.Drug{}, err
	}
	s.logger.Info("stock adjusted",
		zap.Int64("drug_id", drugID),
		zap.Int64("delta", delta),
		zap.String("reason", reason),
		zap.Int64("units_in_stock", d.UnitsInStock))
	return d, nil
}

// Transactions returns a drug's ledger history, oldest first.
func (s *Service) Transactions(ctx context.Context, drugID int64) ([]domain.StockTransaction, error) {
	txs := []domain.StockTransaction{}
	err := s.db.SelectContext(ctx, &txs,
		`SELECT id, drug_id, delta, reason, created_at FROM stock_transactions WHERE drug_id = $1 ORDER BY id`,
		drugID)
	if err != nil {
		return nil, fmt.Errorf("list transactions for drug %d: %w", drugID, err)
	}
	return txs, nil
}

// Stats aggregates the catalog: overall totals plus a per-group breakdown in
// first-seen order.
func (s *Service) Stats(ctx context.Context) (domain.Stats, error) {
	drugs, err := s.List(ctx)
	if err != nil {
		return domain.Stats{}, err
	}

	stats := domain.Stats{GroupSummary: []domain.GroupSummary{}}
	index := map[string]int{}
	for _, d := range drugs {
		stats.TotalUnits += d.UnitsInStock
		stats.TotalDrugs++
		i, ok := index[d.Group]
		if !ok {
			i = len(stats.GroupSummary)
			index[d.Group] = i
			stats.GroupSummary = append(stats.GroupSummary, domain.GroupSummary{Group: d.Group})
		}
		stats.GroupSummary[i].DrugCount++
		stats.GroupSummary[i].UnitCount += d.UnitsInStock
	}
	return stats, nil
}

func (s *Service) appendTransaction(ctx context.Context, drugID, delta int64, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stock_transactions (drug_id, delta, reason) VALUES ($1, $2, $3)`,
		drugID, delta, reason)
	if err != nil {
		return fmt.Errorf("append stock transaction: %w", err)
	}
	return nil
}

func validateInput(in domain.DrugInput) error {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Group) == "" || strings.TrimSpace(in.Brand) == "" {
		return fmt.Errorf("%w: name, group and brand are required", ErrValidation)
	}
	hasIngredient := false
	for _, ing := range in.ActiveIngredients {
		if strings.TrimSpace(ing) != "" {
			hasIngredient = true
			break
		}
	}
	if !hasIngredient {
		return fmt.Errorf("%w: at least one active ingredient is required", ErrValidation)
	}
	return nil
}

// parseExpiration accepts a plain date or a full RFC 3339 timestamp.
func parseExpiration(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: expirationDate %q is not a valid date", ErrValidation, value)
}

func nullIfEmpty(val string) *string {
	trimmed := strings.TrimSpace(val)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func nullIfZero(val int64) *int64 {
	if val == 0 {
		return nil
	}
	return &val
}
