package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// StringList is an ordered sequence of strings persisted as a JSON array in
// a single TEXT column. This is the canonical representation for a drug's
// active ingredients.
type StringList []string

func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *StringList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case string:
		return json.Unmarshal([]byte(v), s)
	case []byte:
		return json.Unmarshal(v, s)
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}
}

type Drug struct {
	ID                int64      `db:"id" json:"id"`
	Name              string     `db:"name" json:"name"`
	Group             string     `db:"grp" json:"group"`
	Brand             string     `db:"brand" json:"brand"`
	ActiveIngredients StringList `db:"active_ingredients" json:"activeIngredients"`
	Dosage            *string    `db:"dosage" json:"dosage,omitempty"`
	Form              *string    `db:"form" json:"form,omitempty"`
	UnitsCount        *int64     `db:"units_count" json:"unitsCount,omitempty"`
	UnitsInStock      int64      `db:"units_in_stock" json:"unitsInStock"`
	ExpirationDate    *time.Time `db:"expiration_date" json:"expirationDate,omitempty"`
	IsEmergency       bool       `db:"is_emergency" json:"isEmergency"`
	CreatedAt         string     `db:"created_at" json:"createdAt,omitempty"`
	UpdatedAt         string     `db:"updated_at" json:"updatedAt,omitempty"`
}

// StockTransaction is one append-only ledger entry. Rows are only ever
// inserted; a drug's ledger survives the drug's deletion.
type StockTransaction struct {
	ID        int64  `db:"id" json:"id"`
	DrugID    int64  `db:"drug_id" json:"drugId"`
	Delta     int64  `db:"delta" json:"delta"`
	Reason    string `db:"reason" json:"reason"`
	CreatedAt string `db:"created_at" json:"createdAt"`
}

// DrugInput carries the client-supplied fields for create and update.
// UnitsInStock arrives already flattened (packs × units-per-pack + leftover).
type DrugInput struct {
	Name              string   `json:"name"`
	Group             string   `json:"group"`
	Brand             string   `json:"brand"`
	ActiveIngredients []string `json:"activeIngredients"`
	Dosage            string   `json:"dosage,omitempty"`
	Form              string   `json:"form,omitempty"`
	UnitsCount        int64    `json:"unitsCount,omitempty"`
	UnitsInStock      int64    `json:"unitsInStock"`
	ExpirationDate    string   `json:"expirationDate,omitempty"`
	IsEmergency       bool     `json:"isEmergency"`
}

type GroupSummary struct {
	Group     string `json:"group"`
	DrugCount int64  `json:"drugCount"`
	UnitCount int64  `json:"unitCount"`
}

type Stats struct {
	TotalUnits   int64          `json:"totalUnits"`
	TotalDrugs   int64          `json:"totalDrugs"`
	GroupSummary []GroupSummary `json:"groupSummary"`
}

// DosageForms lists the known dosage-form labels. The set is advisory: the
// form field accepts any string.
var DosageForms = []string{
	"Tablet",
	"Kapsül",
	"Süspansiyon",
	"Ampul",
	"Efervesan",
	"Damlalık",
	"Krem",
	"Jel",
	"Şurup",
}
