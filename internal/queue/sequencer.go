package queue

import (
	"crypto/rand"
	"math/big"
	"turn-service/internal/model"

	"gorm.io/gorm"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6
)

// Sequencer hands out per-category ticket numbers and short codes.
type Sequencer struct {
	// CodeSource is overridable in tests; nil means GenerateCode.
	CodeSource func() (string, error)
}

// Next increments the category counter and returns the new value. It must
// run inside the transaction that inserts the ticket so a rolled back issue
// never consumes a number.
func (s *Sequencer) Next(tx *gorm.DB, orgID, categoryID string) (int64, error) {
	res := tx.Model(&model.Category{}).
		Where("id = ? AND organization_id = ?", categoryID, orgID).
		UpdateColumn("counter", gorm.Expr("counter + ?", 1))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrNotFound
	}

	var counter int64
	err := tx.Model(&model.Category{}).
		Where("id = ? AND organization_id = ?", categoryID, orgID).
		Select("counter").
		Scan(&counter).Error
	if err != nil {
		return 0, err
	}
	return counter, nil
}

// Code returns a fresh short code.
func (s *Sequencer) Code() (string, error) {
	if s.CodeSource != nil {
		return s.CodeSource()
	}
	return GenerateCode()
}

// GenerateCode draws codeLength characters uniformly from [A-Z0-9].
func GenerateCode() (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, codeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
