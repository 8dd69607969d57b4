package services

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"budgetflow/internal/core"
)

const (
	duplicateWindowDays   = 7
	duplicateMaxDistRatio = 0.4
)

// DuplicatePair is two transactions that look like the same movement.
type DuplicatePair struct {
	First  core.Transaction
	Second core.Transaction
}

// FindDuplicates reports every pair with the same amount, dated at most a
// week apart, whose descriptions are close enough.
func FindDuplicates(txs []core.Transaction) []DuplicatePair {
	var pairs []DuplicatePair
	for i := 0; i < len(txs); i++ {
		for j := i + 1; j < len(txs); j++ {
			if looksDuplicate(txs[i], txs[j]) {
				pairs = append(pairs, DuplicatePair{First: txs[i], Second: txs[j]})
			}
		}
	}
	return pairs
}

func looksDuplicate(a, b core.Transaction) bool {
	if a.ID == b.ID || a.Amount != b.Amount {
		return false
	}
	if daysApart(a.Date, b.Date) > duplicateWindowDays {
		return false
	}
	da, db := strings.ToUpper(strings.TrimSpace(a.Description)), strings.ToUpper(strings.TrimSpace(b.Description))
	maxlen := utf8.RuneCountInString(da)
	if n := utf8.RuneCountInString(db); n > maxlen {
		maxlen = n
	}
	if maxlen == 0 {
		return true
	}
	dist := levenshtein.ComputeDistance(da, db)
	return float64(dist)/float64(maxlen) < duplicateMaxDistRatio
}

func daysApart(a, b time.Time) int {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return int(d.Hours() / 24)
}
