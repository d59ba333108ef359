package aggregation

import (
	"strings"

	set "github.com/duke-git/lancet/v2/datastructure/set"
	"github.com/duke-git/lancet/v2/slice"

	"arena-token-ledger/internal/domain"
)

// HolderAddresses returns the distinct lowercased addresses of successful
// trades in first-seen order.
func HolderAddresses(trades []*domain.Trade) []string {
	seen := set.New[string]()
	var out []string

	success := slice.Filter(trades, func(_ int, t *domain.Trade) bool {
		return t.Status == domain.StatusSuccess
	})
	slice.ForEach(success, func(_ int, t *domain.Trade) {
		addr := strings.ToLower(t.FromAddress)
		if addr == "" || seen.Contain(addr) {
			return
		}
		seen.Add(addr)
		out = append(out, addr)
	})
	return out
}

// HolderCount returns the number of distinct addresses that traded successfully.
func HolderCount(trades []*domain.Trade) int {
	return len(HolderAddresses(trades))
}
