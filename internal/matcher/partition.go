package matcher

import (
	"fmt"
	"sort"

	"recon-core/internal/models"
	"recon-core/internal/rules"

	"github.com/shopspring/decimal"
)

// Partition is one bucket of a deterministically partitioned candidate pool.
// Partitions are independent: a batch n-way run may evaluate them in
// parallel with no ordering dependency between them.
type Partition struct {
	Key          string
	Transactions []*models.Transaction
}

// PartitionPool buckets a transaction pool by currency, rounded amount and
// date window so an n-way run compares only plausibly related candidates.
// The key is deterministic: the same pool and tolerance always produce the
// same partitioning, which keeps batch runs reproducible.
//
// The amount bucket width is the amount tolerance (minimum one unit), the
// date bucket width is the day window plus one. Groups straddling a bucket
// boundary are not matched in that run; the cost bound is intentional.
func PartitionPool(pool []*models.Transaction, tol rules.Tolerance) []Partition {
	bucketWidth := tol.Amount
	if bucketWidth.LessThanOrEqual(decimal.Zero) {
		bucketWidth = decimal.NewFromInt(1)
	}

	dateWidth := int64(tol.DateDays + 1)

	buckets := make(map[string][]*models.Transaction)
	for _, tx := range pool {
		amountBucket := tx.Amount.Div(bucketWidth).Floor()
		dateBucket := tx.Date.UTC().Unix() / (86400 * dateWidth)
		key := fmt.Sprintf("%s|%s|%d", tx.Currency, amountBucket.String(), dateBucket)
		buckets[key] = append(buckets[key], tx)
	}

	partitions := make([]Partition, 0, len(buckets))
	for key, txs := range buckets {
		sort.Slice(txs, func(i, j int) bool { return txs[i].ID < txs[j].ID })
		partitions = append(partitions, Partition{Key: key, Transactions: txs})
	}

	sort.Slice(partitions, func(i, j int) bool { return partitions[i].Key < partitions[j].Key })
	return partitions
}
