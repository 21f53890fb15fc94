package codepool

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/evertag/internal/domain"
	"github.com/roach88/evertag/internal/store"
)

// Batch describes a generated run of codes.
type Batch struct {
	ID      string `json:"id"`
	Prefix  string `json:"prefix"`
	First   string `json:"first"`
	Last    string `json:"last"`
	Created int    `json:"created"`
}

// Generate creates count available codes PREFIX-0001 … PREFIX-NNNN in one
// transaction. If any of them already exists the whole batch is rejected
// and nothing is written.
func (p *Pool) Generate(ctx context.Context, w BatchWriter, prefix string, count int) (Batch, error) {
	normalized, err := domain.NormalizePrefix(prefix)
	if err != nil {
		return Batch{}, err
	}
	if count < 1 || count > MaxBatchSize {
		return Batch{}, domain.NewInvalidArgumentError("count must be between 1 and %d, got %d", MaxBatchSize, count)
	}
	if normalized == p.syntheticPrefix {
		return Batch{}, domain.NewInvalidArgumentError("prefix %q is reserved for synthetic codes", normalized)
	}

	width := domain.SuffixWidth(count)
	batchID := p.ids.Generate()
	now := p.clock.Now()

	codes := make([]domain.AccessCode, count)
	for i := range codes {
		codes[i] = domain.AccessCode{
			ID:        p.ids.Generate(),
			Code:      domain.FormatCode(normalized, i+1, width),
			Status:    domain.CodeAvailable,
			Batch:     batchID,
			CreatedAt: now,
		}
	}

	batch := Batch{
		ID:     batchID,
		Prefix: normalized,
		First:  codes[0].Code,
		Last:   codes[count-1].Code,
	}

	created, err := w.InsertAccessCodes(ctx, codes)
	if errors.Is(err, store.ErrConflict) {
		return batch, &domain.Error{
			Code:    domain.ErrCodeConflict,
			Message: fmt.Sprintf("codes %s..%s overlap existing codes", batch.First, batch.Last),
			Err:     err,
		}
	}
	if err != nil {
		return batch, fmt.Errorf("generate: %w", err)
	}

	batch.Created = created
	p.logger.Info("generated access codes", "batch", batchID, "first", batch.First, "last", batch.Last, "count", created)
	return batch, nil
}
