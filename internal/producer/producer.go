// Package producer supplies edge batches to the writer. Any type that can
// stream EdgeBatch values onto a channel until exhausted or canceled
// implements Producer.
package producer

import (
	"context"

	"arbwatch/internal/graphcsr"
)

// Producer streams graphcsr.EdgeBatch values onto out until ctx is canceled
// or the source is exhausted, at which point it closes out and returns.
// CsvStreamer and SimStreamer close out on error returns as well (CsvStreamer
// leaves it open only when its file cannot be opened); the writer treats
// channel closure as "no more edges, proceed to final rebuild".
type Producer interface {
	Run(ctx context.Context, out chan<- graphcsr.EdgeBatch) error
}
