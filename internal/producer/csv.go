package producer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"arbwatch/internal/graphcsr"
)

// OnMalformed controls how CsvStreamer reacts to a row it cannot decode.
type OnMalformed string

const (
	// SkipMalformed logs and drops the offending row, continuing the stream.
	SkipMalformed OnMalformed = "skip"
	// FailMalformed aborts the stream and returns the decode error.
	FailMalformed OnMalformed = "fail"
)

// CsvStreamer reads "from,to,rate" rows from a CSV file and emits them as
// EdgeBatch values of BatchSize rows, spaced by Interval.
type CsvStreamer struct {
	Path        string
	BatchSize   int
	Interval    time.Duration
	OnMalformed OnMalformed
}

// Run implements Producer.
func (c *CsvStreamer) Run(ctx context.Context, out chan<- graphcsr.EdgeBatch) error {
	f, err := os.Open(c.Path)
	if err != nil {
		return fmt.Errorf("opening csv source: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 3
	r.TrimLeadingSpace = true

	batchSize := c.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}

	defer close(out)

	batch := make(graphcsr.EdgeBatch, 0, batchSize)
	rowNum := 0
	decoded := 0
	skipped := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		sendBatch := make(graphcsr.EdgeBatch, len(batch))
		copy(sendBatch, batch)
		batch = batch[:0]
		select {
		case out <- sendBatch:
		case <-ctx.Done():
			return ctx.Err()
		}
		if c.Interval > 0 {
			select {
			case <-time.After(c.Interval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}

	for {
		rowNum++
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading csv row %d: %w", rowNum, err)
		}

		edge, derr := decodeRow(record)
		if derr != nil && rowNum == 1 {
			// A first row with no numeric field is the optional header.
			numeric := false
			for _, field := range record {
				if _, err := strconv.ParseFloat(field, 64); err == nil {
					numeric = true
				}
			}
			if !numeric {
				continue
			}
		}
		if derr != nil {
			if c.OnMalformed == FailMalformed {
				return fmt.Errorf("row %d: %w", rowNum, derr)
			}
			log.Warn().Int("row", rowNum).Err(derr).Msg("skipping malformed csv row")
			skipped++
			continue
		}

		decoded++
		batch = append(batch, edge)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	if err := flush(); err != nil {
		return err
	}

	log.Info().Int("decoded", decoded).Int("skipped", skipped).Str("path", c.Path).Msg("csv producer exhausted")
	return nil
}

func decodeRow(record []string) (graphcsr.RawEdge, error) {
	from, err := strconv.Atoi(record[0])
	if err != nil {
		return graphcsr.RawEdge{}, fmt.Errorf("parsing from node: %w", err)
	}
	to, err := strconv.Atoi(record[1])
	if err != nil {
		return graphcsr.RawEdge{}, fmt.Errorf("parsing to node: %w", err)
	}
	rate, err := strconv.ParseFloat(record[2], 64)
	if err != nil {
		return graphcsr.RawEdge{}, fmt.Errorf("parsing rate: %w", err)
	}
	edge := graphcsr.RawEdge{From: from, To: to, Rate: rate}
	if from < 0 || to < 0 || !graphcsr.ValidRate(rate) {
		return graphcsr.RawEdge{}, fmt.Errorf("invalid edge %+v", edge)
	}
	return edge, nil
}
