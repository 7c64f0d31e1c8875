package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// progress logs every evaluation to CSV and stdout and remembers the best
// parameters seen, which may come from any evaluation rather than the
// optimizer's final point.
type progress struct {
	params   *ParamVector
	maxEvals int
	out      io.Writer
	log      *csv.Writer

	evals       int
	start       time.Time
	bestFitness float64
	bestParams  []float64
}

func newProgress(params *ParamVector, maxEvals int, logFile, out io.Writer) (*progress, error) {
	p := &progress{
		params:      params,
		maxEvals:    maxEvals,
		out:         out,
		log:         csv.NewWriter(logFile),
		start:       time.Now(),
		bestFitness: 1e9,
	}

	header := []string{"eval", "fitness", "quality"}
	for _, spec := range params.Specs {
		header = append(header, spec.Name)
	}
	if err := p.log.Write(header); err != nil {
		return nil, fmt.Errorf("writing log header: %w", err)
	}
	p.log.Flush()
	return p, p.log.Error()
}

// observe records one evaluation of the clamped raw values.
func (p *progress) observe(values []float64, fitness, quality float64) {
	p.evals++
	if fitness < p.bestFitness {
		p.bestFitness = fitness
		p.bestParams = values
	}

	row := []string{
		strconv.Itoa(p.evals),
		strconv.FormatFloat(fitness, 'f', 6, 64),
		strconv.FormatFloat(quality, 'f', 6, 64),
	}
	for _, v := range values {
		row = append(row, strconv.FormatFloat(v, 'f', 6, 64))
	}
	_ = p.log.Write(row)
	p.log.Flush()

	elapsed := time.Since(p.start)
	remaining := time.Duration(p.maxEvals-p.evals) * (elapsed / time.Duration(p.evals))
	fmt.Fprintf(p.out, "Eval %d/%d: quality=%.3f (best=%.3f) | elapsed: %s, ETA: %s\n",
		p.evals, p.maxEvals, quality, -p.bestFitness,
		formatDuration(elapsed), formatDuration(remaining))
}

// formatDuration formats a duration as 1h02m03s, or 2m03s under an hour.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}
