package oemsync

import (
	"fmt"
	"io"
	"time"
)

type PhaseStats struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

type Failure struct {
	ReceiptID     int64  `json:"receipt_id"`
	ReceiptNumber string `json:"receipt_number"`
	Error         string `json:"error"`
}

type Report struct {
	RunID             string     `json:"run_id"`
	Mode              Mode       `json:"mode"`
	StartedAt         time.Time  `json:"started_at"`
	FinishedAt        time.Time  `json:"finished_at"`
	Since             *time.Time `json:"since,omitempty"`
	Products          PhaseStats `json:"products"`
	Receipts          PhaseStats `json:"receipts"`
	Aggregates        PhaseStats `json:"aggregates"`
	ProductsCreated   int        `json:"products_created"`
	ProductsUpdated   int        `json:"products_updated"`
	NewSales          int        `json:"new_sales"`
	NewPayments       int        `json:"new_payments"`
	TokenRefreshes    int        `json:"token_refreshes"`
	AggregateRows     int        `json:"aggregate_rows"`
	AlertsResolved    int        `json:"alerts_resolved"`
	Failures          []Failure  `json:"failures,omitempty"`
	WatermarkAdvanced bool       `json:"watermark_advanced"`
}

// Failed reports whether any record or aggregate push failed to sync.
func (r *Report) Failed() bool {
	return r.Products.Failed > 0 || r.Receipts.Failed > 0 || r.Aggregates.Failed > 0
}

const maxListedFailures = 10

// Summary writes the operator-facing recap of a run.
func (r *Report) Summary(w io.Writer, errorLogPath string) {
	fmt.Fprintf(w, "Sync %s (%s) %s -> %s\n", r.RunID, r.Mode,
		r.StartedAt.Format("2006-01-02 15:04:05"), r.FinishedAt.Format("2006-01-02 15:04:05"))
	if r.Since != nil {
		fmt.Fprintf(w, "Window: receipts since %s\n", r.Since.Format("2006-01-02 15:04"))
	} else {
		fmt.Fprintln(w, "Window: full history")
	}
	fmt.Fprintf(w, "Products: %d ok, %d failed (%d created, %d updated)\n",
		r.Products.Success, r.Products.Failed, r.ProductsCreated, r.ProductsUpdated)
	fmt.Fprintf(w, "Receipts: %d ok, %d skipped, %d failed\n", r.Receipts.Success, r.Receipts.Skipped, r.Receipts.Failed)
	fmt.Fprintf(w, "New sales: %d, new payments: %d, token refreshes: %d\n", r.NewSales, r.NewPayments, r.TokenRefreshes)
	if r.Aggregates.Total > 0 {
		fmt.Fprintf(w, "Aggregates: %d pushes ok, %d failed (%d rows, %d alerts resolved)\n",
			r.Aggregates.Success, r.Aggregates.Failed, r.AggregateRows, r.AlertsResolved)
	}

	if len(r.Failures) > 0 {
		fmt.Fprintf(w, "Failed receipts (%d):\n", len(r.Failures))
		for _, f := range r.Failures[:min(len(r.Failures), maxListedFailures)] {
			fmt.Fprintf(w, "  - %s (ID: %d): %s\n", f.ReceiptNumber, f.ReceiptID, f.Error)
		}
		if extra := len(r.Failures) - maxListedFailures; extra > 0 {
			fmt.Fprintf(w, "  ... and %d more (see %s)\n", extra, errorLogPath)
		}
	}
	if r.WatermarkAdvanced {
		fmt.Fprintln(w, "Watermark advanced")
	} else {
		fmt.Fprintln(w, "Watermark NOT advanced")
	}
}
