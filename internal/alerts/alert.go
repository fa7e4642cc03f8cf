// Package alerts aggregates the admin dashboard's attention list from
// invoices, leads, tickets, projects and the job queue.
package alerts

import (
	"sort"
	"time"
)

// Severity orders alerts; critical sorts first
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank is the sort position of a severity; unknown severities sort last
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	default:
		return 4
	}
}

// Kind names the source an alert came from
type Kind string

const (
	KindOverdueInvoice Kind = "overdue_invoice"
	KindStaleLead      Kind = "stale_lead"
	KindUrgentTicket   Kind = "urgent_ticket"
	KindOverdueProject Kind = "overdue_project"
	KindFailedJob      Kind = "failed_job"
)

// Alert is one item needing staff attention
type Alert struct {
	Kind       Kind      `json:"kind"`
	Severity   Severity  `json:"severity"`
	Title      string    `json:"title"`
	Detail     string    `json:"detail,omitempty"`
	EntityID   string    `json:"entity_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Summary counts alerts per severity
type Summary struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Total    int `json:"total"`
}

// Summarize counts alerts per severity
func Summarize(alerts []Alert) Summary {
	var s Summary
	for _, a := range alerts {
		switch a.Severity {
		case SeverityCritical:
			s.Critical++
		case SeverityHigh:
			s.High++
		case SeverityMedium:
			s.Medium++
		case SeverityLow:
			s.Low++
		}
		s.Total++
	}
	return s
}

// Sort orders alerts by severity, then newest first, then entity id
func Sort(alerts []Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if ra, rb := a.Severity.Rank(), b.Severity.Rank(); ra != rb {
			return ra < rb
		}
		if !a.OccurredAt.Equal(b.OccurredAt) {
			return a.OccurredAt.After(b.OccurredAt)
		}
		return a.EntityID < b.EntityID
	})
}
