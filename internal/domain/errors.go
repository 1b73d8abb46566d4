package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure: no infrastructure dependency.

var (
	// Analysis errors
	ErrNoSamples        = errors.New("no samples to analyze")
	ErrNoSystemDelta    = errors.New("total power does not exceed baseline: attribution undefined")
	ErrZeroMedian       = errors.New("median is zero: divergence undefined")
	ErrInvalidComponent = errors.New("invalid component")

	// Sampler errors
	ErrPowermetricsMissing = errors.New("powermetrics not found")
	ErrNotRoot             = errors.New("powermetrics requires root: rerun with sudo")

	// Affinity errors
	ErrAffinityUnsupported = errors.New("cpu affinity control not supported on this platform")
	ErrProcessNotFound     = errors.New("no running process matches target")

	// Storage errors
	ErrRunNotFound      = errors.New("run not found")
	ErrBaselineNotFound = errors.New("baseline not found")
	ErrFeedbackNotFound = errors.New("feedback run not found")

	// CRM errors
	ErrClientNotFound     = errors.New("client not found")
	ErrClientHasInvoices  = errors.New("client has invoices: remove them first")
	ErrInvoiceNotFound    = errors.New("invoice not found")
	ErrInvoiceEmpty       = errors.New("invoice must have at least one line item")
	ErrInvoiceAlreadyPaid = errors.New("invoice already paid")
	ErrLeadNotFound       = errors.New("lead not found")
	ErrInvalidLeadStatus  = errors.New("invalid lead status transition")
	ErrTemplateNotFound   = errors.New("email template not found")
	ErrTemplateExists     = errors.New("email template already exists")
)
