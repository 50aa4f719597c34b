package sync

import (
	"fmt"
	"time"
)

// Trigger names what started a cycle.
type Trigger string

const (
	TriggerConnectivity Trigger = "connectivity"
	TriggerTimer        Trigger = "timer"
	TriggerManual       Trigger = "manual"
	TriggerBackground   Trigger = "background"
	TriggerStartup      Trigger = "startup"
	TriggerLocalWrite   Trigger = "local_write"
)

// Status summarizes a cycle.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Failure is one mutation that could not be delivered.
type Failure struct {
	MutationID string `json:"mutationId"`
	Type       string `json:"type"`
	Key        string `json:"key"`
	Error      string `json:"error"`
	Permanent  bool   `json:"permanent,omitempty"`
}

// UploadResult reports the upload phase.
type UploadResult struct {
	UploadedCustomers int       `json:"uploadedCustomers"`
	UploadedOrders    int       `json:"uploadedOrders"`
	Failed            int       `json:"failed"`
	Deferred          int       `json:"deferred"`
	Quarantined       int       `json:"quarantined"`
	Failures          []Failure `json:"failures,omitempty"`

	// Err is set when the queue could not be read at all.
	Err error `json:"-"`
}

// Uploaded returns the number of confirmed mutations.
func (r UploadResult) Uploaded() int {
	return r.UploadedCustomers + r.UploadedOrders
}

// OK reports whether the phase had no failures.
func (r UploadResult) OK() bool {
	return r.Err == nil && r.Failed == 0
}

// DownloadResult reports the download phase.
type DownloadResult struct {
	Customers int `json:"customers"`
	Orders    int `json:"orders"`
	MenuItems int `json:"menuItems"`

	// Warnings lists best-effort fetches that failed.
	Warnings []string `json:"warnings,omitempty"`
}

// Result reports one cycle.
type Result struct {
	Trigger   Trigger       `json:"trigger"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`

	UploadedCustomers int       `json:"uploadedCustomers"`
	UploadedOrders    int       `json:"uploadedOrders"`
	Failed            int       `json:"failed"`
	Deferred          int       `json:"deferred"`
	Quarantined       int       `json:"quarantined"`
	Failures          []Failure `json:"failures,omitempty"`

	Downloaded    bool            `json:"downloaded"`
	Download      *DownloadResult `json:"download,omitempty"`
	DownloadError string          `json:"downloadError,omitempty"`
	UploadError   string          `json:"uploadError,omitempty"`

	// Skipped is the reason the cycle did not run, if it did not.
	Skipped string `json:"skipped,omitempty"`
}

// Uploaded returns the number of confirmed mutations.
func (r Result) Uploaded() int {
	return r.UploadedCustomers + r.UploadedOrders
}

// Status summarizes the cycle.
//
//   - skipped: the cycle did not run
//   - success: nothing failed and the download completed
//   - partial: some items were confirmed or the download completed, others failed
//   - failed: nothing was confirmed and nothing was downloaded
func (r Result) Status() Status {
	switch {
	case r.Skipped != "":
		return StatusSkipped
	case r.Failed == 0 && r.UploadError == "" && r.Downloaded:
		return StatusSuccess
	case r.Uploaded() > 0 || r.Downloaded:
		return StatusPartial
	default:
		return StatusFailed
	}
}

// Summary is a one-line human description.
func (r Result) Summary() string {
	if r.Skipped != "" {
		return fmt.Sprintf("sync skipped (%s)", r.Skipped)
	}
	s := fmt.Sprintf("uploaded %d (customers=%d, orders=%d), failed %d", r.Uploaded(), r.UploadedCustomers, r.UploadedOrders, r.Failed)
	if r.Deferred > 0 {
		s += fmt.Sprintf(", deferred %d", r.Deferred)
	}
	if r.Quarantined > 0 {
		s += fmt.Sprintf(", quarantined %d", r.Quarantined)
	}
	if r.Downloaded {
		s += ", downloaded"
	} else if r.DownloadError != "" {
		s += ", download failed: " + r.DownloadError
	}
	return s
}
