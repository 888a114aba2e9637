package gallery

import (
	"errors"
	"fmt"
)

// Failure is one entry that a batch operation could not process
type Failure struct {
	ID  int64  `json:"id"`
	Err string `json:"error"`
}

// LoadReport summarizes LoadAll
type LoadReport struct {
	Total  int       `json:"total"`
	Loaded int       `json:"loaded"`
	Failed []Failure `json:"failed,omitempty"`
}

// Summary returns a user-facing line, empty when everything loaded
func (r LoadReport) Summary() string {
	if len(r.Failed) == 0 {
		return ""
	}
	return fmt.Sprintf("%d of %d screenshots could not be loaded", len(r.Failed), r.Total)
}

// BatchReport summarizes a multi-entry mutation such as ClearAll
type BatchReport struct {
	Attempted int       `json:"attempted"`
	Failed    []Failure `json:"failed,omitempty"`
}

// Err joins the per-entry failures, nil when there were none
func (r BatchReport) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, fmt.Errorf("screenshot %d: %s", f.ID, f.Err))
	}
	return errors.Join(errs...)
}

// Summary returns a user-facing line, empty when nothing failed
func (r BatchReport) Summary() string {
	if len(r.Failed) == 0 {
		return ""
	}
	return fmt.Sprintf("%d of %d screenshots could not be removed", len(r.Failed), r.Attempted)
}
