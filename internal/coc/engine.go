// Package coc implements the chain-of-custody transfer workflow: the sample
// status state machine, the authorization policy, and the single and bulk
// transfer services.
package coc

import "github.com/vodalab/vzorec/internal/model"

// NextStatus computes a sample's status after a custody handoff. The
// transition is recipient-driven, not current-status-driven: handing off to
// the lab intake identity submits the sample; handing off to anyone else
// keeps it in the chain of custody.
//
//	pending -> in_coc       (transfer to non-admin recipient)
//	pending -> submitted    (transfer to lab intake)
//	in_coc  -> in_coc       (further transfer to non-admin recipient)
//	in_coc  -> submitted    (transfer to lab intake)
//
// Terminal statuses 'pass' and 'fail' are set by the review process, never by
// a transfer; a 'pass' sample is rejected by the policy before this runs.
func NextStatus(recipientID, labIntakeID string) string {
	if recipientID == labIntakeID {
		return model.StatusSubmitted
	}
	return model.StatusInCOC
}
