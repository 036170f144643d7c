package coc

import (
	"github.com/vodalab/vzorec/internal/auth"
	"github.com/vodalab/vzorec/internal/model"
)

// CanInitiateTransfer reports whether the actor may hand off the sample.
// Lab admins may transfer any sample; everyone else only samples belonging
// to their own agency. The same check runs per sample inside the bulk path.
func CanInitiateTransfer(actor *auth.Claims, sample *model.Sample) bool {
	if actor == nil {
		return false
	}
	if actor.Role == model.RoleLabAdmin {
		return true
	}
	return actor.AgencyID != "" && actor.AgencyID == sample.AgencyID
}

// CanViewHistory reports whether the actor may read a sample's custody
// history. Any authenticated actor may; agency-scoped hiding happens at the
// list/query layer.
func CanViewHistory(actor *auth.Claims, sample *model.Sample) bool {
	return actor != nil
}
