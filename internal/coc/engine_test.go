package coc

import (
	"testing"

	"github.com/vodalab/vzorec/internal/model"
)

func TestNextStatus(t *testing.T) {
	const intake = "lab-intake"

	if got := NextStatus("courier-7", intake); got != model.StatusInCOC {
		t.Errorf("transfer to courier: expected in_coc, got %q", got)
	}
	if got := NextStatus(intake, intake); got != model.StatusSubmitted {
		t.Errorf("transfer to lab intake: expected submitted, got %q", got)
	}
	if got := NextStatus("", intake); got != model.StatusInCOC {
		t.Errorf("empty recipient: expected in_coc, got %q", got)
	}
}
