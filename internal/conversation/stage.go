package conversation

import (
	"fmt"
	"strings"

	"github.com/manager-data-agent/backend/internal/models"
)

// ParseStage normalises a client supplied stage. An empty stage is the initial
// turn. In permissive mode every other value selects the follow-up branch; in
// strict mode only "initial" and "followUp" are accepted.
func ParseStage(raw models.Stage, strict bool) (models.Stage, error) {
	s := models.Stage(strings.TrimSpace(string(raw)))
	switch s {
	case "", models.StageInitial:
		return models.StageInitial, nil
	case models.StageFollowUp:
		return models.StageFollowUp, nil
	}
	if strict {
		return "", fmt.Errorf("unknown stage %q: expected %q or %q", raw, models.StageInitial, models.StageFollowUp)
	}
	return models.StageFollowUp, nil
}
