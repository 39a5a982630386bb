package assistant

import (
	"context"

	"github.com/Kammelleon/pdf-qa/internal/models"
)

// Ask forwards one question to the dialogue for the live document.
func (s *Service) Ask(ctx context.Context, text string) (*models.Turn, error) {
	return s.dialogue.Submit(ctx, text)
}
