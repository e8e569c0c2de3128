package repository

import (
	"context"

	"github.com/akinalp/paraf/models"
)

// TypingRepository, typing sinyali yayın operasyonlarını tanımlayan interface.
//
// Typing ephemeral veridir ama iletim yolu diğer yazılarla aynıdır:
// lokal satır upsert edilir, senkronizasyon katmanı değişikliği
// karşı tarafa taşır. Bu sayede notifier DB'den başka transport bilmez.
type TypingRepository interface {
	// UpsertTyping, (actor, counterpart) çifti için typing durumunu yazar.
	// Var olan satır güncellenir, yoksa eklenir.
	UpsertTyping(ctx context.Context, status *models.TypingStatus) error
}
