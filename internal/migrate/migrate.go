// Package migrate implements an offline pass that brings legacy
// plaintext credential columns up to date with the current vault
// encryption. It mirrors migrate_encrypt.py: walk every mailbox, and for
// each one with a password, client ID, or refresh token, rewrite the row
// through the storage layer so the credential vault seals it.
//
// Storage's read path already tolerates plaintext rows (vault.Decrypt
// passes through anything without the ciphertext prefix), so this tool
// is not required for correctness, only for closing the exposure window
// of any still-plaintext secrets sitting in the database.
package migrate

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stoik/mailhouse/internal/ports"
)

// Result summarizes a migration run.
type Result struct {
	Total     int
	Migrated  int
	Skipped   int
	Failed    int
	FailedIDs []string
}

// Credentials re-encrypts every mailbox's credential fields by reading
// them all with storage.ListAllMailboxes and writing each one back with
// storage.UpdateMailbox.
func Credentials(ctx context.Context, storage ports.Storage, logger zerolog.Logger) (Result, error) {
	log := logger.With().Str("component", "migrate").Logger()

	mailboxes, err := storage.ListAllMailboxes(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("migrate: list mailboxes: %w", err)
	}

	result := Result{Total: len(mailboxes)}
	log.Info().Int("count", len(mailboxes)).Msg("starting credential migration")

	for _, m := range mailboxes {
		if m.Password == "" && m.ClientID == "" && m.RefreshToken == "" {
			result.Skipped++
			log.Debug().Str("mailbox", m.Address).Msg("skipped, no credential fields")
			continue
		}

		if err := storage.UpdateMailbox(ctx, &m); err != nil {
			result.Failed++
			result.FailedIDs = append(result.FailedIDs, m.ID.String())
			log.Warn().Err(err).Str("mailbox", m.Address).Msg("migration failed")
			continue
		}

		result.Migrated++
		log.Info().Str("mailbox", m.Address).Msg("migrated")
	}

	log.Info().
		Int("migrated", result.Migrated).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("credential migration complete")

	return result, nil
}
