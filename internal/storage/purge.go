package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// PurgeAliases are the aliases holding per-session working artifacts.
var PurgeAliases = []string{AliasEdited, AliasRawText, AliasMerged, AliasChunks}

// sessionKeyMatcher reports whether key in alias belongs to sessionID.
// Chunk and raw text objects live under "<sid>/"; merged and edited
// outputs have exactly one key per session.
func sessionKeyMatcher(alias, sessionID string) func(key string) bool {
	switch alias {
	case AliasChunks, AliasRawText:
		prefix := sessionID + "/"
		return func(key string) bool { return strings.HasPrefix(key, prefix) }
	case AliasMerged:
		return func(key string) bool { return key == sessionID+".mp3" }
	case AliasEdited:
		return func(key string) bool { return key == sessionID+"_edited.mp3" }
	default:
		return func(string) bool { return false }
	}
}

// sessionListPrefix narrows List to the keys a session can own.
func sessionListPrefix(alias, sessionID string) string {
	switch alias {
	case AliasChunks, AliasRawText:
		return sessionID + "/"
	default:
		return sessionID
	}
}

// PurgeSession deletes the session's objects in the working aliases.
// Individual delete failures are logged and joined into the returned error;
// the purge keeps going.
func PurgeSession(ctx context.Context, store Store, sessionID string, logger *slog.Logger) (int, error) {
	if sessionID == "" {
		return 0, errors.New("purge requires a session id")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var errs []error
	deleted := 0
	for _, alias := range PurgeAliases {
		keys, err := store.List(ctx, alias, sessionListPrefix(alias, sessionID))
		if err != nil {
			logger.Warn("purge list failed", "alias", alias, "session_id", sessionID, "error", err)
			errs = append(errs, fmt.Errorf("list %s: %w", alias, err))
			continue
		}

		owned := sessionKeyMatcher(alias, sessionID)
		for _, key := range keys {
			if !owned(key) {
				continue
			}
			if err := store.Delete(ctx, alias, key); err != nil {
				logger.Warn("purge delete failed", "alias", alias, "key", key, "error", err)
				errs = append(errs, err)
				continue
			}
			deleted++
		}
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
	}

	logger.Info("session purged", "session_id", sessionID, "deleted", deleted)
	return deleted, errors.Join(errs...)
}
