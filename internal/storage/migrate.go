package storage

import (
	"fmt"

	"github.com/franz/music-indexer/internal/model"
	"github.com/franz/music-indexer/internal/reconcile"
	"github.com/franz/music-indexer/internal/util"
)

// Migrate upgrades a loaded band document to the current schema
// in-memory. Version 1 kept every album in one array with per-entry
// missing flags; version 2 separates albums and albums_missing. The
// migrated document is only persisted by the next save.
func Migrate(b *model.Band) (bool, error) {
	if b.SchemaVersion >= model.CurrentSchemaVersion {
		return false, nil
	}

	local := []model.Album{}
	missing := append([]model.Album{}, b.AlbumsMissing...)
	for _, a := range b.Albums {
		if a.Missing {
			missing = append(missing, a)
		} else {
			local = append(local, a)
		}
	}
	b.Albums = local
	b.AlbumsMissing = missing
	b.SchemaVersion = model.CurrentSchemaVersion
	b.Normalize()

	if name, ok := overlappingName(b); ok {
		return false, fmt.Errorf("%w: %q appears as both local and missing after separating albums", util.ErrMigration, name)
	}
	return true, nil
}

// overlappingName finds an album present in both arrays under name
// normalization, which the separated schema forbids.
func overlappingName(b *model.Band) (string, bool) {
	seen := map[string]string{}
	for _, a := range b.Albums {
		seen[reconcile.NormalizeName(a.AlbumName)] = a.AlbumName
	}
	for _, a := range b.AlbumsMissing {
		if orig, ok := seen[reconcile.NormalizeName(a.AlbumName)]; ok {
			return orig, true
		}
	}
	return "", false
}
