package seendb

import (
	"path/filepath"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func TestSeenDB(t *testing.T) {
	assert := assert_.New(t)
	path := filepath.Join(t.TempDir(), "seen.db")

	db, err := New(path)
	assert.NoError(err)

	seen, err := db.Seen("BV1xx411c7mD")
	assert.NoError(err)
	assert.False(seen)

	assert.NoError(db.MarkSeen("BV1xx411c7mD"))
	seen, err = db.Seen("BV1xx411c7mD")
	assert.NoError(err)
	assert.True(seen)

	// Marking twice is fine
	assert.NoError(db.MarkSeen("BV1xx411c7mD"))

	// State survives reopening
	assert.NoError(db.Close())
	db, err = New(path)
	assert.NoError(err)
	defer db.Close()
	seen, err = db.Seen("BV1xx411c7mD")
	assert.NoError(err)
	assert.True(seen)
}
