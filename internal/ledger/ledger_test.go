package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func newTestLedger(t *testing.T) *Ledger {
	return New(filepath.Join(t.TempDir(), "failed_videos.txt"))
}

func TestLedgerRecordContainsClear(t *testing.T) {
	assert := assert_.New(t)
	l := newTestLedger(t)

	found, err := l.Contains("BV1xx411c7mD")
	assert.NoError(err)
	assert.False(found)

	assert.NoError(l.Record("BV1xx411c7mD"))
	assert.NoError(l.Record("BV1yy411c7mE"))
	// Duplicate records are collapsed
	assert.NoError(l.Record("BV1xx411c7mD"))

	found, err = l.Contains("BV1xx411c7mD")
	assert.NoError(err)
	assert.True(found)

	ids, err := l.List()
	assert.NoError(err)
	assert.Equal([]string{"BV1xx411c7mD", "BV1yy411c7mE"}, ids)

	assert.NoError(l.Clear("BV1xx411c7mD"))
	ids, err = l.List()
	assert.NoError(err)
	assert.Equal([]string{"BV1yy411c7mE"}, ids)
}

func TestLedgerClearExactMatchOnly(t *testing.T) {
	assert := assert_.New(t)
	l := newTestLedger(t)

	assert.NoError(l.Record("BV1xx411c7mD"))
	assert.NoError(l.Record("BV1xx411c7mDX"))

	// Clearing the shorter ID must not clobber the longer one that contains
	// it as a prefix
	assert.NoError(l.Clear("BV1xx411c7mD"))
	ids, err := l.List()
	assert.NoError(err)
	assert.Equal([]string{"BV1xx411c7mDX"}, ids)
}

func TestLedgerFileFormat(t *testing.T) {
	assert := assert_.New(t)
	l := newTestLedger(t)

	assert.NoError(l.Record("BV1xx411c7mD"))
	data, err := os.ReadFile(l.path)
	assert.NoError(err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	assert.Len(lines, 2)
	assert.True(strings.HasPrefix(lines[0], "#"))
	assert.Equal("BV1xx411c7mD", lines[1])
}

func TestLedgerHonorsExternalEdits(t *testing.T) {
	assert := assert_.New(t)
	l := newTestLedger(t)

	assert.NoError(os.WriteFile(l.path, []byte("# hand-written\nBV1zz411c7mF\n\n"), 0644))
	found, err := l.Contains("BV1zz411c7mF")
	assert.NoError(err)
	assert.True(found)
}
