package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "initial_schema", migrations[0].Name)
	assert.NotEmpty(t, sqlStatements(migrations[0].SQL))

	for i := 1; i < len(migrations); i++ {
		assert.Greater(t, migrations[i].Version, migrations[i-1].Version)
	}
}

func TestParseMigrationName(t *testing.T) {
	tests := []struct {
		filename string
		version  int
		name     string
		wantErr  bool
	}{
		{"001_initial_schema.sql", 1, "initial_schema", false},
		{"042_add_indexes.sql", 42, "add_indexes", false},
		{"notes.txt", 0, "", true},
		{"initial.sql", 0, "", true},
		{"abc_schema.sql", 0, "", true},
		{"000_zero.sql", 0, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, err := parseMigrationName(tt.filename)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.version, version)
			assert.Equal(t, tt.name, name)
		})
	}
}

func TestSQLStatements_DropsCommentOnlyFragments(t *testing.T) {
	script := `-- header comment
CREATE TABLE a (id TEXT);

-- trailing comment between statements
CREATE INDEX idx_a ON a (id);
-- footer
`
	stmts := sqlStatements(script)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE TABLE a")
	assert.Contains(t, stmts[1], "CREATE INDEX idx_a")
}
