package features

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpec(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{
			name: "defaults",
			yaml: "aggregates:\n  - {name: n, op: count}\n",
		},
		{
			name:    "no aggregates",
			yaml:    "user_column: u\n",
			wantErr: true,
		},
		{
			name:    "unknown op",
			yaml:    "aggregates:\n  - {name: n, op: median, column: Amount}\n",
			wantErr: true,
		},
		{
			name:    "op needs column",
			yaml:    "aggregates:\n  - {name: n, op: mean}\n",
			wantErr: true,
		},
		{
			name:    "duplicate name",
			yaml:    "aggregates:\n  - {name: n, op: count}\n  - {name: n, op: count}\n",
			wantErr: true,
		},
		{
			name:    "negative window",
			yaml:    "aggregates:\n  - {name: n, op: count, window: -1}\n",
			wantErr: true,
		},
		{
			name:    "not yaml",
			yaml:    "aggregates: [",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := ParseSpec([]byte(tt.yaml))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, UserIDColumn, spec.UserColumn)
			assert.Equal(t, "Time", spec.TimeColumn)
			assert.Equal(t, IndexColumn, spec.OrderColumn)
		})
	}
}

func TestLoadSpecShippedDefinitions(t *testing.T) {
	spec, err := LoadSpec(filepath.Join("..", "..", "queries", "user_aggregates.yaml"))
	require.NoError(t, err)

	assert.Contains(t, spec.Names(), "user_txn_count")
	assert.Contains(t, spec.Names(), "user_avg_amount")
}

func TestLoadSpecMissing(t *testing.T) {
	_, err := LoadSpec(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
