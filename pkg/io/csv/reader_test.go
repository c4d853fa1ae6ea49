package csv

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/fraudguard/pkg/dataset"
)

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadFile(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantCols []string
		wantRows int
		wantErr  bool
	}{
		{
			name:     "quoted label column",
			content:  "Time,V1,Amount,Class\n0,-1.3598071336738,149.62,\"0\"\n406,-2.3122265423263,0,\"1\"\n",
			wantCols: []string{"Time", "V1", "Amount", "Class"},
			wantRows: 2,
		},
		{
			name:     "header only",
			content:  "a,b\n",
			wantCols: []string{"a", "b"},
			wantRows: 0,
		},
		{
			name:    "malformed value",
			content: "a,b\n1,x\n",
			wantErr: true,
		},
		{
			name:    "ragged row",
			content: "a,b\n1,2,3\n",
			wantErr: true,
		},
		{
			name:    "empty file",
			content: "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := ReadFile(writeFixture(t, tt.content))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCols, tbl.Columns)
			assert.Equal(t, tt.wantRows, tbl.Len())
		})
	}
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "absent.csv"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestReaderWithoutHeader(t *testing.T) {
	r, err := NewReader(writeFixture(t, "1,2\n3,4\n"), WithHeader(false))
	require.NoError(t, err)
	defer r.Close()

	tbl, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, []string{"col_0", "col_1"}, tbl.Columns)
	assert.Equal(t, [][]float64{{1, 2}, {3, 4}}, tbl.Rows)
}

func TestWriteThenRead(t *testing.T) {
	in, err := dataset.New(
		[]string{"Amount", "fraud_probability"},
		[][]float64{{149.62, 0.1}, {0.000001, 1}, {-3.5e-7, 0.3333333333333333}},
	)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out", "table.csv")
	require.NoError(t, WriteFile(path, in))

	out, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, in.Columns, out.Columns)
	assert.Equal(t, in.Rows, out.Rows, "floats must survive the round trip exactly")
}
