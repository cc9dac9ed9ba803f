package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVKeys(t *testing.T) {
	tests := []struct {
		name string
		keys []string
		want []string
	}{
		{
			name: "keeps csv in key order",
			keys: []string{"exports/2025-03-02.csv", "exports/2025-03-01.csv", "exports/2025-03-03.CSV"},
			want: []string{"exports/2025-03-01.csv", "exports/2025-03-02.csv", "exports/2025-03-03.CSV"},
		},
		{
			name: "skips folders and other files",
			keys: []string{"exports/", "exports/readme.txt", "exports/old/2024.csv.gz", "exports/a.csv"},
			want: []string{"exports/a.csv"},
		},
		{
			name: "nothing to import",
			keys: []string{"exports/"},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, csvKeys(tt.keys))
		})
	}
}

func TestReadSourcesLocalFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "clocks.csv")
	require.NoError(t, os.WriteFile(file, []byte("employee_no,timestamp,type\n"), 0o600))

	sources, err := readSources(context.Background(), file)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, file, sources[0].name)
	assert.Equal(t, "employee_no,timestamp,type\n", string(sources[0].data))

	_, err = readSources(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorContains(t, err, "failed to open file")
}
