package runlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFile(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T, dir string){
		"empty file is removed on close":   testEmptyRemoved,
		"lines are kept":                   testLinesKept,
		"transfer lines are tab separated": testTransfer,
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, t.TempDir())
		})
	}
}

func testEmptyRemoved(t *testing.T, dir string) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	f, err := Create(dir, "upload_cdms_errors", ts)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "upload_cdms_errors_20240301T123000.txt"), f.Path())

	kept, err := f.Close()
	require.NoError(t, err)
	assert.False(t, kept)
	_, err = os.Stat(f.Path())
	assert.True(t, os.IsNotExist(err))
}

func testLinesKept(t *testing.T, dir string) {
	f, err := Create(dir, "upload_cdms_errors", time.Now())
	require.NoError(t, err)
	require.NoError(t, f.Line("No sampleRef for %s (%s)", "123", "a.png"))
	kept, err := f.Close()
	require.NoError(t, err)
	assert.True(t, kept)

	data, err := os.ReadFile(f.Path())
	require.NoError(t, err)
	assert.Equal(t, "No sampleRef for 123 (a.png)\n", string(data))
	assert.Error(t, f.Line("late"))
}

func testTransfer(t *testing.T, dir string) {
	f, err := Open(filepath.Join(dir, "s3cp.txt"))
	require.NoError(t, err)
	require.NoError(t, f.Transfer("/nrs/cdm/a.png", "janelia-flylight-color-depth", "JRC2018/Lib/a.png"))
	_, err = f.Close()
	require.NoError(t, err)
	data, err := os.ReadFile(f.Path())
	require.NoError(t, err)
	assert.Equal(t, "/nrs/cdm/a.png\tjanelia-flylight-color-depth/JRC2018/Lib/a.png\n", string(data))
}
