package manifest

import (
	"strings"
	"testing"

	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/naming"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validManifest = `[
  {
    "_id": "2711777430261301346",
    "sampleRef": "Sample#2452746188929073250",
    "imageName": "/nrs/cdm/JRC_SS12345-20121003_31_B2-CH1_01.png",
    "alignmentSpace": "JRC2018_Unisex_20x_HR",
    "objective": "20x",
    "anatomicalArea": "Brain",
    "variants": {"gradient": "/nrs/grad/JRC_SS12345-CH1_01.png"}
  },
  {
    "_id": "2711777430261301347",
    "imageName": "1537331894_RT_18U_FL.tif",
    "imageArchivePath": "/nrs/archive/hemibrain",
    "alignmentSpace": "JRC2018_Unisex_20x_HR"
  }
]`

func TestLoad(t *testing.T) {
	records, err := Load(strings.NewReader(validManifest))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "/nrs/cdm/JRC_SS12345-20121003_31_B2-CH1_01.png", records[0].Filepath)
	assert.Equal(t, "JRC_SS12345-20121003_31_B2-CH1_01.png", records[0].Name)
	assert.Equal(t, "/nrs/grad/JRC_SS12345-CH1_01.png", records[0].Variants["gradient"])

	assert.Equal(t, "/nrs/archive/hemibrain/1537331894_RT_18U_FL.tif", records[1].Filepath)
	assert.Equal(t, "1537331894_RT_18U_FL.tif", records[1].Name)
}

func TestLoad_Invalid(t *testing.T) {
	for scenario, doc := range map[string]string{
		"not json":          `[{"_id": `,
		"missing imageName": `[{"_id": "1", "alignmentSpace": "JRC2018_Unisex_20x_HR"}]`,
		"not an array":      `{"_id": "1"}`,
		"bad variant path":  `[{"_id": "1", "imageName": "a.png", "alignmentSpace": "x", "variants": {"gradient": 3}}]`,
	} {
		t.Run(scenario, func(t *testing.T) {
			_, err := Load(strings.NewReader(doc))
			require.Error(t, err)
			assert.True(t, naming.IsFatal(err))
		})
	}
}

func TestSource(t *testing.T) {
	assert.Equal(t, "JACS", Source(""))
	assert.Equal(t, "/tmp/m.json", Source("/tmp/m.json"))
}
