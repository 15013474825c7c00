package fitcsv

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelBike(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  BikeModel
	}{
		{
			name:  "mtb power meter",
			input: "Definition,0,file_id\nData,1,device_info,ant_device_number,\"4315\",,\n",
			want:  BikeMTB,
		},
		{
			name:  "mtb speed sensor",
			input: "Data,1,device_info,ant_device_number,\"33509\",,\n",
			want:  BikeMTB,
		},
		{
			name:  "gravel cadence sensor",
			input: "Data,1,device_info,ant_device_number,\"2230\",,\n",
			want:  BikeGravel,
		},
		{
			name:  "gravel speed sensor without trailing newline",
			input: "Data,1,device_info,ant_device_number,\"9560\",,",
			want:  BikeGravel,
		},
		{
			name:  "first match in stream order wins",
			input: "Data,1,device_info,ant_device_number,\"2230\",,\nData,1,device_info,ant_device_number,\"4315\",,\n",
			want:  BikeGravel,
		},
		{
			name:  "number embedded in longer value does not match",
			input: "Data,1,device_info,ant_device_number,\"43150\",,\n",
			want:  BikeUnknown,
		},
		{
			name:  "no sensors",
			input: "Data,0,record,timestamp,\"1060261132\",s,\n",
			want:  BikeUnknown,
		},
		{
			name:  "empty input",
			input: "",
			want:  BikeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LabelBike(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBikeModel_Identifiers(t *testing.T) {
	assert.Equal(t, "b7647614", BikeMTB.GearID())
	assert.Equal(t, "b8850168", BikeGravel.GearID())
	assert.Equal(t, "b0000000", BikeUnknown.GearID())
	assert.Equal(t, "b0000000", BikeModel(42).GearID())

	assert.Equal(t, "mtb", BikeMTB.Slug())
	assert.Equal(t, "gravel", BikeGravel.Slug())
	assert.Equal(t, "unknown", BikeUnknown.Slug())

	assert.True(t, BikeMTB.Known())
	assert.False(t, BikeUnknown.Known())

	var zero BikeModel
	assert.Equal(t, BikeUnknown, zero)
}

func TestParseGearID(t *testing.T) {
	for _, m := range []BikeModel{BikeUnknown, BikeMTB, BikeGravel} {
		assert.Equal(t, m, ParseGearID(m.GearID()))
	}
	assert.Equal(t, BikeUnknown, ParseGearID("b1234567"))
}
