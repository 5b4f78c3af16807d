package openstack

import (
	"testing"

	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/flavors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flavorFixtures() []flavors.Flavor {
	return []flavors.Flavor{
		{ID: "1", Name: "m1.tiny", RAM: 512, VCPUs: 1},
		{ID: "2", Name: "m1.small", RAM: 2048, VCPUs: 1},
		{ID: "3", Name: "m1.medium", RAM: 4096, VCPUs: 2},
		{ID: "4", Name: "c1.medium", RAM: 4096, VCPUs: 4},
	}
}

func TestMatchFlavor(t *testing.T) {
	flvs := flavorFixtures()

	tests := []struct {
		name string
		ref  string
		want string // expected flavor id
	}{
		{
			name: "by id",
			ref:  "3",
			want: "3",
		},
		{
			name: "by exact name",
			ref:  "m1.small",
			want: "2",
		},
		{
			name: "by regex, smallest match wins",
			ref:  `^m1\..*`,
			want: "1",
		},
		{
			name: "regex tie on RAM broken by VCPUs",
			ref:  `medium$`,
			want: "3",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f, err := matchFlavor(flvs, tc.ref)
			require.NoError(t, err)
			assert.Equal(t, tc.want, f.ID)
		})
	}
}

func TestMatchFlavorNotFound(t *testing.T) {
	_, err := matchFlavor(flavorFixtures(), "x1.mega")
	require.ErrorIs(t, err, ErrNoFlavor)
}

func TestMatchFlavorInvalidRegex(t *testing.T) {
	_, err := matchFlavor(flavorFixtures(), "m1.(")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoFlavor)
}
