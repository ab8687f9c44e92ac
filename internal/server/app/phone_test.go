package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		countryCode string
		want        string
		wantErr     bool
	}{
		{
			name:        "local number gets country code",
			raw:         "812345678",
			countryCode: "62",
			want:        "62812345678",
		},
		{
			name:        "formatted number is stripped",
			raw:         "+62 812-3456-7890",
			countryCode: "62",
			want:        "6281234567890",
		},
		{
			name:        "long number keeps its own country code",
			raw:         "6281234567890",
			countryCode: "62",
			want:        "6281234567890",
		},
		{
			name:        "short local number without configured code",
			raw:         "81234567",
			countryCode: "",
			want:        "81234567",
		},
		{
			name:        "too few digits",
			raw:         "12345",
			countryCode: "62",
			wantErr:     true,
		},
		{
			name:        "letters only",
			raw:         "not-a-number",
			countryCode: "62",
			wantErr:     true,
		},
		{
			name:        "empty input",
			raw:         "",
			countryCode: "62",
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhone(tt.raw, tt.countryCode)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
