package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(Sheet{
		Headers: []string{"name", "email", "phone"},
		Records: [][]string{
			{"Ahmed Hassan", "ahmed@example.com", "+966501234567"},
			{"Al-Zahra, Fatima", "fatima@example.com"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "name,email,phone\nAhmed Hassan,ahmed@example.com,+966501234567\n\"Al-Zahra, Fatima\",fatima@example.com,\n", string(out))
}

func TestCSVExporterRejectsInvalidSheets(t *testing.T) {
	_, err := NewCSVExporter().Render(Sheet{})
	require.Error(t, err)

	_, err = NewCSVExporter().Render(Sheet{Headers: []string{"name"}, Records: [][]string{{"a", "b"}}})
	require.Error(t, err)
}
