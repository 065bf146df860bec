package site

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordURL(t *testing.T) {
	s := Default()
	assert.Equal(t, "https://profi.ru/backoffice/n.php?o=12345", s.RecordURL("12345"))
}

func TestLocation(t *testing.T) {
	loc, err := Default().Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Moscow", loc.String())

	loc, err = Site{}.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())

	_, err = Site{Timezone: "Nowhere/Atlantis"}.Location()
	assert.Error(t, err)
}

func TestMergeWithDefaults(t *testing.T) {
	s := Site{SearchURL: "https://example.com/search", Greeting: "Hi {{.Name}}"}.MergeWithDefaults()

	assert.Equal(t, "https://example.com/search", s.SearchURL)
	assert.Equal(t, "Hi {{.Name}}", s.Greeting)
	assert.Equal(t, Default().DetailURL, s.DetailURL)
	assert.Equal(t, Default().Response, s.Response)
	assert.Equal(t, Default().Login, s.Login)
}
