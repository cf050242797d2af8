package store

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	return db
}

func TestInitMigratesAllTables(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, Init(db))

	for _, model := range []any{
		&Provider{}, &ProviderEndpoint{}, &ProviderAPIKey{},
		&GlobalModel{}, &Model{}, &VideoTask{}, &Usage{}, &DimensionCollector{},
	} {
		require.True(t, db.Migrator().HasTable(model))
	}
}

func TestJSONColumnRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, Init(db))

	endpoint := ProviderEndpoint{
		ProviderID:   1,
		BaseURL:      "https://api.openai.com",
		APIFamily:    "openai",
		EndpointKind: "chat",
		FormatAcceptanceConfig: JSONColumn{
			"enabled":           true,
			"accept_formats":    []any{"claude:chat"},
			"stream_conversion": true,
		},
	}
	require.NoError(t, db.Create(&endpoint).Error)

	var reloaded ProviderEndpoint
	require.NoError(t, db.First(&reloaded, endpoint.ID).Error)
	require.Equal(t, true, reloaded.FormatAcceptanceConfig["enabled"])
}

func TestJSONListRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, Init(db))

	key := ProviderAPIKey{
		ProviderID:      1,
		APIKeyEncrypted: "enc:abc",
		APIFormats:      JSONList{"openai:chat", "openai:cli"},
	}
	require.NoError(t, db.Create(&key).Error)

	var reloaded ProviderAPIKey
	require.NoError(t, db.First(&reloaded, key.ID).Error)
	require.Len(t, reloaded.APIFormats, 2)
	require.Equal(t, "openai:chat", reloaded.APIFormats[0])
}
