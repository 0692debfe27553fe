package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNormalizeMySQLDSN(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		user, pass string
		want       string
	}{
		{"empty", "  ", "", "", ""},
		{"native dsn untouched", "u:p@tcp(db:3306)/shop?parseTime=true", "x", "y", "u:p@tcp(db:3306)/shop?parseTime=true"},
		{"url with defaults", "mysql://u:p@db:3306/shop", "", "", "u:p@tcp(db:3306)/shop?charset=utf8mb4&parseTime=true"},
		{"jdbc with overrides", "jdbc:mysql://db:3306/shop?useSSL=false&useUnicode=true", "root", "secret", "root:secret@tcp(db:3306)/shop?charset=utf8mb4&parseTime=true&tls=false"},
		{"characterEncoding becomes charset", "mysql://u@db/shop?characterEncoding=latin1", "", "", "u@tcp(db)/shop?charset=latin1&parseTime=true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeMySQLDSN(tt.in, tt.user, tt.pass))
		})
	}
}

func TestMaskDSN(t *testing.T) {
	assert.Equal(t, "root:****@tcp(db)/shop", maskDSN("root:secret@tcp(db)/shop"))
	assert.Equal(t, "tcp(db)/shop", maskDSN("tcp(db)/shop"))
}

func TestNewGorm_UnsupportedDriver(t *testing.T) {
	_, err := NewGorm(Opts{Driver: "oracle"})
	require.ErrorIs(t, err, ErrUnsupportedDriver)
}

func TestNewGorm_SQLite(t *testing.T) {
	db, err := NewGorm(Opts{
		Driver:       "sqlite",
		DSN:          "file:gorm_test?mode=memory&cache=shared",
		MaxOpenConns: 1,
		LogLevel:     "silent",
		Logger:       zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	var one int
	require.NoError(t, db.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}
