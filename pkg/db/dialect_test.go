package db

import (
	"testing"

	"github.com/smallbiznis/logoforge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{
			name: "postgres",
			cfg:  config.Config{DBType: "postgres", DBHost: "db", DBPort: "5432", DBUser: "app", DBPassword: "pw", DBName: "logoforge"},
			want: "host=db user=app password=pw dbname=logoforge port=5432 sslmode=disable TimeZone=UTC",
		},
		{
			name: "postgres alias",
			cfg:  config.Config{DBType: "PostgreSQL", DBHost: "db", DBPort: "5432", DBName: "logoforge", DBSSLMode: "require"},
			want: "host=db user= password= dbname=logoforge port=5432 sslmode=require TimeZone=UTC",
		},
		{
			name: "mysql",
			cfg:  config.Config{DBType: "mysql", DBHost: "db", DBPort: "3306", DBUser: "app", DBPassword: "pw", DBName: "logoforge"},
			want: "app:pw@tcp(db:3306)/logoforge?charset=utf8mb4&parseTime=True&loc=UTC",
		},
		{
			name: "sqlite file",
			cfg:  config.Config{DBType: "sqlite", DBPath: "logoforge.db"},
			want: "logoforge.db?_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL",
		},
		{
			name: "sqlite memory",
			cfg:  config.Config{DBType: "sqlite", DBPath: ":memory:"},
			want: ":memory:?_busy_timeout=5000&_foreign_keys=on",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DSN(tc.cfg)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDSNErrors(t *testing.T) {
	_, err := DSN(config.Config{DBType: "oracle"})
	assert.ErrorIs(t, err, ErrUnsupportedDialect)

	_, err = DSN(config.Config{DBType: "postgres"})
	assert.ErrorIs(t, err, ErrMissingDatabase)

	_, err = DSN(config.Config{DBType: "sqlite"})
	assert.ErrorIs(t, err, ErrMissingDatabase)

	_, err = Dialect(config.Config{DBType: ""})
	assert.ErrorIs(t, err, ErrUnsupportedDialect)
}
