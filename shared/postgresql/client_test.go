package postgresql

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		wantHost string
		wantPath string
		wantSSL  string
		wantOpts string
		wantUser string
		wantPass string
	}{
		{
			name:     "defaults sslmode to disable",
			config:   Config{Host: "localhost", Port: 5432, User: "postgres", Password: "secret", Database: "github_for_jira"},
			wantHost: "localhost:5432",
			wantPath: "/github_for_jira",
			wantSSL:  "disable",
			wantUser: "postgres",
			wantPass: "secret",
		},
		{
			name:     "read only replica",
			config:   Config{Host: "replica.internal", Port: 6432, User: "ro", Password: "p@ss word", Database: "gfj", SSLMode: "require", ReadOnly: true},
			wantHost: "replica.internal:6432",
			wantPath: "/gfj",
			wantSSL:  "require",
			wantOpts: "-c default_transaction_read_only=on",
			wantUser: "ro",
			wantPass: "p@ss word",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.config.DSN())
			require.NoError(t, err)

			assert.Equal(t, "postgres", u.Scheme)
			assert.Equal(t, tt.wantHost, u.Host)
			assert.Equal(t, tt.wantPath, u.Path)
			assert.Equal(t, tt.wantSSL, u.Query().Get("sslmode"))
			assert.Equal(t, tt.wantOpts, u.Query().Get("options"))
			assert.Equal(t, tt.wantUser, u.User.Username())
			pass, _ := u.User.Password()
			assert.Equal(t, tt.wantPass, pass)
		})
	}
}

func TestClose_NilDB(t *testing.T) {
	c := &Client{}
	assert.NoError(t, c.Close())
}
