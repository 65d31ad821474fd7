package ldapsource

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGSSAPIClientMissingConfig(t *testing.T) {
	params := &Params{
		BindDN:         "svc@EXAMPLE.COM",
		Password:       "secret",
		KerberosRealm:  "EXAMPLE.COM",
		KerberosConfig: filepath.Join(t.TempDir(), "krb5.conf"),
	}
	_, err := newGSSAPIClient(params)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "krb5.conf not found")
}

func TestNewGSSAPIClientNoCredentials(t *testing.T) {
	conf := filepath.Join(t.TempDir(), "krb5.conf")
	require.NoError(t, os.WriteFile(conf, []byte("[libdefaults]\n  default_realm = EXAMPLE.COM\n"), 0o600))

	params := &Params{
		BindDN:         "svc",
		KerberosRealm:  "EXAMPLE.COM",
		KerberosConfig: conf,
		KerberosKeytab: filepath.Join(t.TempDir(), "missing.keytab"),
	}
	_, err := newGSSAPIClient(params)
	assert.ErrorIs(t, err, ErrNoKerberosCredentials)
}

func TestPrincipal(t *testing.T) {
	tests := []struct {
		name      string
		params    Params
		wantUser  string
		wantRealm string
	}{
		{name: "realm parameter", params: Params{BindDN: "svc", KerberosRealm: "EXAMPLE.COM"}, wantUser: "svc", wantRealm: "EXAMPLE.COM"},
		{name: "realm in name", params: Params{BindDN: "svc@CORP.LOCAL"}, wantUser: "svc", wantRealm: "CORP.LOCAL"},
		{name: "parameter wins", params: Params{BindDN: "svc@CORP.LOCAL", KerberosRealm: "EXAMPLE.COM"}, wantUser: "svc", wantRealm: "EXAMPLE.COM"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, realm := principal(&tt.params)
			assert.Equal(t, tt.wantUser, user)
			assert.Equal(t, tt.wantRealm, realm)
		})
	}
}

func TestServicePrincipal(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		want    string
		wantErr bool
	}{
		{name: "from url", params: Params{URL: "ldaps://dc1.example.com:636"}, want: "ldap/dc1.example.com"},
		{name: "override", params: Params{URL: "ldap://10.0.0.1", KerberosSPN: "ldap/dc1.example.com"}, want: "ldap/dc1.example.com"},
		{name: "no host", params: Params{URL: "ldap://"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := servicePrincipal(&tt.params)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
