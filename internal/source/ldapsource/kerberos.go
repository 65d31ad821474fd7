package ldapsource

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldap/v3/gssapi"
	krb5client "github.com/jcmturner/gokrb5/v8/client"
)

// DefaultKerberosConfig is used when no krb5.conf path is configured.
const DefaultKerberosConfig = "/etc/krb5.conf"

// ErrNoKerberosCredentials is returned when neither a credential cache, a
// keytab nor a password is configured.
var ErrNoKerberosCredentials = errors.New("ldapsource: no kerberos credentials")

// gssapiBinder is implemented by *ldap.Conn.
type gssapiBinder interface {
	GSSAPIBind(client ldap.GSSAPIClient, servicePrincipal, authzid string) error
}

// kerberosBind authenticates conn with GSSAPI. The principal is BindDN,
// optionally carrying the realm as "user@REALM".
func kerberosBind(conn gssapiBinder, params *Params) error {
	client, err := newGSSAPIClient(params)
	if err != nil {
		return err
	}
	defer func() { _ = client.DeleteSecContext() }()

	spn, err := servicePrincipal(params)
	if err != nil {
		return err
	}
	if err := conn.GSSAPIBind(client, spn, ""); err != nil {
		return fmt.Errorf("gssapi bind as %s: %w", spn, err)
	}
	return nil
}

// newGSSAPIClient picks the credentials in order: credential cache, keytab,
// password.
func newGSSAPIClient(params *Params) (ldap.GSSAPIClient, error) {
	krb5conf := params.KerberosConfig
	if krb5conf == "" {
		krb5conf = DefaultKerberosConfig
	}
	if !readable(krb5conf) {
		return nil, fmt.Errorf("kerberos configuration %s not found", krb5conf)
	}

	user, realm := principal(params)
	switch {
	case params.KerberosCCache != "" && readable(params.KerberosCCache):
		return gssapi.NewClientFromCCache(params.KerberosCCache, krb5conf, krb5client.DisablePAFXFAST(true))
	case params.KerberosKeytab != "" && readable(params.KerberosKeytab):
		return gssapi.NewClientWithKeytab(user, realm, params.KerberosKeytab, krb5conf, krb5client.DisablePAFXFAST(true))
	case user != "" && params.Password != "":
		return gssapi.NewClientWithPassword(user, realm, params.Password, krb5conf, krb5client.DisablePAFXFAST(true))
	}
	return nil, ErrNoKerberosCredentials
}

// principal splits BindDN into user and realm. KerberosRealm wins over a
// realm carried by the user name.
func principal(params *Params) (user, realm string) {
	user = params.BindDN
	if idx := strings.LastIndexByte(user, '@'); idx > 0 {
		user, realm = user[:idx], user[idx+1:]
	}
	if params.KerberosRealm != "" {
		realm = params.KerberosRealm
	}
	return user, realm
}

// servicePrincipal returns KerberosSPN, or "ldap/<host>" of the server URL.
func servicePrincipal(params *Params) (string, error) {
	if params.KerberosSPN != "" {
		return params.KerberosSPN, nil
	}
	u, err := url.Parse(params.URL)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", params.URL, err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("no host in url %q", params.URL)
	}
	return "ldap/" + host, nil
}

func readable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}
