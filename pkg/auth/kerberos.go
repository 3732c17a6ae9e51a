package auth

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/jcmturner/gokrb5/v8/client"
	"github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/credentials"
	"github.com/jcmturner/gokrb5/v8/gssapi"
	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/jcmturner/gokrb5/v8/spnego"
)

// KerberosCredentials holds Kerberos authentication material
type KerberosCredentials struct {
	domain   string
	username string
	realm    string

	krbClient *client.Client
	loginOnce sync.Once
	loginErr  error
}

// NewKerberosCredentialsFromCCache creates credentials from a ccache file
func NewKerberosCredentialsFromCCache(ccachePath, realm string) (*KerberosCredentials, error) {
	ccache, err := credentials.LoadCCache(ccachePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load ccache: %w", err)
	}

	cfg, err := LoadKrb5Config()
	if err != nil {
		return nil, err
	}

	krbClient, err := client.NewFromCCache(ccache, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kerberos client: %w", err)
	}

	username := ""
	if len(ccache.DefaultPrincipal.PrincipalName.NameString) > 0 {
		username = ccache.DefaultPrincipal.PrincipalName.NameString[0]
	}
	if realm == "" {
		realm = ccache.DefaultPrincipal.Realm
	}

	return &KerberosCredentials{
		domain:    strings.ToUpper(realm),
		username:  username,
		realm:     realm,
		krbClient: krbClient,
	}, nil
}

// NewKerberosCredentialsFromKeytab creates credentials from a keytab file
func NewKerberosCredentialsFromKeytab(keytabPath, username, realm string) (*KerberosCredentials, error) {
	cfg, err := LoadKrb5Config()
	if err != nil {
		return nil, err
	}

	kt, err := keytab.Load(keytabPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load keytab: %w", err)
	}

	return &KerberosCredentials{
		domain:    strings.ToUpper(realm),
		username:  username,
		realm:     realm,
		krbClient: client.NewWithKeytab(username, realm, kt, cfg),
	}, nil
}

// NewKerberosCredentialsFromPassword creates credentials from username/password
func NewKerberosCredentialsFromPassword(username, realm, password string) (*KerberosCredentials, error) {
	cfg, err := LoadKrb5Config()
	if err != nil {
		return nil, err
	}

	return &KerberosCredentials{
		domain:    strings.ToUpper(realm),
		username:  username,
		realm:     realm,
		krbClient: client.NewWithPassword(username, strings.ToUpper(realm), password, cfg),
	}, nil
}

// Domain returns the domain
func (k *KerberosCredentials) Domain() string {
	return k.domain
}

// Username returns the username
func (k *KerberosCredentials) Username() string {
	return k.username
}

// IsAnonymous returns false for Kerberos
func (k *KerberosCredentials) IsAnonymous() bool {
	return false
}

// SPNEGOToken requests a service ticket for spn and wraps the resulting
// AP-REQ in a SPNEGO NegTokenInit. The returned session key is the ticket
// session key, truncated or zero padded to 16 bytes.
func (k *KerberosCredentials) SPNEGOToken(spn string) ([]byte, []byte, error) {
	if k.krbClient == nil {
		return nil, nil, fmt.Errorf("kerberos client not initialized")
	}
	k.loginOnce.Do(func() { k.loginErr = k.krbClient.Login() })
	if k.loginErr != nil {
		return nil, nil, fmt.Errorf("kerberos login: %w", k.loginErr)
	}

	tkt, key, err := k.krbClient.GetServiceTicket(spn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get service ticket for %s: %w", spn, err)
	}

	apreq, err := spnego.NewKRB5TokenAPREQ(k.krbClient, tkt, key,
		[]int{gssapi.ContextFlagInteg, gssapi.ContextFlagConf}, []int{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build AP-REQ: %w", err)
	}
	mechToken, err := apreq.Marshal()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal AP-REQ: %w", err)
	}

	token, err := WrapNegTokenInit(mechToken, OIDMSKRB5, OIDKRB5)
	if err != nil {
		return nil, nil, err
	}

	sessionKey := make([]byte, 16)
	copy(sessionKey, key.KeyValue)
	return token, sessionKey, nil
}

// Close destroys the Kerberos client
func (k *KerberosCredentials) Close() {
	if k.krbClient != nil {
		k.krbClient.Destroy()
	}
}

// LoadKrb5Config loads Kerberos config from KRB5_CONFIG or the standard
// locations, falling back to a DNS-driven minimal config.
func LoadKrb5Config() (*config.Config, error) {
	paths := []string{
		os.Getenv("KRB5_CONFIG"),
		"/etc/krb5.conf",
		"/etc/krb5/krb5.conf",
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return config.Load(path)
		}
	}

	return config.NewFromString(`[libdefaults]
dns_lookup_realm = true
dns_lookup_kdc = true
`)
}
