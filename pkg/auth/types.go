// Package auth implements the SMB2 session authentication mechanisms:
// NTLMv2 over NTLMSSP, Kerberos via gokrb5, and the SPNEGO wrapping both
// travel in.
package auth

// Credentials represents authentication credentials
type Credentials interface {
	Domain() string
	Username() string
	IsAnonymous() bool
}

// KerberosProvider is implemented by credentials that can produce a
// Kerberos AP-REQ. The returned key is the GSS session key used to derive
// SMB signing and encryption keys.
type KerberosProvider interface {
	Credentials
	SPNEGOToken(spn string) (token []byte, sessionKey []byte, err error)
}

// PasswordCredentials for password-based authentication
type PasswordCredentials struct {
	domain   string
	username string
	password string
}

// NewPasswordCredentials creates password-based credentials
func NewPasswordCredentials(domain, username, password string) *PasswordCredentials {
	return &PasswordCredentials{
		domain:   domain,
		username: username,
		password: password,
	}
}

// Domain returns the domain name
func (c *PasswordCredentials) Domain() string {
	return c.domain
}

// Username returns the username
func (c *PasswordCredentials) Username() string {
	return c.username
}

// Password returns the password
func (c *PasswordCredentials) Password() string {
	return c.password
}

// IsAnonymous reports whether the credentials carry no identity.
func (c *PasswordCredentials) IsAnonymous() bool {
	return c.username == "" && c.password == ""
}

// ntHash returns the NT one-way function of the password.
func (c *PasswordCredentials) ntHash() []byte {
	return NTHash(c.password)
}

// HashCredentials for pass-the-hash authentication
type HashCredentials struct {
	domain   string
	username string
	hash     []byte // 16-byte NT hash
}

// NewHashCredentials creates hash-based credentials
func NewHashCredentials(domain, username string, ntHash []byte) *HashCredentials {
	h := make([]byte, 16)
	copy(h, ntHash)
	return &HashCredentials{
		domain:   domain,
		username: username,
		hash:     h,
	}
}

// Domain returns the domain name
func (c *HashCredentials) Domain() string {
	return c.domain
}

// Username returns the username
func (c *HashCredentials) Username() string {
	return c.username
}

// IsAnonymous always returns false
func (c *HashCredentials) IsAnonymous() bool {
	return false
}

func (c *HashCredentials) ntHash() []byte {
	h := make([]byte, 16)
	copy(h, c.hash)
	return h
}

// AnonymousCredentials for anonymous (null session) authentication
type AnonymousCredentials struct{}

// NewAnonymousCredentials creates anonymous credentials
func NewAnonymousCredentials() *AnonymousCredentials {
	return &AnonymousCredentials{}
}

// Domain returns empty string
func (c *AnonymousCredentials) Domain() string {
	return ""
}

// Username returns empty string
func (c *AnonymousCredentials) Username() string {
	return ""
}

// IsAnonymous always returns true
func (c *AnonymousCredentials) IsAnonymous() bool {
	return true
}

// hashSource is implemented by credentials that can produce an NT hash.
type hashSource interface {
	ntHash() []byte
}
