package smbc

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// URI is a parsed smb:// location:
//
//	smb://[workgroup;][user[:password]@]host[:port]/share[/path]
//
// All fields are percent-decoded.
type URI struct {
	Workgroup   string
	User        string
	Password    string
	HasPassword bool
	Host        string
	Port        int // 0 means the default port
	Share       string
	Path        string // slash separated, no leading slash
}

// ParseURI parses s. "smb://" (workgroup browse) and "smb://host/" (share
// list) are accepted; a URI with a share but no host is not.
func ParseURI(s string) (*URI, error) {
	if !strings.HasPrefix(strings.ToLower(s), "smb://") {
		return nil, newErr("parse", s, InvalidArgument, fmt.Errorf("missing smb:// scheme"))
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, newErr("parse", s, InvalidArgument, err)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return nil, newErr("parse", s, InvalidArgument, fmt.Errorf("query and fragment are not allowed"))
	}

	out := &URI{Host: u.Hostname()}
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 || n > 65535 {
			return nil, newErr("parse", s, InvalidArgument, fmt.Errorf("invalid port %q", p))
		}
		out.Port = n
	}
	if u.User != nil {
		user := u.User.Username()
		if wg, rest, ok := strings.Cut(user, ";"); ok {
			out.Workgroup, user = wg, rest
		}
		out.User = user
		out.Password, out.HasPassword = u.User.Password()
	}

	rest := strings.TrimPrefix(u.Path, "/")
	out.Share, out.Path, _ = strings.Cut(rest, "/")
	out.Path = strings.Trim(out.Path, "/")
	if out.Host == "" && (out.Share != "" || u.User != nil || out.Port != 0) {
		return nil, newErr("parse", s, InvalidArgument, fmt.Errorf("missing server"))
	}
	return out, nil
}

// String re-encodes the URI.
func (u *URI) String() string {
	if u.Host == "" {
		return "smb://"
	}
	out := url.URL{Scheme: "smb", Host: u.Host}
	if u.Port != 0 {
		out.Host = net.JoinHostPort(u.Host, strconv.Itoa(u.Port))
	} else if strings.Contains(u.Host, ":") {
		out.Host = "[" + u.Host + "]"
	}
	if u.User != "" || u.Workgroup != "" || u.HasPassword {
		user := u.User
		if u.Workgroup != "" {
			user = u.Workgroup + ";" + user
		}
		if u.HasPassword {
			out.User = url.UserPassword(user, u.Password)
		} else {
			out.User = url.User(user)
		}
	}
	if u.Share != "" {
		out.Path = "/" + u.Share
		if u.Path != "" {
			out.Path += "/" + u.Path
		}
	} else if u.Host != "" {
		out.Path = "/"
	}
	return out.String()
}

// SMBPath returns the in-share path with backslash separators.
func (u *URI) SMBPath() string {
	return strings.ReplaceAll(u.Path, "/", `\`)
}

// IsBrowse reports a bare smb:// URI.
func (u *URI) IsBrowse() bool {
	return u.Host == ""
}

// IsServer reports smb://host/ with no share.
func (u *URI) IsServer() bool {
	return u.Host != "" && u.Share == ""
}

// Key returns the connection identity for the URI.
func (u *URI) Key() ConnectionKey {
	port := u.Port
	if port == 0 {
		port = defaultPort
	}
	return ConnectionKey{Host: strings.ToLower(u.Host), Port: port, Transport: "tcp"}
}

// withPath returns a copy pointing at p inside the same share.
func (u *URI) withPath(p string) *URI {
	c := *u
	c.Path = strings.Trim(p, "/")
	return &c
}
