package smbc

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/ineffectivecoder/smbclient/pkg/lsarpc"
	"github.com/ineffectivecoder/smbclient/pkg/secdesc"
	"github.com/ineffectivecoder/smbclient/pkg/smb"
	"github.com/ineffectivecoder/smbclient/pkg/smb/types"
)

// XattrFlag controls SetXattr when the target already exists.
type XattrFlag int

const (
	// XattrCreate fails with Exists when the owner, group or ACE is present.
	XattrCreate XattrFlag = 1
	// XattrReplace fails with NoEntry when it is absent.
	XattrReplace XattrFlag = 2
)

const xattrPrefix = "system.nt_sec_desc."

// xattrNames is what ListXattr reports.
var xattrNames = []string{
	xattrPrefix + "revision",
	xattrPrefix + "owner",
	xattrPrefix + "owner+",
	xattrPrefix + "group",
	xattrPrefix + "group+",
	xattrPrefix + "acl:",
	xattrPrefix + "acl+:",
	xattrPrefix + "*",
	xattrPrefix + "*+",
}

const allSecurityInformation = secdesc.OwnerSecurityInformation |
	secdesc.GroupSecurityInformation | secdesc.DACLSecurityInformation

type xattrField int

const (
	fieldAll xattrField = iota
	fieldRevision
	fieldOwner
	fieldGroup
	fieldACL
)

// xattrName is a parsed attribute name. names selects account names over
// numeric SIDs in the rendered value.
type xattrName struct {
	field     xattrField
	names     bool
	principal string
}

func parseXattrName(name string) (xattrName, error) {
	switch name {
	case "system.*":
		return xattrName{field: fieldAll}, nil
	case "system.*+":
		return xattrName{field: fieldAll, names: true}, nil
	}
	attr, ok := strings.CutPrefix(name, xattrPrefix)
	if !ok {
		return xattrName{}, fmt.Errorf("unknown attribute %q", name)
	}
	attr = strings.ToLower(attr)

	if head, principal, ok := strings.Cut(attr, ":"); ok {
		principal = strings.TrimSpace(name[len(xattrPrefix)+len(head)+1:])
		if principal == "" {
			return xattrName{}, fmt.Errorf("attribute %q names no principal", name)
		}
		switch head {
		case "acl":
			return xattrName{field: fieldACL, principal: principal}, nil
		case "acl+":
			return xattrName{field: fieldACL, names: true, principal: principal}, nil
		}
		return xattrName{}, fmt.Errorf("unknown attribute %q", name)
	}

	names := strings.HasSuffix(attr, "+")
	switch strings.TrimSuffix(attr, "+") {
	case "*":
		return xattrName{field: fieldAll, names: names}, nil
	case "revision":
		if names {
			break
		}
		return xattrName{field: fieldRevision}, nil
	case "owner":
		return xattrName{field: fieldOwner, names: names}, nil
	case "group":
		return xattrName{field: fieldGroup, names: names}, nil
	}
	return xattrName{}, fmt.Errorf("unknown attribute %q", name)
}

// withDescriptor opens uri with access and hands fn the parsed descriptor
// along with the session's connection for SID lookups.
func (c *Context) withDescriptor(ctx context.Context, op, uri string, access types.AccessMask,
	fn func(ctx context.Context, cn conn, h handle, sd *secdesc.Descriptor) error) error {
	return c.withHandle(ctx, op, uri, smb.OpenSpec{
		Access:      access | types.ReadControl | types.FileReadAttributes | types.Synchronize,
		Disposition: types.FileOpen,
	}, func(ctx context.Context, t *target, h handle) error {
		raw, err := h.SecurityDescriptor(ctx, allSecurityInformation)
		if err != nil {
			return err
		}
		sd, err := secdesc.Parse(raw)
		if err != nil {
			return err
		}
		return fn(ctx, t.sess.conn, h, sd)
	})
}

// sidNames resolves every SID in sd in one lookup. Failures leave the
// SIDs numeric.
func sidNames(ctx context.Context, cn conn, sd *secdesc.Descriptor) secdesc.NameFunc {
	var sids []secdesc.SID
	add := func(s secdesc.SID) {
		if !slices.ContainsFunc(sids, s.Equal) {
			sids = append(sids, s)
		}
	}
	if sd.Owner != nil {
		add(*sd.Owner)
	}
	if sd.Group != nil {
		add(*sd.Group)
	}
	if sd.DACL != nil {
		for _, a := range sd.DACL.ACEs {
			add(a.SID)
		}
	}
	if len(sids) == 0 {
		return nil
	}
	names, err := cn.lookupSids(ctx, sids)
	if err != nil || len(names) != len(sids) {
		return nil
	}
	byKey := make(map[string]string, len(sids))
	for i, n := range names {
		if n.Mapped() {
			byKey[sids[i].String()] = n.String()
		}
	}
	return func(s secdesc.SID) string { return byKey[s.String()] }
}

// nameLookup resolves account names through LSA.
func nameLookup(ctx context.Context, cn conn) secdesc.LookupFunc {
	return func(name string) (secdesc.SID, error) {
		res, err := cn.lookupNames(ctx, []string{name})
		if err != nil {
			return secdesc.SID{}, err
		}
		if len(res) != 1 || !res[0].Mapped() {
			return secdesc.SID{}, lsarpc.ErrNoneMapped
		}
		return res[0].SID, nil
	}
}

// GetXattr returns a security descriptor attribute of uri.
func (c *Context) GetXattr(ctx context.Context, uri, name string) (string, error) {
	if _, err := c.parse("getxattr", uri); err != nil {
		return "", err
	}
	xn, err := parseXattrName(name)
	if err != nil {
		return "", newErr("getxattr", uri, InvalidArgument, err)
	}

	var out string
	err = c.withDescriptor(ctx, "getxattr", uri, 0, func(ctx context.Context, cn conn, _ handle, sd *secdesc.Descriptor) error {
		var names secdesc.NameFunc
		if xn.names {
			names = sidNames(ctx, cn, sd)
		}
		switch xn.field {
		case fieldAll:
			out = sd.Format(names)
		case fieldRevision:
			rev := sd.Revision
			if rev == 0 {
				rev = 1
			}
			out = fmt.Sprint(rev)
		case fieldOwner:
			out = sd.FormatOwner(names)
		case fieldGroup:
			out = sd.FormatGroup(names)
		case fieldACL:
			sid, err := secdesc.ResolvePrincipal(xn.principal, nameLookup(ctx, cn))
			if err != nil {
				return err
			}
			ace, ok := sd.FindACE(sid)
			if !ok {
				return fmt.Errorf("acl %s: %w", xn.principal, secdesc.ErrNotFound)
			}
			out = secdesc.FormatACEValue(ace)
		}
		return nil
	})
	return out, err
}

func aclRevision(sd *secdesc.Descriptor) uint8 {
	if sd.DACL == nil {
		return 0
	}
	return sd.DACL.Revision
}

func mergeMode(flags XattrFlag) (secdesc.MergeMode, error) {
	switch flags {
	case 0:
		return secdesc.MergeUpsert, nil
	case XattrCreate:
		return secdesc.MergeCreate, nil
	case XattrReplace:
		return secdesc.MergeReplace, nil
	}
	return 0, fmt.Errorf("bad xattr flags %d", flags)
}

// SetXattr changes part of the security descriptor of uri. Account names
// in value are resolved through LSA. Setting the full descriptor without
// flags replaces the owner, group and DACL that value mentions.
func (c *Context) SetXattr(ctx context.Context, uri, name, value string, flags XattrFlag) error {
	if _, err := c.parse("setxattr", uri); err != nil {
		return err
	}
	xn, err := parseXattrName(name)
	if err != nil {
		return newErr("setxattr", uri, InvalidArgument, err)
	}
	mode, err := mergeMode(flags)
	if err != nil {
		return newErr("setxattr", uri, InvalidArgument, err)
	}
	if xn.field == fieldRevision {
		return newErr("setxattr", uri, NotSupported, fmt.Errorf("revision is read-only"))
	}

	access := types.WriteDAC
	if xn.field == fieldAll || xn.field == fieldOwner || xn.field == fieldGroup {
		access |= types.WriteOwner
	}
	return c.withDescriptor(ctx, "setxattr", uri, access, func(ctx context.Context, cn conn, h handle, sd *secdesc.Descriptor) error {
		lookup := nameLookup(ctx, cn)
		in := &secdesc.Descriptor{}
		switch xn.field {
		case fieldAll:
			in, err = secdesc.ParseText(value, lookup)
			if err != nil {
				return err
			}
			if mode == secdesc.MergeUpsert {
				if in.Owner != nil {
					sd.Owner = nil
				}
				if in.Group != nil {
					sd.Group = nil
				}
				if in.DACL != nil {
					sd.DACL = &secdesc.ACL{Revision: aclRevision(sd)}
				}
			}
		case fieldOwner, fieldGroup:
			sid, err := secdesc.ResolvePrincipal(value, lookup)
			if err != nil {
				return err
			}
			if xn.field == fieldOwner {
				in.Owner = &sid
			} else {
				in.Group = &sid
			}
		case fieldACL:
			ace, err := secdesc.ParseACE(xn.principal, strings.TrimSpace(value), lookup)
			if err != nil {
				return err
			}
			in.DACL = &secdesc.ACL{ACEs: []secdesc.ACE{ace}}
		}
		if err := sd.Apply(in, mode); err != nil {
			return err
		}
		return h.SetSecurityDescriptor(ctx, in.SecurityInformation(), sd.Marshal())
	})
}

// RemoveXattr deletes DACL entries: every entry for the principal of an
// acl: name, or the whole DACL for the descriptor names. Owner and group
// cannot be removed.
func (c *Context) RemoveXattr(ctx context.Context, uri, name string) error {
	if _, err := c.parse("removexattr", uri); err != nil {
		return err
	}
	xn, err := parseXattrName(name)
	if err != nil {
		return newErr("removexattr", uri, InvalidArgument, err)
	}
	if xn.field != fieldACL && xn.field != fieldAll {
		return newErr("removexattr", uri, InvalidArgument, fmt.Errorf("%s cannot be removed", name))
	}

	return c.withDescriptor(ctx, "removexattr", uri, types.WriteDAC, func(ctx context.Context, cn conn, h handle, sd *secdesc.Descriptor) error {
		if xn.field == fieldAll {
			sd.DACL = &secdesc.ACL{Revision: aclRevision(sd)}
		} else {
			sid, err := secdesc.ResolvePrincipal(xn.principal, nameLookup(ctx, cn))
			if err != nil {
				return err
			}
			if err := sd.RemovePrincipal(sid); err != nil {
				return err
			}
		}
		return h.SetSecurityDescriptor(ctx, secdesc.DACLSecurityInformation, sd.Marshal())
	})
}

// ListXattr returns the attribute names GetXattr understands. acl names
// take a principal after the colon.
func (c *Context) ListXattr(ctx context.Context, uri string) ([]string, error) {
	if _, err := c.parse("listxattr", uri); err != nil {
		return nil, err
	}
	return slices.Clone(xattrNames), nil
}
