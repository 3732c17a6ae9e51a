package secdesc

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Errors returned by Apply.
var (
	ErrExists   = errors.New("entry already exists")
	ErrNotFound = errors.New("entry not found")
	ErrSyntax   = errors.New("malformed security descriptor text")
)

// Named access masks accepted in ACL entries.
var namedMasks = map[string]uint32{
	"READ":   0x001200a9,
	"CHANGE": 0x001301bf,
	"FULL":   0x001f01ff,
}

// NameFunc renders a SID for display. Returning "" keeps the numeric form.
type NameFunc func(SID) string

// LookupFunc resolves an account name to a SID.
type LookupFunc func(name string) (SID, error)

func render(s SID, names NameFunc) string {
	if names != nil {
		if n := names(s); n != "" {
			return n
		}
	}
	return s.String()
}

// FormatACE renders "<principal>:<type>/<flags>/0x<mask>".
func FormatACE(a ACE, names NameFunc) string {
	return render(a.SID, names) + ":" + FormatACEValue(a)
}

// FormatACEValue renders "<type>/<flags>/0x<mask>".
func FormatACEValue(a ACE) string {
	return fmt.Sprintf("%d/%d/0x%08x", a.Type, a.Flags, a.Mask)
}

// FormatOwner renders the owner, or "" when absent.
func (d *Descriptor) FormatOwner(names NameFunc) string {
	if d.Owner == nil {
		return ""
	}
	return render(*d.Owner, names)
}

// FormatGroup renders the group, or "" when absent.
func (d *Descriptor) FormatGroup(names NameFunc) string {
	if d.Group == nil {
		return ""
	}
	return render(*d.Group, names)
}

// Format renders the full text form:
//
//	REVISION:1,OWNER:<sid>,GROUP:<sid>,ACL:<sid>:<type>/<flags>/0x<mask>,...
func (d *Descriptor) Format(names NameFunc) string {
	rev := d.Revision
	if rev == 0 {
		rev = 1
	}
	parts := []string{"REVISION:" + strconv.Itoa(int(rev))}
	if d.Owner != nil {
		parts = append(parts, "OWNER:"+d.FormatOwner(names))
	}
	if d.Group != nil {
		parts = append(parts, "GROUP:"+d.FormatGroup(names))
	}
	if d.DACL != nil {
		for _, ace := range d.DACL.ACEs {
			parts = append(parts, "ACL:"+FormatACE(ace, names))
		}
	}
	return strings.Join(parts, ",")
}

// FindACE returns the first DACL entry for sid.
func (d *Descriptor) FindACE(sid SID) (ACE, bool) {
	if d.DACL == nil {
		return ACE{}, false
	}
	for _, a := range d.DACL.ACEs {
		if a.SID.Equal(sid) {
			return a, true
		}
	}
	return ACE{}, false
}

// ParseText parses a descriptor from entries separated by tab, comma or
// newline. Principals that are not SIDs are resolved with lookup; a nil
// lookup makes names an error. Parts not mentioned stay nil.
func ParseText(text string, lookup LookupFunc) (*Descriptor, error) {
	d := &Descriptor{}
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == '\t' || r == ',' || r == '\n' || r == '\r'
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrSyntax)
	}
	for _, f := range fields {
		key, val, ok := strings.Cut(f, ":")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrSyntax, f)
		}
		switch strings.ToUpper(key) {
		case "REVISION":
			n, err := strconv.ParseUint(val, 0, 8)
			if err != nil || n == 0 {
				return nil, fmt.Errorf("%w: revision %q", ErrSyntax, val)
			}
			d.Revision = uint8(n)
		case "OWNER":
			s, err := ResolvePrincipal(val, lookup)
			if err != nil {
				return nil, err
			}
			d.Owner = &s
		case "GROUP":
			s, err := ResolvePrincipal(val, lookup)
			if err != nil {
				return nil, err
			}
			d.Group = &s
		case "ACL":
			i := strings.LastIndex(val, ":")
			if i < 0 {
				return nil, fmt.Errorf("%w: acl %q", ErrSyntax, val)
			}
			ace, err := ParseACE(val[:i], val[i+1:], lookup)
			if err != nil {
				return nil, err
			}
			if d.DACL == nil {
				d.DACL = &ACL{}
			}
			d.DACL.ACEs = append(d.DACL.ACEs, ace)
		default:
			return nil, fmt.Errorf("%w: unknown key %q", ErrSyntax, key)
		}
	}
	return d, nil
}

// ResolvePrincipal returns the SID for a string SID or an account name.
func ResolvePrincipal(p string, lookup LookupFunc) (SID, error) {
	p = strings.TrimSpace(p)
	if s, err := ParseSID(p); err == nil {
		return s, nil
	}
	if lookup == nil {
		return SID{}, fmt.Errorf("%w: %q is not a SID", ErrSyntax, p)
	}
	s, err := lookup(p)
	if err != nil {
		return SID{}, fmt.Errorf("resolve %q: %w", p, err)
	}
	return s, nil
}

// ParseACE parses "<type>/<flags>/<mask>" for principal. Type accepts
// ALLOWED and DENIED; mask accepts READ, CHANGE, FULL or a number.
func ParseACE(principal, spec string, lookup LookupFunc) (ACE, error) {
	s, err := ResolvePrincipal(principal, lookup)
	if err != nil {
		return ACE{}, err
	}
	parts := strings.Split(spec, "/")
	if len(parts) != 3 {
		return ACE{}, fmt.Errorf("%w: ace %q", ErrSyntax, spec)
	}

	ace := ACE{SID: s}
	switch strings.ToUpper(parts[0]) {
	case "ALLOWED":
		ace.Type = AccessAllowed
	case "DENIED":
		ace.Type = AccessDenied
	default:
		n, err := strconv.ParseUint(parts[0], 0, 8)
		if err != nil {
			return ACE{}, fmt.Errorf("%w: ace type %q", ErrSyntax, parts[0])
		}
		ace.Type = uint8(n)
	}
	n, err := strconv.ParseUint(parts[1], 0, 8)
	if err != nil {
		return ACE{}, fmt.Errorf("%w: ace flags %q", ErrSyntax, parts[1])
	}
	ace.Flags = uint8(n)
	if m, ok := namedMasks[strings.ToUpper(parts[2])]; ok {
		ace.Mask = m
	} else {
		m, err := strconv.ParseUint(parts[2], 0, 32)
		if err != nil {
			return ACE{}, fmt.Errorf("%w: ace mask %q", ErrSyntax, parts[2])
		}
		ace.Mask = uint32(m)
	}
	return ace, nil
}

// MergeMode selects how Apply treats parts already present.
type MergeMode int

const (
	// MergeUpsert adds missing parts and overwrites present ones.
	MergeUpsert MergeMode = iota
	// MergeCreate fails with ErrExists when a part is already present.
	MergeCreate
	// MergeReplace fails with ErrNotFound when a part is absent.
	MergeReplace
)

func checkPresence(present bool, mode MergeMode, what string) error {
	switch {
	case present && mode == MergeCreate:
		return fmt.Errorf("%s: %w", what, ErrExists)
	case !present && mode == MergeReplace:
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

// Apply merges the parts set in in into d. DACL entries are matched by SID
// and type; the result is put back in canonical order.
func (d *Descriptor) Apply(in *Descriptor, mode MergeMode) error {
	if in.Revision != 0 {
		d.Revision = in.Revision
	}
	if in.Owner != nil {
		if err := checkPresence(d.Owner != nil, mode, "owner"); err != nil {
			return err
		}
		o := *in.Owner
		d.Owner = &o
	}
	if in.Group != nil {
		if err := checkPresence(d.Group != nil, mode, "group"); err != nil {
			return err
		}
		g := *in.Group
		d.Group = &g
	}
	if in.DACL == nil {
		return nil
	}
	if d.DACL == nil {
		d.DACL = &ACL{}
	}
	for _, ace := range in.DACL.ACEs {
		i := slices.IndexFunc(d.DACL.ACEs, func(a ACE) bool {
			return a.Type == ace.Type && a.SID.Equal(ace.SID)
		})
		if err := checkPresence(i >= 0, mode, "acl "+ace.SID.String()); err != nil {
			return err
		}
		if i >= 0 {
			d.DACL.ACEs[i] = ace
		} else {
			d.DACL.ACEs = append(d.DACL.ACEs, ace)
		}
	}
	d.DACL.Canonicalize()
	return nil
}

// RemovePrincipal deletes every DACL entry for sid, allow and deny alike.
// It fails with ErrNotFound when there is none.
func (d *Descriptor) RemovePrincipal(sid SID) error {
	if d.DACL == nil {
		return fmt.Errorf("acl %s: %w", sid, ErrNotFound)
	}
	before := len(d.DACL.ACEs)
	d.DACL.ACEs = slices.DeleteFunc(d.DACL.ACEs, func(a ACE) bool { return a.SID.Equal(sid) })
	if len(d.DACL.ACEs) == before {
		return fmt.Errorf("acl %s: %w", sid, ErrNotFound)
	}
	return nil
}

// Canonicalize orders entries explicit-deny, explicit-allow, then inherited
// entries, keeping the relative order within each group.
func (a *ACL) Canonicalize() {
	rank := func(e ACE) int {
		r := 0
		if e.Flags&Inherited != 0 {
			r += 2
		}
		if e.Type != AccessDenied {
			r++
		}
		return r
	}
	slices.SortStableFunc(a.ACEs, func(x, y ACE) int {
		return cmp.Compare(rank(x), rank(y))
	})
}
