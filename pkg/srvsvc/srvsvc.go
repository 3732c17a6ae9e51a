// Package srvsvc implements the share enumeration part of the Server
// Service Remote Protocol (MS-SRVS).
package srvsvc

import (
	"context"
	"fmt"

	"github.com/ineffectivecoder/smbclient/pkg/dcerpc"
	"github.com/ineffectivecoder/smbclient/pkg/pipe"
	"github.com/ineffectivecoder/smbclient/pkg/smb"
)

// SRVSVC_UUID is the MS-SRVS interface, version 3.0.
var SRVSVC_UUID = dcerpc.MustParseUUID("4b324fc8-1670-01d3-1278-5a47bf6ee188")

// Opnums
const (
	OpNetShareEnumAll = 15
)

// Share types (STYPE_*). The high bits mark special and temporary shares.
const (
	TypeDisk      uint32 = 0x00000000
	TypePrintQ    uint32 = 0x00000001
	TypeDevice    uint32 = 0x00000002
	TypeIPC       uint32 = 0x00000003
	TypeSpecial   uint32 = 0x80000000
	TypeTemporary uint32 = 0x40000000
)

// ShareInfo represents a network share
type ShareInfo struct {
	Name   string
	Type   uint32
	Remark string
}

// BaseType strips the special and temporary bits.
func (s ShareInfo) BaseType() uint32 {
	return s.Type &^ (TypeSpecial | TypeTemporary)
}

// Client is a SRVSVC RPC client
type Client struct {
	rpc  *dcerpc.Client
	pipe *pipe.Pipe
}

// NewClient opens \PIPE\srvsvc on an IPC$ tree and binds to MS-SRVS.
func NewClient(ctx context.Context, tree *smb.Tree) (*Client, error) {
	p, err := pipe.Open(ctx, tree, pipe.PipeSrvsvc)
	if err != nil {
		return nil, err
	}
	rpc := dcerpc.NewClient(p)
	if err := rpc.Bind(ctx, SRVSVC_UUID, 3); err != nil {
		p.Close(ctx)
		return nil, fmt.Errorf("failed to bind to SRVSVC: %w", err)
	}
	return &Client{rpc: rpc, pipe: p}, nil
}

// EnumShares calls NetShareEnumAll at level 1.
func (c *Client) EnumShares(ctx context.Context, serverName string) ([]ShareInfo, error) {
	resp, err := c.rpc.Call(ctx, OpNetShareEnumAll, encodeNetShareEnumAll(serverName))
	if err != nil {
		return nil, fmt.Errorf("NetShareEnumAll failed: %w", err)
	}
	return parseShareEnumResponse(resp)
}

// Close closes the pipe
func (c *Client) Close(ctx context.Context) error {
	return c.pipe.Close(ctx)
}

func encodeNetShareEnumAll(serverName string) []byte {
	w := dcerpc.NewNDRWriter()

	if serverName == "" {
		w.WriteNullPointer()
	} else {
		w.WritePointer()
		w.WriteUnicodeString(`\\` + serverName)
	}

	// SHARE_ENUM_STRUCT: level, union switch, container pointer
	w.WriteUint32(1)
	w.WriteUint32(1)
	w.WritePointer()
	w.WriteUint32(0) // EntriesRead
	w.WriteNullPointer()

	w.WriteUint32(0xFFFFFFFF) // PreferedMaximumLength
	w.WritePointer()          // ResumeHandle
	w.WriteUint32(0)
	return w.Bytes()
}

// ndrScanner wraps NDRReader with a sticky error.
type ndrScanner struct {
	r   *dcerpc.NDRReader
	err error
}

func (s *ndrScanner) u32() uint32 {
	if s.err != nil {
		return 0
	}
	v, err := s.r.ReadUint32()
	s.err = err
	return v
}

func (s *ndrScanner) str() string {
	if s.err != nil {
		return ""
	}
	v, err := s.r.ReadUnicodeString()
	s.err = err
	return v
}

func parseShareEnumResponse(resp []byte) ([]ShareInfo, error) {
	s := &ndrScanner{r: dcerpc.NewNDRReader(resp)}

	s.u32() // level
	s.u32() // union switch
	var shares []ShareInfo
	if s.u32() != 0 {
		count := s.u32()
		if s.u32() != 0 {
			if maxCount := s.u32(); maxCount < count || int(count)*12 > s.r.Remaining() {
				return nil, fmt.Errorf("malformed share array: count %d max %d", count, maxCount)
			}
			type refs struct{ name, remark uint32 }
			ptrs := make([]refs, count)
			shares = make([]ShareInfo, count)
			for i := range ptrs {
				ptrs[i].name = s.u32()
				shares[i].Type = s.u32()
				ptrs[i].remark = s.u32()
			}
			for i, p := range ptrs {
				if p.name != 0 {
					shares[i].Name = s.str()
				}
				if p.remark != 0 {
					shares[i].Remark = s.str()
				}
			}
		}
	}
	s.u32() // TotalEntries
	if s.u32() != 0 {
		s.u32() // resume handle
	}
	status := s.u32()
	if s.err != nil {
		return nil, fmt.Errorf("malformed NetShareEnumAll response: %w", s.err)
	}
	if status != 0 {
		return nil, fmt.Errorf("NetShareEnumAll returned WERROR 0x%08X", status)
	}
	return shares, nil
}
