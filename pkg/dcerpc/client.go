package dcerpc

import (
	"context"
	"fmt"
)

// Transport carries DCE/RPC fragments. *pipe.Pipe satisfies it.
type Transport interface {
	Transact(ctx context.Context, request []byte) ([]byte, error)
	Read(ctx context.Context, buf []byte) (int, error)
	Write(ctx context.Context, data []byte) (int, error)
}

// Client represents a DCE/RPC client over a named pipe
type Client struct {
	transport      Transport
	callID         uint32
	boundInterface UUID
	maxXmitFrag    uint16
	maxRecvFrag    uint16
	isBound        bool
}

// NewClient creates a new RPC client over t.
func NewClient(t Transport) *Client {
	return &Client{
		transport:   t,
		callID:      1,
		maxXmitFrag: defaultMaxFrag,
		maxRecvFrag: defaultMaxFrag,
	}
}

// Bind binds to an RPC interface
func (c *Client) Bind(ctx context.Context, interfaceUUID UUID, version uint32) error {
	bindReq := NewBindRequest(interfaceUUID, version, c.nextCallID())

	response, err := c.transport.Transact(ctx, bindReq.Marshal())
	if err != nil {
		return fmt.Errorf("bind transact failed: %w", err)
	}

	var header CommonHeader
	if err := header.Unmarshal(response); err != nil {
		return fmt.Errorf("failed to parse response header: %w", err)
	}
	switch header.PacketType {
	case PacketTypeBindAck:
	case PacketTypeBindNak:
		return ErrBindFailed
	default:
		return fmt.Errorf("unexpected packet type: %d", header.PacketType)
	}

	var bindAck BindAck
	if err := bindAck.Unmarshal(response); err != nil {
		return fmt.Errorf("failed to parse bind ack: %w", err)
	}
	if !bindAck.IsAccepted() {
		return ErrBindFailed
	}

	c.boundInterface = interfaceUUID
	c.maxXmitFrag = bindAck.MaxXmitFrag
	c.maxRecvFrag = bindAck.MaxRecvFrag
	c.isBound = true
	return nil
}

// Call invokes opnum with NDR-encoded stubData and returns the reassembled
// response stub. Requests larger than the negotiated transmit fragment are
// split; response fragments are read until LAST_FRAG.
func (c *Client) Call(ctx context.Context, opnum uint16, stubData []byte) ([]byte, error) {
	if !c.isBound {
		return nil, ErrNotBound
	}

	callID := c.nextCallID()
	frags := fragmentRequest(opnum, stubData, callID, int(c.maxXmitFrag))
	for _, frag := range frags[:len(frags)-1] {
		if _, err := c.transport.Write(ctx, frag); err != nil {
			return nil, fmt.Errorf("call write failed: %w", err)
		}
	}
	response, err := c.transport.Transact(ctx, frags[len(frags)-1])
	if err != nil {
		return nil, fmt.Errorf("call transact failed: %w", err)
	}

	var stub []byte
	for {
		resp, err := parseFragment(response)
		if err != nil {
			return nil, err
		}
		stub = append(stub, resp.StubData...)
		if resp.Header.PacketFlags&PacketFlagLastFrag != 0 {
			return stub, nil
		}

		buf := make([]byte, max(int(c.maxRecvFrag), defaultMaxFrag))
		n, err := c.transport.Read(ctx, buf)
		if err != nil {
			return nil, fmt.Errorf("failed to read response fragment: %w", err)
		}
		response = buf[:n]
	}
}

// parseFragment decodes one RESPONSE fragment, turning FAULT into an error.
func parseFragment(buf []byte) (*Response, error) {
	var header CommonHeader
	if err := header.Unmarshal(buf); err != nil {
		return nil, fmt.Errorf("failed to parse response header: %w", err)
	}
	switch header.PacketType {
	case PacketTypeResponse:
	case PacketTypeFault:
		var fault Fault
		if err := fault.Unmarshal(buf); err != nil {
			return nil, fmt.Errorf("RPC fault (parse error: %w)", err)
		}
		return nil, &FaultError{Status: fault.Status}
	default:
		return nil, fmt.Errorf("unexpected packet type: %d", header.PacketType)
	}

	var resp Response
	if err := resp.Unmarshal(buf); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &resp, nil
}

// nextCallID returns the next call ID
func (c *Client) nextCallID() uint32 {
	id := c.callID
	c.callID++
	return id
}

// IsBound returns true if bound to an interface
func (c *Client) IsBound() bool {
	return c.isBound
}

// BoundInterface returns the bound interface UUID
func (c *Client) BoundInterface() UUID {
	return c.boundInterface
}
