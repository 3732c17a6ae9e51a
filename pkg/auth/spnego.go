package auth

import (
	"bytes"
	"encoding/asn1"
	"fmt"
)

// Mechanism OIDs
var (
	OIDSPNEGO  = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 2}
	OIDNTLMSSP = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 2, 10}
	OIDKRB5    = asn1.ObjectIdentifier{1, 2, 840, 113554, 1, 2, 2}
	OIDMSKRB5  = asn1.ObjectIdentifier{1, 2, 840, 48018, 1, 2, 2}
)

// NegTokenResp negState values
const (
	NegStateAcceptCompleted  = 0
	NegStateAcceptIncomplete = 1
	NegStateReject           = 2
)

type negTokenInit struct {
	MechTypes []asn1.ObjectIdentifier `asn1:"explicit,tag:0"`
	MechToken []byte                  `asn1:"explicit,tag:2"`
}

type negTokenResp struct {
	NegState      asn1.Enumerated       `asn1:"optional,explicit,tag:0"`
	SupportedMech asn1.ObjectIdentifier `asn1:"optional,explicit,tag:1"`
	ResponseToken []byte                `asn1:"optional,explicit,tag:2"`
	MechListMIC   []byte                `asn1:"optional,explicit,tag:3"`
}

// MechTypeList returns the DER encoding of a MechTypeList, the input to
// the mechListMIC.
func MechTypeList(mechs ...asn1.ObjectIdentifier) ([]byte, error) {
	return asn1.Marshal(mechs)
}

// WrapNegTokenInit builds the GSS-API InitialContextToken carrying a
// NegTokenInit that offers mechs with token as the optimistic mech token.
func WrapNegTokenInit(token []byte, mechs ...asn1.ObjectIdentifier) ([]byte, error) {
	inner, err := asn1.Marshal(negTokenInit{MechTypes: mechs, MechToken: token})
	if err != nil {
		return nil, fmt.Errorf("marshal NegTokenInit: %w", err)
	}
	choice, err := asn1.Marshal(asn1.RawValue{
		Class:      asn1.ClassContextSpecific,
		Tag:        0,
		IsCompound: true,
		Bytes:      inner,
	})
	if err != nil {
		return nil, err
	}
	oid, err := asn1.Marshal(OIDSPNEGO)
	if err != nil {
		return nil, err
	}
	return asn1.Marshal(asn1.RawValue{
		Class:      asn1.ClassApplication,
		Tag:        0,
		IsCompound: true,
		Bytes:      append(oid, choice...),
	})
}

// WrapNegTokenResp builds a NegTokenResp continuing the exchange.
func WrapNegTokenResp(token, mechListMIC []byte) ([]byte, error) {
	inner, err := asn1.Marshal(negTokenResp{
		NegState:      NegStateAcceptIncomplete,
		ResponseToken: token,
		MechListMIC:   mechListMIC,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal NegTokenResp: %w", err)
	}
	return asn1.Marshal(asn1.RawValue{
		Class:      asn1.ClassContextSpecific,
		Tag:        1,
		IsCompound: true,
		Bytes:      inner,
	})
}

// ParseNegTokenResp extracts negState and the response token from a server
// NegTokenResp. A missing negState is reported as -1.
func ParseNegTokenResp(buf []byte) (state int, token []byte, err error) {
	var outer asn1.RawValue
	if _, err := asn1.Unmarshal(buf, &outer); err != nil {
		return 0, nil, fmt.Errorf("parse SPNEGO: %w", err)
	}
	if outer.Class != asn1.ClassContextSpecific || outer.Tag != 1 {
		return 0, nil, fmt.Errorf("parse SPNEGO: unexpected tag %d", outer.Tag)
	}
	resp := negTokenResp{NegState: -1}
	if _, err := asn1.Unmarshal(outer.Bytes, &resp); err != nil {
		return 0, nil, fmt.Errorf("parse NegTokenResp: %w", err)
	}
	return int(resp.NegState), resp.ResponseToken, nil
}

// UnwrapNTLMSSP locates an NTLMSSP message inside a SPNEGO blob, or
// returns nil.
func UnwrapNTLMSSP(data []byte) []byte {
	if i := bytes.Index(data, ntlmSignature); i >= 0 {
		return data[i:]
	}
	return nil
}
