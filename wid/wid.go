// Package wid defines the WILC firmware configuration attribute identifiers
// (WIDs) and the values the host writes to them.
//
// The top nibble of an ID encodes the width class of its value. Integer
// attributes are written little endian.
package wid

import (
	"encoding/binary"
	"errors"
)

// ID is a firmware configuration attribute identifier.
type ID uint16

// Type is the value width class of an attribute.
type Type uint8

const (
	TypeChar  Type = 0
	TypeShort Type = 1
	TypeInt   Type = 2
	TypeStr   Type = 3
	TypeBin   Type = 4
)

// Type returns the width class encoded in the identifier.
func (id ID) Type() Type { return Type(id >> 12) }

// Size returns the encoded size of an integer attribute value in bytes,
// or 0 for string and binary attributes whose size is variable.
func (id ID) Size() int {
	switch id.Type() {
	case TypeChar:
		return 1
	case TypeShort:
		return 2
	case TypeInt:
		return 4
	}
	return 0
}

// Character sized attributes.
const (
	BSSType            ID = 0x0000
	CurrentTxRate      ID = 0x0001
	Preamble           ID = 0x0003
	OperatingMode11G   ID = 0x0004
	Status             ID = 0x0005
	ScanType           ID = 0x0007
	PowerManagement    ID = 0x000B
	Mode11I            ID = 0x000C
	AuthType           ID = 0x000D
	SiteSurvey         ID = 0x000E
	ListenInterval     ID = 0x000F
	DTIMPeriod         ID = 0x0010
	AckPolicy          ID = 0x0011
	BcastSSID          ID = 0x0015
	RekeyPolicy        ID = 0x0019
	ShortSlotAllowed   ID = 0x001A
	UserControlTxPower ID = 0x0027
	TxPowerLevel11A    ID = 0x0028
	TxPowerLevel11B    ID = 0x0029
	QoSEnable          ID = 0x0041
	SetOperationMode   ID = 0x0079
	Enable11N          ID = 0x0081
	OperatingMode11N   ID = 0x0082
	OBSSNonHTDetection ID = 0x0083
	HTProtType11N      ID = 0x0084
	RIFSProtEnable11N  ID = 0x0085
	CurrentTxMCS11N    ID = 0x0087
	ProtMech11N        ID = 0x0088
	ERPProtType11N     ID = 0x0089
	ImmediateBAEnabled ID = 0x00AF
	TXOPProtDisable11N ID = 0x00B0
)

// Short sized attributes.
const (
	RTSThreshold   ID = 0x1000
	FragThreshold  ID = 0x1001
	BeaconInterval ID = 0x1006
)

// Integer sized attributes.
const (
	RekeyPeriod      ID = 0x2010
	RekeyPacketCount ID = 0x2011
)

// String and binary attributes.
const (
	FirmwareVersion      ID = 0x3001
	MACAddr              ID = 0x300C
	SetupMulticastFilter ID = 0x4087
)

// BSS types.
const (
	BSSTypeInfra uint32 = 0
	BSSTypeAdhoc uint32 = 1
	BSSTypeAP    uint32 = 2
)

// Operation modes written to SetOperationMode.
const (
	OpModeStation uint32 = 1
	OpModeAP      uint32 = 2
	OpModeGO      uint32 = 3
	OpModeClient  uint32 = 4
	OpModeMonitor uint32 = 5
)

const TxRateAuto uint32 = 0

// 802.11g operating modes.
const (
	OperMode11BOnly      uint32 = 0
	OperMode11GOnly      uint32 = 1
	OperMode11GMixed11B1 uint32 = 2
	OperMode11GMixed11B2 uint32 = 3
)

// Preamble types.
const (
	PreambleShort uint32 = 0
	PreambleLong  uint32 = 1
	PreambleAuto  uint32 = 2
)

const ProtMechAuto uint32 = 0

// Scan and site survey modes.
const (
	ScanPassive     uint32 = 0
	ScanActive      uint32 = 1
	SiteSurvey1Chan uint32 = 0
	SiteSurveyAll   uint32 = 1
	SiteSurveyOff   uint32 = 2
)

// Power management modes.
const (
	NoPowerSave uint32 = 0
	MinFastPS   uint32 = 1
	MaxFastPS   uint32 = 2
	MinPSPoll   uint32 = 3
	MaxPSPoll   uint32 = 4
)

const (
	SecurityNone     uint32 = 0
	AuthOpenSystem   uint32 = 1
	AckPolicyNormal  uint32 = 0
	RekeyDisable     uint32 = 1
	ERPProtSelfCTS   uint32 = 0
	OpMode11NHTMixed uint32 = 1
	// OBSSDetectProtectReport enables protection and reports non-HT
	// overlapping BSS detection.
	OBSSDetectProtectReport uint32 = 3
	HTProtRTSCTSNonHT       uint32 = 0
)

// MaxMulticastFilter is the number of group addresses the firmware filter
// holds. Longer lists disable filtering.
const MaxMulticastFilter = 8

var (
	errShortBuffer = errors.New("wid: buffer too short")
	errNotIntegral = errors.New("wid: attribute not integral")
)

// Attr is an integral attribute assignment.
type Attr struct {
	ID    ID
	Value uint32
}

// Put encodes the attribute value into b and returns the number of bytes written.
func (a Attr) Put(b []byte) (int, error) {
	n := a.ID.Size()
	switch {
	case n == 0:
		return 0, errNotIntegral
	case len(b) < n:
		return 0, errShortBuffer
	}
	switch n {
	case 1:
		b[0] = byte(a.Value)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(a.Value))
	case 4:
		binary.LittleEndian.PutUint32(b, a.Value)
	}
	return n, nil
}

// Decode reads an integral value of the attribute's width from b.
func Decode(id ID, b []byte) (uint32, error) {
	n := id.Size()
	switch {
	case n == 0:
		return 0, errNotIntegral
	case len(b) < n:
		return 0, errShortBuffer
	}
	switch n {
	case 1:
		return uint32(b[0]), nil
	case 2:
		return uint32(binary.LittleEndian.Uint16(b)), nil
	}
	return binary.LittleEndian.Uint32(b), nil
}

// AppendMulticastFilter appends the SetupMulticastFilter payload: an enable
// word, an address count and the packed addresses.
func AppendMulticastFilter(dst []byte, enable bool, addrs [][6]byte) []byte {
	var en uint32
	if enable {
		en = 1
	}
	dst = binary.LittleEndian.AppendUint32(dst, en)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(addrs)))
	for i := range addrs {
		dst = append(dst, addrs[i][:]...)
	}
	return dst
}
