package wid

import "strconv"

var names = map[ID]string{
	BSSType:              "BSSType",
	CurrentTxRate:        "CurrentTxRate",
	Preamble:             "Preamble",
	OperatingMode11G:     "11GOperatingMode",
	Status:               "Status",
	ScanType:             "ScanType",
	PowerManagement:      "PowerManagement",
	Mode11I:              "11IMode",
	AuthType:             "AuthType",
	SiteSurvey:           "SiteSurvey",
	ListenInterval:       "ListenInterval",
	DTIMPeriod:           "DTIMPeriod",
	AckPolicy:            "AckPolicy",
	BcastSSID:            "BcastSSID",
	RekeyPolicy:          "RekeyPolicy",
	ShortSlotAllowed:     "ShortSlotAllowed",
	UserControlTxPower:   "UserControlTxPower",
	TxPowerLevel11A:      "TxPowerLevel11A",
	TxPowerLevel11B:      "TxPowerLevel11B",
	QoSEnable:            "QoSEnable",
	SetOperationMode:     "SetOperationMode",
	Enable11N:            "11NEnable",
	OperatingMode11N:     "11NOperatingMode",
	OBSSNonHTDetection:   "11NOBSSNonHTDetection",
	HTProtType11N:        "11NHTProtType",
	RIFSProtEnable11N:    "11NRIFSProtEnable",
	CurrentTxMCS11N:      "11NCurrentTxMCS",
	ProtMech11N:          "11NProtMech",
	ERPProtType11N:       "11NERPProtType",
	ImmediateBAEnabled:   "11NImmediateBAEnabled",
	TXOPProtDisable11N:   "11NTXOPProtDisable",
	RTSThreshold:         "RTSThreshold",
	FragThreshold:        "FragThreshold",
	BeaconInterval:       "BeaconInterval",
	RekeyPeriod:          "RekeyPeriod",
	RekeyPacketCount:     "RekeyPacketCount",
	FirmwareVersion:      "FirmwareVersion",
	MACAddr:              "MACAddr",
	SetupMulticastFilter: "SetupMulticastFilter",
}

func (id ID) String() string {
	if s, ok := names[id]; ok {
		return s
	}
	return "WID(0x" + strconv.FormatUint(uint64(id), 16) + ")"
}
