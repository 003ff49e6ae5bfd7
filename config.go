package wilc

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/soypat/wilc/wid"
)

// defaultAttrs is written to the firmware in order after it starts.
var defaultAttrs = [...]wid.Attr{
	{ID: wid.BSSType, Value: wid.BSSTypeInfra},
	{ID: wid.CurrentTxRate, Value: wid.TxRateAuto},
	{ID: wid.OperatingMode11G, Value: wid.OperMode11GMixed11B2},
	{ID: wid.Preamble, Value: wid.PreambleAuto},
	{ID: wid.ProtMech11N, Value: wid.ProtMechAuto},
	{ID: wid.ScanType, Value: wid.ScanActive},
	{ID: wid.SiteSurvey, Value: wid.SiteSurveyOff},
	{ID: wid.RTSThreshold, Value: 0xffff},
	{ID: wid.FragThreshold, Value: 2346},
	{ID: wid.BcastSSID, Value: 0},
	{ID: wid.QoSEnable, Value: 1},
	{ID: wid.PowerManagement, Value: wid.NoPowerSave},
	{ID: wid.Mode11I, Value: wid.SecurityNone},
	{ID: wid.AuthType, Value: wid.AuthOpenSystem},
	{ID: wid.ListenInterval, Value: 3},
	{ID: wid.DTIMPeriod, Value: 3},
	{ID: wid.AckPolicy, Value: wid.AckPolicyNormal},
	{ID: wid.UserControlTxPower, Value: 0},
	{ID: wid.TxPowerLevel11A, Value: 48},
	{ID: wid.TxPowerLevel11B, Value: 28},
	{ID: wid.BeaconInterval, Value: 100},
	{ID: wid.RekeyPolicy, Value: wid.RekeyDisable},
	{ID: wid.RekeyPeriod, Value: 84600},
	{ID: wid.RekeyPacketCount, Value: 500},
	{ID: wid.ShortSlotAllowed, Value: 1},
	{ID: wid.ERPProtType11N, Value: wid.ERPProtSelfCTS},
	{ID: wid.Enable11N, Value: 1},
	{ID: wid.OperatingMode11N, Value: wid.OpMode11NHTMixed},
	{ID: wid.TXOPProtDisable11N, Value: 1},
	{ID: wid.OBSSNonHTDetection, Value: wid.OBSSDetectProtectReport},
	{ID: wid.HTProtType11N, Value: wid.HTProtRTSCTSNonHT},
	{ID: wid.RIFSProtEnable11N, Value: 0},
	{ID: wid.CurrentTxMCS11N, Value: 7},
	{ID: wid.ImmediateBAEnabled, Value: 1},
}

// initFirmwareConfig sets the interface operation mode and writes the
// default attribute set. Any rejected attribute fails the whole configuration.
func (d *Device) initFirmwareConfig(v *Interface) error {
	mode := wid.Attr{ID: wid.SetOperationMode, Value: uint32(v.Mode())}
	// Operation mode is a 4 byte value despite its character class id.
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], mode.Value)
	if err := d.setAttrBytes(v.idx, mode.ID, buf[:]); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrConfigRejected, mode.ID, err)
	}
	for _, a := range defaultAttrs {
		if err := d.setAttr(v.idx, a); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrConfigRejected, a.ID, err)
		}
	}
	d.debug("config:done", slog.Int("attrs", len(defaultAttrs)+1))
	return nil
}

func (d *Device) setAttr(vif int, a wid.Attr) error {
	var buf [4]byte
	n, err := a.Put(buf[:])
	if err != nil {
		return err
	}
	return d.setAttrBytes(vif, a.ID, buf[:n])
}

func (d *Device) setAttrBytes(vif int, id wid.ID, val []byte) error {
	d.cfgMu.Lock()
	defer d.cfgMu.Unlock()
	d.trace("attr:set", slog.Int("vif", vif), slog.String("wid", id.String()), slog.Int("len", len(val)))
	return d.attrs.SetAttr(vif, id, val)
}

func (d *Device) getAttr(vif int, id wid.ID, dst []byte) (int, error) {
	d.cfgMu.Lock()
	defer d.cfgMu.Unlock()
	return d.attrs.GetAttr(vif, id, dst)
}
