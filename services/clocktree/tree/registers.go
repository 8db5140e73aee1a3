// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tree

import "github.com/AleutianAI/clocktree/services/clocktree/regs"

// Clock and reset controller registers.
const (
	RegRstDevices    uint32 = 0x004
	RegRstDevicesSet uint32 = 0x300
	RegRstDevicesClr uint32 = 0x304
	RegRstDevicesNum        = 3

	RegClkOutEnb    uint32 = 0x010
	RegClkOutEnbSet uint32 = 0x320
	RegClkOutEnbClr uint32 = 0x324
	RegClkOutEnbNum        = 3

	RegClkMaskARM  uint32 = 0x044
	RegMiscClkEnb  uint32 = 0x048
	RegOscCtrl     uint32 = 0x050
	RegSuperDiv    uint32 = 0x004 // offset from a super mux register
	RegPeriphFirst uint32 = 0x100
	RegPeriphLast  uint32 = 0x1fc
	RegPeriphEMC   uint32 = 0x19c
)

// Oscillator control fields.
const (
	OscCtrlFreqMask uint32 = 3 << 30
	OscCtrlMask     uint32 = 0x3f2 | OscCtrlFreqMask

	oscFreq13MHz   uint32 = 0 << 30
	oscFreq19_2MHz uint32 = 1 << 30
	oscFreq12MHz   uint32 = 2 << 30
	oscFreq26MHz   uint32 = 3 << 30
)

// Peripheral source register fields.
const (
	periphMuxShift     = 30
	periphMuxMask      = 3
	periphDivU71Mask   = 0xff
	periphDivU16Mask   = 0xffff
	periphEMCExtraBits = 3 << 24

	sdmmcFeedbackSel uint32 = 1 << 23
	sdmmcDelayShift         = 16
	sdmmcDelayMask   uint32 = 0xf << sdmmcDelayShift
	sdmmcDelayMax           = 15
)

// PLL base and misc fields.
const (
	pllBaseBypass   uint32 = 1 << 31
	pllBaseEnable   uint32 = 1 << 30
	pllBaseRef      uint32 = 1 << 29
	pllBaseOverride uint32 = 1 << 28

	pllBaseDivPShift        = 20
	pllBaseDivPMask  uint32 = 0x7 << pllBaseDivPShift
	pllBaseDivNShift        = 8
	pllBaseDivNMask  uint32 = 0x3ff << pllBaseDivNShift
	pllBaseDivMShift        = 0
	pllBaseDivMMask  uint32 = 0x1f

	pllMiscDCCONShift        = 20
	pllMiscCPCONShift        = 8
	pllMiscCPCONMask  uint32 = 0xf << pllMiscCPCONShift
	pllMiscLFCONShift        = 4
	pllMiscLFCONMask  uint32 = 0xf << pllMiscLFCONShift

	plluBasePostDiv    uint32 = 1 << 20
	plldMiscClkEnable  uint32 = 1 << 30
	plldMiscDivReset   uint32 = 1 << 23
	plleMiscReady      uint32 = 1 << 15
	plldLFCONSetDivN          = 600
	pllOutOfTableCPCON uint32 = 8

	// PLLOutEnableBits are the clock-enable and reset-disable bits of one
	// 16-bit PLL output divider field.
	PLLOutEnableBits uint32 = pllOutClkEn | pllOutResetDisable

	pllOutRatioShift          = 8
	pllOutRatioMask    uint32 = 0xff << pllOutRatioShift
	pllOutOverride     uint32 = 1 << 2
	pllOutClkEn        uint32 = 1 << 1
	pllOutResetDisable uint32 = 1 << 0
)

// Super mux fields.
const (
	superStateShift        = 28
	superStateMask  uint32 = 0xf << superStateShift
	superStateIdle  uint32 = 1 << superStateShift
	superStateRun   uint32 = 2 << superStateShift

	superSourceMask uint32 = 0xf
	superIdleShift         = 0
	superRunShift          = 4
)

// Bus divider fields.
const (
	busDisable uint32 = 1 << 3
	busDivMask uint32 = 3
)

// Power-management controller registers and fields.
const (
	pmcCtrl              uint32 = 0x0
	pmcCtrlBlinkEnable   uint32 = 1 << 7
	pmcDPDPadsOride      uint32 = 0x1c
	pmcDPDPadsOrideBlink uint32 = 1 << 20

	blinkOnShift         = 0
	blinkOnMask   uint32 = 0x7fff
	blinkEnable   uint32 = 1 << 15
	blinkOffShift        = 16
	blinkOffMask  uint32 = 0xffff
)

// RegMiscHidrev is the chip-id register read to flush posted APB writes.
const RegMiscHidrev uint32 = 0x804

// Audio sync fields.
const (
	audioSyncMute       uint32 = 1 << 4
	audioSyncSourceMask uint32 = 0xf
)

// copResetBit is the coprocessor bit in the first reset word.
const copResetBit uint32 = 1 << 1

// Staged memory bus transition on the AP25 SKU.
const (
	ap25SKU                    = 0x17
	ap25EMCBridgeRate   uint64 = 380_000_000
	ap25EMCIntermediate uint64 = 760_000_000
	ap25EMCScalingStep  uint64 = 600_000_000
)

// enableRegIndex is the byte offset of a clock's word in the 3x32-bit
// enable and reset banks.
func enableRegIndex(num uint32) uint32 {
	return (num / 32) * 4
}

// enableSetRegIndex is the byte offset of a clock's word in the set/clear
// alias banks.
func enableSetRegIndex(num uint32) uint32 {
	return (num / 32) * 8
}

func enableBitMask(num uint32) uint32 {
	return 1 << (num % 32)
}

// EnableBit keys the shared peripheral enable refcount table.
type EnableBit struct {
	Block regs.Block
	Index uint32
}
