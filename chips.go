// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see

// https://sourceforge.net/p/openocd/code

package wlink

import "fmt"

// FamilyTag is the wire byte identifying a RiscvChip family on attach.
type FamilyTag byte

const (
	FamilyCH32V103 FamilyTag = 0x01
	FamilyCH57x    FamilyTag = 0x02
	FamilyCH56x    FamilyTag = 0x03
	FamilyCH32V20x FamilyTag = 0x05
	FamilyCH32V30x FamilyTag = 0x06
	FamilyCH58x    FamilyTag = 0x07
	FamilyCH32V003 FamilyTag = 0x09
	FamilyCH32X035 FamilyTag = 0x0a
	FamilyCH32L103 FamilyTag = 0x0b
	FamilyCH641    FamilyTag = 0x0c
	FamilyCH643    FamilyTag = 0x0d
	FamilyCH585    FamilyTag = 0x0e
	FamilyCH8571   FamilyTag = 0x44
	FamilyCH59x    FamilyTag = 0x45
)

func (t FamilyTag) String() string {
	if row, ok := chipFamilyRegistry[t]; ok {
		return row.Name
	}

	return fmt.Sprintf("Unknown(0x%02x)", byte(t))
}

// ChipFamilyInfo is one static registry row: everything the flash
// orchestrator and debug-module core need to know about a family that
// does not come off the wire at attach time.
type ChipFamilyInfo struct {
	Name               string
	FlashBase          uint32
	SramBase           uint32
	PageSize           uint32
	SectorSize         uint32
	SupportsSpecialErase bool
	AttachSubStage     byte // 0 means none
	VerifyOpcode       byte
	DisableDebug       bool
	RomRamSplitQuery   bool
	BootRomBase        uint32
	BootRomSize        uint32
}

// wchBootRomBase/wchBootRomSize are the "system flash" bootloader ROM
// range WCH documents for its Cortex-M-style-mapped (FlashBase
// 0x08000000) RISC-V parts, surfaced by the probe's own tooling as
// "Dump System FLASH". BLE SoC families (FlashBase 0x00000000) have no
// equivalent region in the registry below.
const (
	wchBootRomBase = 0x1fffec00
	wchBootRomSize = 0x400
)

var chipFamilyRegistry = map[FamilyTag]ChipFamilyInfo{
	FamilyCH32V103: {
		Name: "CH32V103", FlashBase: 0x08000000, PageSize: 64, SectorSize: 4096,
		AttachSubStage: ctrlSubV103, VerifyOpcode: progVerifyV103,
		BootRomBase: wchBootRomBase, BootRomSize: wchBootRomSize,
	},
	FamilyCH57x: {
		Name: "CH57x", FlashBase: 0x00000000, PageSize: 256, SectorSize: 4096,
		DisableDebug: true, VerifyOpcode: progVerify,
	},
	FamilyCH56x: {
		Name: "CH56x", FlashBase: 0x00000000, PageSize: 256, SectorSize: 4096,
		AttachSubStage: ctrlSubRomRam, RomRamSplitQuery: true, VerifyOpcode: progVerify,
	},
	FamilyCH32V20x: {
		Name: "CH32V20x", FlashBase: 0x08000000, PageSize: 64, SectorSize: 4096,
		AttachSubStage: ctrlSubRomRam, VerifyOpcode: progVerify,
		BootRomBase: wchBootRomBase, BootRomSize: wchBootRomSize,
	},
	FamilyCH32V30x: {
		Name: "CH32V30x", FlashBase: 0x08000000, PageSize: 64, SectorSize: 4096,
		AttachSubStage: ctrlSubRomRam, VerifyOpcode: progVerify,
		BootRomBase: wchBootRomBase, BootRomSize: wchBootRomSize,
	},
	FamilyCH58x: {
		Name: "CH58x", FlashBase: 0x00000000, PageSize: 256, SectorSize: 4096,
		VerifyOpcode: progVerify,
	},
	FamilyCH32V003: {
		Name: "CH32V003", FlashBase: 0x08000000, PageSize: 64, SectorSize: 1024,
		AttachSubStage: ctrlSubRomRam, VerifyOpcode: progVerify,
	},
	FamilyCH32X035: {
		Name: "CH32X035", FlashBase: 0x08000000, PageSize: 256, SectorSize: 4096, VerifyOpcode: progVerify,
		BootRomBase: wchBootRomBase, BootRomSize: wchBootRomSize,
	},
	FamilyCH32L103: {Name: "CH32L103", FlashBase: 0x08000000, PageSize: 64, SectorSize: 4096, VerifyOpcode: progVerify},
	FamilyCH641:    {Name: "CH641", FlashBase: 0x08000000, PageSize: 64, SectorSize: 4096, VerifyOpcode: progVerify},
	FamilyCH643:    {Name: "CH643", FlashBase: 0x08000000, PageSize: 256, SectorSize: 4096, VerifyOpcode: progVerify},
	FamilyCH585:    {Name: "CH585", FlashBase: 0x00000000, PageSize: 256, SectorSize: 4096, VerifyOpcode: progVerify},
	FamilyCH8571:   {Name: "CH8571", FlashBase: 0x00000000, PageSize: 256, SectorSize: 4096, VerifyOpcode: progVerify},
	FamilyCH59x:    {Name: "CH59x", FlashBase: 0x00000000, PageSize: 256, SectorSize: 4096, VerifyOpcode: progVerify},
}

// systemSpaceAddr is where the peripheral/system-control address space
// starts on every known family's memory map (flash, SRAM, and boot ROM
// all sit below it). Dump uses this to pick begin_read_memory (bulk,
// flash/SRAM/boot-ROM) over the DMI/DM abstract-command path (CSR and
// other system-space addresses the bulk read command cannot reach).
const systemSpaceAddr = 0x40000000

// LookupFamily returns the registry row for tag, and whether geometry is
// known. Unknown families are never rejected outright -- a newer chip can
// still answer get_info/status, it just has no flash geometry to offer.
func LookupFamily(tag FamilyTag) (ChipFamilyInfo, bool) {
	row, ok := chipFamilyRegistry[tag]
	return row, ok
}

// ChipInstance is the attached-chip handle. Created on attach_chip,
// invalidated on detach or chip reset.
type ChipInstance struct {
	Family           FamilyTag
	ChipID           uint32
	UID              [8]byte
	FlashProtected   bool
	SramCodeMode     byte
	RiscvCoreVersion string
}

func (c *ChipInstance) String() string {
	return fmt.Sprintf("%s (chip_id=0x%08x)", c.Family, c.ChipID)
}
