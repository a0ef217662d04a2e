package iidc

import (
	"fmt"
	"strings"
)

// SpecIDIIDC is the 1394 Trade Association unit specifier id.
const SpecIDIIDC = 0x00a02d

// Directory entry keys.
const (
	keyTextLeaf       = 0x81
	keyTextLeafModel  = 0x82
	keyVendorID       = 0x03
	keyModelID        = 0x17
	keyUnitDirectory  = 0xd1
	keySpecifierID    = 0x12
	keySoftwareVer    = 0x13
	keyUnitDependent  = 0xd4
	keyCommandRegBase = 0x40
)

// ROMInfo is what a camera's configuration ROM says about it.
type ROMInfo struct {
	GUID        uint64
	VendorID    uint32
	ModelID     uint32
	Vendor      string
	Model       string
	SWVersion   uint32
	CommandBase uint64
}

// Name returns "vendor model", falling back to the GUID.
func (r ROMInfo) Name() string {
	name := strings.TrimSpace(r.Vendor + " " + r.Model)
	if name == "" {
		return fmt.Sprintf("%016x", r.GUID)
	}
	return name
}

type directory struct {
	rom   []uint32
	start int // index of the directory header
}

func (d directory) entries() ([]int, error) {
	if d.start < 0 || d.start >= len(d.rom) {
		return nil, fmt.Errorf("%w: directory at %d", ErrBadROM, d.start)
	}
	n := int(d.rom[d.start] >> 16)
	if d.start+n >= len(d.rom) {
		n = len(d.rom) - d.start - 1
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = d.start + 1 + i
	}
	return idx, nil
}

func entryKey(q uint32) uint32   { return q >> 24 }
func entryValue(q uint32) uint32 { return q & 0xffffff }

// ParseROM extracts identity and the command register base from a
// configuration ROM given as host-order quadlets.
func ParseROM(rom []uint32) (ROMInfo, error) {
	if len(rom) < 6 {
		return ROMInfo{}, fmt.Errorf("%w: %d quadlets", ErrBadROM, len(rom))
	}
	infoLen := int(rom[0] >> 24)
	if infoLen < 4 || 1+infoLen >= len(rom) {
		return ROMInfo{}, fmt.Errorf("%w: bus info length %d", ErrBadROM, infoLen)
	}

	info := ROMInfo{
		GUID:        uint64(rom[3])<<32 | uint64(rom[4]),
		VendorID:    rom[3] >> 8,
		CommandBase: DefaultCommandBase,
	}

	root := directory{rom: rom, start: 1 + infoLen}
	entries, err := root.entries()
	if err != nil {
		return ROMInfo{}, err
	}

	found := false
	for i, idx := range entries {
		q := rom[idx]
		switch entryKey(q) {
		case keyVendorID:
			info.VendorID = entryValue(q)
			if i+1 < len(entries) && entryKey(rom[entries[i+1]]) == keyTextLeaf {
				info.Vendor = textLeaf(rom, entries[i+1])
			}
		case keyUnitDirectory:
			if parseUnit(rom, idx+int(entryValue(q)), &info) {
				found = true
			}
		}
	}
	if !found {
		return info, ErrNotIIDC
	}
	return info, nil
}

func parseUnit(rom []uint32, start int, info *ROMInfo) bool {
	unit := directory{rom: rom, start: start}
	entries, err := unit.entries()
	if err != nil {
		return false
	}
	spec := uint32(0)
	dependent := -1
	for i, idx := range entries {
		q := rom[idx]
		switch entryKey(q) {
		case keySpecifierID:
			spec = entryValue(q)
		case keySoftwareVer:
			info.SWVersion = entryValue(q)
		case keyModelID:
			info.ModelID = entryValue(q)
			if i+1 < len(entries) && entryKey(rom[entries[i+1]]) == keyTextLeaf {
				info.Model = textLeaf(rom, entries[i+1])
			}
		case keyUnitDependent:
			dependent = idx + int(entryValue(q))
		}
	}
	if spec != SpecIDIIDC {
		return false
	}
	if dependent >= 0 {
		parseUnitDependent(rom, dependent, info)
	}
	return true
}

func parseUnitDependent(rom []uint32, start int, info *ROMInfo) {
	dir := directory{rom: rom, start: start}
	entries, err := dir.entries()
	if err != nil {
		return
	}
	for _, idx := range entries {
		q := rom[idx]
		switch entryKey(q) {
		case keyCommandRegBase:
			info.CommandBase = csrBase + uint64(entryValue(q))*4
		case keyTextLeaf:
			if v := textLeaf(rom, idx); v != "" {
				info.Vendor = v
			}
		case keyTextLeafModel:
			if v := textLeaf(rom, idx); v != "" {
				info.Model = v
			}
		}
	}
}

// textLeaf decodes a minimal ASCII textual descriptor leaf referenced by
// the entry at idx.
func textLeaf(rom []uint32, idx int) string {
	start := idx + int(entryValue(rom[idx]))
	if start <= 0 || start >= len(rom) {
		return ""
	}
	n := int(rom[start] >> 16)
	if n < 2 {
		return ""
	}
	var b strings.Builder
	for i := start + 3; i <= start+n && i < len(rom); i++ {
		q := rom[i]
		for shift := 24; shift >= 0; shift -= 8 {
			c := byte(q >> uint(shift))
			if c == 0 {
				return strings.TrimSpace(b.String())
			}
			b.WriteByte(c)
		}
	}
	return strings.TrimSpace(b.String())
}
