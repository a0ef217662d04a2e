package iidc

import (
	"errors"
	"testing"
)

func testROM() []uint32 {
	return []uint32{
		0x04040000, // bus info length 4
		0x31333934, // "1394"
		0x00000000,
		0x00b09d01, // vendor b09d, chip id hi
		0x23456789, // chip id lo
		0x00030000, // root directory, 3 entries
		0x0300b09d, // vendor id
		0x81000009, // vendor name leaf at 16
		0xd1000001, // unit directory at 9
		0x00040000, // unit directory, 4 entries
		0x1200a02d, // specifier id
		0x13000102, // software version
		0x17000007, // model id
		0xd4000001, // unit dependent directory at 14
		0x00010000, // unit dependent directory, 1 entry
		0x403c0000, // command regs base
		0x00050000, // text leaf, 5 quadlets
		0x00000000,
		0x00000000,
		0x506f696e, // "Poin"
		0x74204772, // "t Gr"
		0x65790000, // "ey"
	}
}

func TestParseROM(t *testing.T) {
	info, err := ParseROM(testROM())
	if err != nil {
		t.Fatalf("ParseROM() error = %v", err)
	}
	if info.GUID != 0x00b09d0123456789 {
		t.Errorf("GUID = %#x, want 0x00b09d0123456789", info.GUID)
	}
	if info.VendorID != VendorPointGrey {
		t.Errorf("VendorID = %#x, want %#x", info.VendorID, VendorPointGrey)
	}
	if info.ModelID != 7 {
		t.Errorf("ModelID = %d, want 7", info.ModelID)
	}
	if info.SWVersion != 0x102 {
		t.Errorf("SWVersion = %#x, want 0x102", info.SWVersion)
	}
	if info.CommandBase != DefaultCommandBase {
		t.Errorf("CommandBase = %#x, want %#x", info.CommandBase, DefaultCommandBase)
	}
	if info.Vendor != "Point Grey" {
		t.Errorf("Vendor = %q, want %q", info.Vendor, "Point Grey")
	}
	if got := info.Name(); got != "Point Grey" {
		t.Errorf("Name() = %q, want %q", got, "Point Grey")
	}
}

func TestParseROMRejects(t *testing.T) {
	notIIDC := testROM()
	notIIDC[10] = 0x12000001

	truncated := testROM()[:5]

	tests := []struct {
		name string
		rom  []uint32
		want error
	}{
		{"other unit specifier", notIIDC, ErrNotIIDC},
		{"truncated", truncated, ErrBadROM},
		{"empty", nil, ErrBadROM},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseROM(tt.rom); !errors.Is(err, tt.want) {
				t.Errorf("ParseROM() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestROMInfoNameFallsBackToGUID(t *testing.T) {
	info := ROMInfo{GUID: 0xabc}
	if got := info.Name(); got != "0000000000000abc" {
		t.Errorf("Name() = %q, want %q", got, "0000000000000abc")
	}
}
