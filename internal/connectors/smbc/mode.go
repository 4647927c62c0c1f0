package smbc

import "strings"

// Mode holds SMB file attribute flags.
type Mode uint32

// Attribute flags as defined by MS-SMB. VOLUME_ID and DEVICE are Windows
// only.
const (
	ModeReadOnly     Mode = 0x01
	ModeHidden       Mode = 0x02
	ModeSystem       Mode = 0x04
	ModeDirectory    Mode = 0x10
	ModeArchive      Mode = 0x20
	ModeNormal       Mode = 0x80
	ModeTemporary    Mode = 0x100
	ModeSparse       Mode = 0x200
	ModeReparsePoint Mode = 0x400
	ModeCompressed   Mode = 0x800
	ModeOffline      Mode = 0x1000
	ModeNonIndexed   Mode = 0x2000
	ModeEncrypted    Mode = 0x4000
)

// modeMask is every flag SMB defines.
const modeMask = ModeReadOnly | ModeHidden | ModeSystem | ModeDirectory |
	ModeArchive | ModeNormal | ModeTemporary | ModeSparse | ModeReparsePoint |
	ModeCompressed | ModeOffline | ModeNonIndexed | ModeEncrypted

// snapshotDir is never scanned.
const snapshotDir = "~snapshot"

// Incoherent reports flags that no well-behaved server sends: NORMAL
// combined with anything else, or undefined bits.
func (m Mode) Incoherent() bool {
	return (m&ModeNormal != 0 && m != ModeNormal) || m&^modeMask != 0
}

// Skippable reports whether an object should be left out when skipping
// super-hidden objects: hidden and either system or named with a leading
// "~", or named "~snapshot". Objects with incoherent flags are skipped
// when their name starts with "~".
func Skippable(m Mode, name string) bool {
	tilde := strings.HasPrefix(name, "~")
	if m.Incoherent() {
		log.Warn("incoherent mode flags %#x on %s", uint32(m), name)
		if tilde {
			return true
		}
	}
	if m&ModeHidden != 0 && (m&ModeSystem != 0 || tilde) {
		log.Info("skipping super-hidden object %s", name)
		return true
	}
	return name == snapshotDir
}
