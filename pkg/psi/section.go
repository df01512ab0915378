// Package psi implements the on-wire framing of PSI/SI data : section
// parsing and synthesis, CRC checking and the assembly of multi
// section tables.
package psi

import (
	"errors"

	"github.com/piotrserafin/gocarousel/internal/crc"
)

const (
	// ShortHeaderSize is the fixed 3 byte section header
	ShortHeaderSize = 3
	// LongHeaderSize includes the 5 byte long section prefix
	LongHeaderSize = 8
	// CRCSize is the trailing CRC32 of long sections
	CRCSize = 4
	// MaxSectionSize applies to short and MPEG private sections
	MaxSectionSize = 1024
	// MaxDSMCCSectionSize applies to object carousel sections,
	// ETSI TS 102 809 Table B.2
	MaxDSMCCSectionSize = 4096
	// MaxDSMCCPayloadSize is the section size minus the long header
	// and CRC overhead
	MaxDSMCCPayloadSize = MaxDSMCCSectionSize - LongHeaderSize - CRCSize
)

var (
	ErrSectionTooShort = errors.New("section data is shorter than its declared length")
	ErrSectionTooLong  = errors.New("section exceeds the maximum size for its table id")
	ErrPayloadTooLong  = errors.New("payload does not fit in one section")
)

// Section is one framed PSI/SI section. A section is immutable once
// framed : accessors read directly from the retained byte image.
type Section struct {
	data  []byte
	pid   uint16
	valid bool
}

// MaxSizeForTableID returns the applicable section size limit.
// DSM-CC sections use the 4096 byte maximum even though their
// private_indicator is zero.
func MaxSizeForTableID(tid uint8) int {
	if tid >= 0x38 && tid <= 0x3F {
		return MaxDSMCCSectionSize
	}
	return MaxSectionSize
}

// FromBytes frames a section from the start of data. The byte image
// is retained as is, trimmed to the declared section length. For long
// sections the trailing CRC32 is verified and a mismatch marks the
// section invalid.
func FromBytes(data []byte, pid uint16) (*Section, error) {
	if len(data) < ShortHeaderSize {
		return nil, ErrSectionTooShort
	}
	total := ShortHeaderSize + int(uint16(data[1]&0x0F)<<8|uint16(data[2]))
	if len(data) < total {
		return nil, ErrSectionTooShort
	}
	sec := &Section{data: append([]byte{}, data[:total]...), pid: pid}
	if total > MaxSizeForTableID(sec.TableID()) {
		return nil, ErrSectionTooLong
	}
	if sec.IsLongSection() {
		if total < LongHeaderSize+CRCSize {
			return nil, ErrSectionTooShort
		}
		sec.valid = crc.Checksum(sec.data[:total-CRCSize]) == sec.CRC32()
	} else {
		sec.valid = true
	}
	return sec, nil
}

// NewShort synthesizes a short section
func NewShort(tableID uint8, private bool, payload []byte) (*Section, error) {
	total := ShortHeaderSize + len(payload)
	if total > MaxSizeForTableID(tableID) {
		return nil, ErrPayloadTooLong
	}
	data := make([]byte, total)
	data[0] = tableID
	data[1] = 0x30 | uint8(len(payload)>>8)
	if private {
		data[1] |= 0x40
	}
	data[2] = uint8(len(payload))
	copy(data[ShortHeaderSize:], payload)
	return &Section{data: data, valid: true}, nil
}

// NewLong synthesizes a long section with a computed CRC32
func NewLong(tableID uint8, private bool, tidExt uint16, version uint8, current bool,
	sectionNumber uint8, lastSectionNumber uint8, payload []byte) (*Section, error) {

	total := LongHeaderSize + len(payload) + CRCSize
	if total > MaxSizeForTableID(tableID) {
		return nil, ErrPayloadTooLong
	}
	length := total - ShortHeaderSize
	data := make([]byte, total)
	data[0] = tableID
	data[1] = 0x80 | 0x30 | uint8(length>>8)
	if private {
		data[1] |= 0x40
	}
	data[2] = uint8(length)
	data[3] = uint8(tidExt >> 8)
	data[4] = uint8(tidExt)
	data[5] = 0xC0 | version<<1
	if current {
		data[5] |= 0x01
	}
	data[6] = sectionNumber
	data[7] = lastSectionNumber
	copy(data[LongHeaderSize:], payload)
	checksum := crc.Checksum(data[:total-CRCSize])
	data[total-CRCSize] = uint8(checksum >> 24)
	data[total-CRCSize+1] = uint8(checksum >> 16)
	data[total-CRCSize+2] = uint8(checksum >> 8)
	data[total-CRCSize+3] = uint8(checksum)
	return &Section{data: data, valid: true}, nil
}

// IsValid is false when the declared CRC32 does not match
func (s *Section) IsValid() bool {
	return s.valid
}

// PID returns the PID the section was captured on, zero for
// synthesized sections
func (s *Section) PID() uint16 {
	return s.pid
}

// Size is the total framed size including header and CRC
func (s *Section) Size() int {
	return len(s.data)
}

// Bytes returns the raw section image
func (s *Section) Bytes() []byte {
	return s.data
}

// TableID returns the 8 bit table identifier
func (s *Section) TableID() uint8 {
	return s.data[0]
}

// IsLongSection returns the section_syntax_indicator bit
func (s *Section) IsLongSection() bool {
	return s.data[1]&0x80 != 0
}

// IsPrivate returns the private_indicator bit
func (s *Section) IsPrivate() bool {
	return s.data[1]&0x40 != 0
}

// TableIDExtension is only meaningful for long sections
func (s *Section) TableIDExtension() uint16 {
	if !s.IsLongSection() {
		return 0
	}
	return uint16(s.data[3])<<8 | uint16(s.data[4])
}

// Version returns the 5 bit version of a long section
func (s *Section) Version() uint8 {
	if !s.IsLongSection() {
		return 0
	}
	return s.data[5] >> 1 & 0x1F
}

// IsCurrent returns the current_next_indicator of a long section
func (s *Section) IsCurrent() bool {
	if !s.IsLongSection() {
		return true
	}
	return s.data[5]&0x01 != 0
}

// SectionNumber of a long section
func (s *Section) SectionNumber() uint8 {
	if !s.IsLongSection() {
		return 0
	}
	return s.data[6]
}

// LastSectionNumber of a long section
func (s *Section) LastSectionNumber() uint8 {
	if !s.IsLongSection() {
		return 0
	}
	return s.data[7]
}

// Payload returns the section content without framing : header and
// CRC excluded for long sections, header excluded for short ones
func (s *Section) Payload() []byte {
	if s.IsLongSection() {
		return s.data[LongHeaderSize : len(s.data)-CRCSize]
	}
	return s.data[ShortHeaderSize:]
}

// CRC32 returns the trailing checksum of a long section
func (s *Section) CRC32() uint32 {
	if !s.IsLongSection() {
		return 0
	}
	n := len(s.data)
	return uint32(s.data[n-4])<<24 | uint32(s.data[n-3])<<16 | uint32(s.data[n-2])<<8 | uint32(s.data[n-1])
}
