package psi

import "errors"

var (
	ErrInvalidSection  = errors.New("section is invalid and cannot join a table")
	ErrTableMismatch   = errors.New("section does not belong to this table")
	ErrSectionOutRange = errors.New("section number exceeds last section number")
)

// BinaryTable is an ordered collection of sections forming one
// logical table. Sections are accepted incrementally, completeness is
// a derivable predicate. A version change resets the in-progress
// assembly.
type BinaryTable struct {
	tableID  uint8
	tidExt   uint16
	version  uint8
	current  bool
	sections []*Section
	received int
}

// NewBinaryTable returns an empty table, populated by AddSection
func NewBinaryTable() *BinaryTable {
	return &BinaryTable{}
}

// TableFromSections assembles a table from a complete section set
func TableFromSections(sections []*Section) (*BinaryTable, error) {
	bt := NewBinaryTable()
	for _, sec := range sections {
		if err := bt.AddSection(sec); err != nil {
			return nil, err
		}
	}
	return bt, nil
}

func (bt *BinaryTable) adopt(sec *Section) {
	bt.tableID = sec.TableID()
	bt.tidExt = sec.TableIDExtension()
	bt.version = sec.Version()
	bt.current = sec.IsCurrent()
	bt.sections = make([]*Section, int(sec.LastSectionNumber())+1)
	bt.received = 0
}

// AddSection accepts one section into the table. A section with a
// different version than the sections already collected resets the
// assembly. Duplicate sections are ignored.
func (bt *BinaryTable) AddSection(sec *Section) error {
	if sec == nil || !sec.IsValid() {
		return ErrInvalidSection
	}
	if len(bt.sections) == 0 {
		bt.adopt(sec)
	} else if sec.TableID() != bt.tableID || sec.TableIDExtension() != bt.tidExt {
		return ErrTableMismatch
	} else if sec.Version() != bt.version || sec.IsCurrent() != bt.current ||
		int(sec.LastSectionNumber())+1 != len(bt.sections) {
		// New version supersedes whatever was collected
		bt.adopt(sec)
	}
	num := int(sec.SectionNumber())
	if num >= len(bt.sections) {
		return ErrSectionOutRange
	}
	if bt.sections[num] == nil {
		bt.received++
	}
	bt.sections[num] = sec
	return nil
}

// IsComplete is true when section numbers cover the whole
// 0..last_section_number range
func (bt *BinaryTable) IsComplete() bool {
	return len(bt.sections) > 0 && bt.received == len(bt.sections)
}

// TableID of the collected sections
func (bt *BinaryTable) TableID() uint8 {
	return bt.tableID
}

// TableIDExtension of the collected sections
func (bt *BinaryTable) TableIDExtension() uint16 {
	return bt.tidExt
}

// Version of the collected sections
func (bt *BinaryTable) Version() uint8 {
	return bt.version
}

// IsCurrent of the collected sections
func (bt *BinaryTable) IsCurrent() bool {
	return bt.current
}

// SectionCount is last_section_number + 1, zero for an empty table
func (bt *BinaryTable) SectionCount() int {
	return len(bt.sections)
}

// SectionAt returns the collected section with the given number, nil
// when not yet received
func (bt *BinaryTable) SectionAt(i int) *Section {
	if i < 0 || i >= len(bt.sections) {
		return nil
	}
	return bt.sections[i]
}

// AssembleTable builds a complete table from per-section payloads.
// Section numbers are assigned in payload order.
func AssembleTable(tableID uint8, private bool, tidExt uint16, version uint8, current bool,
	payloads [][]byte) (*BinaryTable, error) {

	bt := NewBinaryTable()
	last := uint8(len(payloads) - 1)
	for i, payload := range payloads {
		sec, err := NewLong(tableID, private, tidExt, version, current, uint8(i), last, payload)
		if err != nil {
			return nil, err
		}
		if err := bt.AddSection(sec); err != nil {
			return nil, err
		}
	}
	return bt, nil
}
