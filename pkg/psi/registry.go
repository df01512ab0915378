package psi

import (
	"github.com/piotrserafin/gocarousel/pkg/xmlenc"
)

// Table is implemented by every typed table representation. The
// binary and XML forms are symmetric : Serialize/Deserialize convert
// to and from the section level, BuildXML/AnalyzeXML to and from the
// document level.
type Table interface {
	TableID() uint8
	XMLName() string
	Serialize() (*BinaryTable, error)
	Deserialize(*BinaryTable) error
	BuildXML(root *xmlenc.Element)
	AnalyzeXML(root *xmlenc.Element) bool
}

type tableEntry struct {
	xmlName string
	tids    []uint8
	factory func() Table
}

// The table registry is populated from package init functions and
// read only afterwards.
var tableEntries []tableEntry

// RegisterTable binds an XML element name and a set of table ids to a
// table factory. Called from init, no locking afterwards.
func RegisterTable(xmlName string, tids []uint8, factory func() Table) {
	tableEntries = append(tableEntries, tableEntry{xmlName: xmlName, tids: tids, factory: factory})
}

// TableFactoryForID returns a factory for the given table id, nil
// when no table type claims it
func TableFactoryForID(tid uint8) func() Table {
	for _, entry := range tableEntries {
		for _, id := range entry.tids {
			if id == tid {
				return entry.factory
			}
		}
	}
	return nil
}

// TableFromXML instantiates and populates a table from its XML
// element. Returns nil, false for an unknown element name or a failed
// analyze.
func TableFromXML(root *xmlenc.Element) (Table, bool) {
	for _, entry := range tableEntries {
		if entry.xmlName == root.Name {
			table := entry.factory()
			if !table.AnalyzeXML(root) {
				return nil, false
			}
			return table, true
		}
	}
	return nil, false
}
