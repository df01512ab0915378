package descriptors

// Descriptor ids. The DSM-CC module info tags reuse low values that
// carry a different meaning outside the UNM table, which is what the
// table specific registry scope resolves.
const (
	DIDRegistration         uint8 = 0x05
	DIDPrivateDataSpecifier uint8 = 0x5F

	// Module info descriptors, ETSI TR 101 202, valid inside the
	// DII module loop only
	DIDDSMCCType             uint8 = 0x01
	DIDDSMCCName             uint8 = 0x02
	DIDDSMCCInfo             uint8 = 0x03
	DIDDSMCCCRC32            uint8 = 0x05
	DIDDSMCCCompressedModule uint8 = 0x09
)
