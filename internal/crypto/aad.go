package icrypto

import "encoding/binary"

const recordDataLabel = "RECORDDATA"

// AADRecordData binds a sealed data blob to the record it belongs to so a
// blob copied onto another record fails to open. The label and record id
// are length-prefixed; the envelope version follows as a uint32.
func AADRecordData(recordID string, ver int) []byte {
	out := make([]byte, 0, 4+len(recordDataLabel)+4+len(recordID)+4)
	out = appendField(out, recordDataLabel)
	out = appendField(out, recordID)
	return binary.BigEndian.AppendUint32(out, uint32(ver))
}

func appendField(b []byte, s string) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(len(s)))
	return append(b, s...)
}
