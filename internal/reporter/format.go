package reporter

import (
	"strconv"

	"github.com/valyala/bytebufferpool"

	"firestige.xyz/sourcewatch/internal/core"
)

// AppendRecord appends "addr: A.B.C.D, port: P" to dst.
func AppendRecord(dst []byte, rec core.SourceAddr) []byte {
	dst = append(dst, "addr: "...)
	dst = strconv.AppendUint(dst, uint64(rec.Addr>>24), 10)
	dst = append(dst, '.')
	dst = strconv.AppendUint(dst, uint64(rec.Addr>>16&0xFF), 10)
	dst = append(dst, '.')
	dst = strconv.AppendUint(dst, uint64(rec.Addr>>8&0xFF), 10)
	dst = append(dst, '.')
	dst = strconv.AppendUint(dst, uint64(rec.Addr&0xFF), 10)
	dst = append(dst, ", port: "...)
	return strconv.AppendUint(dst, uint64(rec.Port), 10)
}

// FormatRecord renders the human-readable report line for rec.
func FormatRecord(rec core.SourceAddr) string {
	buf := bytebufferpool.Get()
	buf.B = AppendRecord(buf.B, rec)
	s := buf.String()
	bytebufferpool.Put(buf)
	return s
}
