// Fuzz targets for trace export parsing
// Run with: go test -fuzz=FuzzParse ./pkg/source/ -fuzztime=30s
package source

import (
	"bytes"
	"testing"
)

// FuzzParse feeds arbitrary bytes to Parse with each format. The property is
// that parsing must not panic.
func FuzzParse(f *testing.F) {
	f.Add([]byte(`{"Name":"op","SpanContext":{"TraceID":"aaa","SpanID":"bbb"},"Parent":{"TraceID":"aaa","SpanID":"0000000000000000"},"StartTime":"2024-01-01T00:00:00Z","EndTime":"2024-01-01T00:00:01Z","Attributes":[],"Status":{"Code":"Unset"},"InstrumentationScope":{"Name":"svc"}}`))
	f.Add([]byte(`{"resourceSpans":[{"resource":{"attributes":[{"key":"service.name","value":{"stringValue":"api"}}]},"scopeSpans":[{"scope":{"name":"api"},"spans":[{"traceId":"AQIDBAUGBwgJCgsMDQ4PEA==","spanId":"AQIDBAUGBwg=","name":"op","startTimeUnixNano":"1700000000000000000","endTimeUnixNano":"1700000000030000000"}]}]}]}`))
	f.Add([]byte(`[{"trace_id":"t","spans":[{"span_id":"a","duration":"12","span_attributes":{"k":1}}]}]`))
	f.Add([]byte(`{"status":"success","data":[]}`))
	f.Add([]byte(`not json at all`))
	f.Add([]byte{})
	f.Fuzz(func(t *testing.T, data []byte) {
		for _, format := range []Format{FormatAuto, FormatBackend, FormatStdouttrace, FormatOTLP} {
			_, _ = Parse(bytes.NewReader(data), format)
		}
	})
}
