// Package dwr encodes and decodes the batched "plaincall" remote-procedure
// format spoken by the lending authority's legacy AJAX endpoints.
package dwr

import (
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
)

// Script and method identifiers exposed by the remote application.
const (
	SimulatorScript = "SimuladorAjax"
	SimulateMethod  = "simular"
	CityScript      = "CidadeAjax"
	CityMethod      = "listarCidades"
)

// Call is a single remote-procedure invocation.
type Call struct {
	ScriptName string
	MethodName string
	Params     []string
}

// SimulationCall builds the five-parameter simulation invocation. paramString
// is the colon-delimited simulation parameter string.
func SimulationCall(itemID, versionID int, regionCode, borrowerType, paramString string) Call {
	return Call{
		ScriptName: SimulatorScript,
		MethodName: SimulateMethod,
		Params: []string{
			strconv.Itoa(itemID),
			strconv.Itoa(versionID),
			strings.ToUpper(regionCode),
			borrowerType,
			paramString,
		},
	}
}

// CityCall builds the city lookup invocation for a region code.
func CityCall(regionCode string) Call {
	return Call{
		ScriptName: CityScript,
		MethodName: CityMethod,
		Params:     []string{"uf=" + strings.ToUpper(regionCode)},
	}
}

// Encoder serializes calls. The batch id increases with every payload, so a
// single Encoder may be shared by concurrent sessions.
type Encoder struct {
	page  string
	batch atomic.Int64
}

// NewEncoder creates an Encoder that reports page as the originating page
// path.
func NewEncoder(page string) *Encoder {
	return &Encoder{page: page}
}

// Encode renders c as a newline-delimited plaincall payload.
func (e *Encoder) Encode(c Call) []byte {
	var b strings.Builder
	b.WriteString("callCount=1\n")
	b.WriteString("page=" + e.page + "\n")
	b.WriteString("httpSessionId=\n")
	b.WriteString("scriptSessionId=\n")
	b.WriteString("c0-scriptName=" + c.ScriptName + "\n")
	b.WriteString("c0-methodName=" + c.MethodName + "\n")
	b.WriteString("c0-id=0\n")
	for i, p := range c.Params {
		b.WriteString("c0-param" + strconv.Itoa(i) + "=string:" + escape(p) + "\n")
	}
	b.WriteString("batchId=" + strconv.FormatInt(e.batch.Add(1)-1, 10) + "\n")
	return []byte(b.String())
}

// escape percent-encodes a parameter value the way the browser client does.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
