// Package downstream implements the MS-WSUSSS server surface: the
// ServerSync and DSS endpoints backed by a package store and
// an optional content store, plus the ranged content-fetch HTTP handler.
// The wire envelope mirrors internal/upstream's hand-rolled SOAP 1.1 shape
// (encoding/xml over net/http; no SOAP library exists anywhere in the
// retrieval pack, see DESIGN.md) so a capture of this server's traffic
// looks the same as a capture of the client's.
package downstream

import (
	"encoding/xml"
	"fmt"
	"net/http"
)

const soapNS = "http://schemas.xmlsoap.org/soap/envelope/"

type envelope struct {
	XMLName xml.Name `xml:"soap:Envelope"`
	SoapNS  string   `xml:"xmlns:soap,attr"`
	Body    envBody  `xml:"soap:Body"`
}

type envBody struct {
	Content []byte `xml:",innerxml"`
}

type requestEnvelope struct {
	Body struct {
		Content []byte `xml:",innerxml"`
	} `xml:"Body"`
}

// writeSoapBody wraps body in a SOAP envelope and writes it with a 200.
func writeSoapBody(w http.ResponseWriter, body any) {
	payload, err := xml.Marshal(body)
	if err != nil {
		writeSoapFault(w, http.StatusInternalServerError, "response marshal failed")
		return
	}
	env := envelope{SoapNS: soapNS, Body: envBody{Content: payload}}
	envBytes, err := xml.Marshal(env)
	if err != nil {
		writeSoapFault(w, http.StatusInternalServerError, "envelope marshal failed")
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(envBytes)
}

// writeNullSoapBody replies 200 with an empty body, mirroring legacy
// RequestTooLarge behavior.
func writeNullSoapBody(w http.ResponseWriter) {
	env := envelope{SoapNS: soapNS}
	envBytes, _ := xml.Marshal(env)
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(envBytes)
}

// writeSoapFault answers with a SOAP 1.1 fault at the given HTTP status,
// used both for genuine faults and for "method not implemented".
func writeSoapFault(w http.ResponseWriter, status int, message string) {
	body := fmt.Sprintf(`<Envelope xmlns="%s"><Body><Fault><faultstring>%s</faultstring></Fault></Body></Envelope>`, soapNS, xmlEscape(message))
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func xmlEscape(s string) string {
	var buf []byte
	_ = xml.EscapeText(sliceWriter{&buf}, []byte(s))
	return string(buf)
}

type sliceWriter struct{ buf *[]byte }

func (s sliceWriter) Write(p []byte) (int, error) {
	*s.buf = append(*s.buf, p...)
	return len(p), nil
}

// decodeRequest reads r's body, unwraps the SOAP envelope, and unmarshals
// the inner element into dst.
func decodeRequest(r *http.Request, dst any) error {
	var env requestEnvelope
	if err := xml.NewDecoder(r.Body).Decode(&env); err != nil {
		return fmt.Errorf("downstream: decode envelope: %w", err)
	}
	if dst == nil {
		return nil
	}
	return xml.Unmarshal(env.Body.Content, dst)
}
