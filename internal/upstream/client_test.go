package upstream_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsuscatalog/wsuscatalog/internal/upstream"
)

// fakeServer answers the handful of SOAP calls this client makes. Only the
// fields the client actually reads are populated in each response.
func fakeServer(t *testing.T, handleUpdateData func(w http.ResponseWriter, body string)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		action := r.Header.Get("SOAPAction")
		w.Header().Set("Content-Type", "text/xml")

		switch action {
		case "GetAuthConfig":
			fmt.Fprint(w, soapWrap(`<GetAuthConfigResponse><GetAuthConfigResult><AuthPlugInConfig><Id>DssTargeting</Id><ServiceUrl>https://dss/</ServiceUrl></AuthPlugInConfig></GetAuthConfigResult></GetAuthConfigResponse>`))
		case "GetAuthorizationCookie":
			fmt.Fprint(w, soapWrap(`<GetAuthorizationCookieResponse><GetAuthorizationCookieResult><AuthCookie>authtoken</AuthCookie></GetAuthorizationCookieResult></GetAuthorizationCookieResponse>`))
		case "GetCookie":
			fmt.Fprint(w, soapWrap(`<GetCookieResponse><GetCookieResult><CookieData>accesstoken</CookieData></GetCookieResult></GetCookieResponse>`))
		case "GetConfigData":
			fmt.Fprint(w, soapWrap(`<GetConfigDataResponse><GetConfigDataResult><MaxNumberOfUpdatesPerRequest>100</MaxNumberOfUpdatesPerRequest></GetConfigDataResult></GetConfigDataResponse>`))
		case "GetUpdateData":
			handleUpdateData(w, string(body))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func soapWrap(inner string) string {
	return `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>` + inner + `</soap:Body></soap:Envelope>`
}

func TestClientConfigCachesMaxUpdates(t *testing.T) {
	srv := fakeServer(t, nil)
	defer srv.Close()

	c := upstream.New(srv.URL, "acct", uuid.New().String(), time.Second, time.Second, 2, time.Millisecond)
	cfg, err := c.Config(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.MaxNumberOfUpdatesPerRequest)
}

func TestProbeExpiredRevisionFindsMatch(t *testing.T) {
	target := uuid.New()
	srv := fakeServer(t, func(w http.ResponseWriter, body string) {
		if containsRevision(body, 312) {
			resp := soapWrap(fmt.Sprintf(`<GetUpdateDataResponse><GetUpdateDataResult><Updates><UpdateXml><ID>%s</ID><RevisionNumber>312</RevisionNumber><Xml>&lt;a/&gt;</Xml><IsCompressed>false</IsCompressed></UpdateXml></Updates></GetUpdateDataResult></GetUpdateDataResponse>`, target))
			fmt.Fprint(w, resp)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `<Envelope xmlns="http://schemas.xmlsoap.org/soap/envelope/"><Body><Fault><faultstring>revision not found</faultstring></Fault></Body></Envelope>`)
	})
	defer srv.Close()

	c := upstream.New(srv.URL, "acct", uuid.New().String(), time.Second, time.Second, 1, time.Millisecond)
	blob, ok, err := c.ProbeExpiredRevision(context.Background(), target, 350, 10)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int32(312), blob.ID.Revision)
	assert.Equal(t, target, blob.ID.UpdateID)
}

func containsRevision(body string, revision int) bool {
	return strings.Contains(body, fmt.Sprintf("<RevisionNumber>%d</RevisionNumber>", revision))
}
