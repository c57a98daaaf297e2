package upstream

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/wsuscatalog/wsuscatalog/internal/catalogerr"
	"golang.org/x/time/rate"
)

// envelope is the minimal SOAP 1.1 envelope this client needs: a single
// Body carrying whichever request/response struct the caller supplies.
// Nothing downstream needs WS-Addressing headers or MTOM, so that's all
// this wraps.
type envelope struct {
	XMLName xml.Name `xml:"soap:Envelope"`
	SoapNS  string   `xml:"xmlns:soap,attr"`
	Body    envBody  `xml:"soap:Body"`
}

type envBody struct {
	Content []byte `xml:",innerxml"`
}

type faultEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Fault *struct {
			FaultString string `xml:"faultstring"`
		} `xml:"Fault"`
	} `xml:"Body"`
}

const soapNS = "http://schemas.xmlsoap.org/soap/envelope/"

// transport executes SOAP calls with a fixed retry/backoff and
// rate-limiting policy: 3-minute send/receive timeouts, up to
// 10 retries with a fixed 5-second sleep on transient transport errors,
// immediate abort on a SOAP fault.
type transport struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter

	retryAttempts int
	retrySleep    time.Duration
}

func newTransport(endpoint string, sendTimeout, receiveTimeout time.Duration, retryAttempts int, retrySleep time.Duration) *transport {
	return &transport{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: sendTimeout + receiveTimeout,
		},
		// The upstream SOAP surface is a single endpoint shared by every
		// batch and probe call this client makes; cap steady-state request
		// rate rather than letting a burst of parallel batches hammer it.
		limiter:       rate.NewLimiter(rate.Limit(20), 20),
		retryAttempts: retryAttempts,
		retrySleep:    retrySleep,
	}
}

// call marshals reqBody into a SOAP request, posts it with soapAction, and
// unmarshals the single response element into respBody. It retries
// transport-level failures per policy; a SOAP fault response is returned
// immediately without retry, wrapped so callers can test it with
// IsSoapFault.
func (t *transport) call(ctx context.Context, soapAction string, reqBody any, respBody any) error {
	payload, err := xml.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("upstream: marshal request: %w", err)
	}
	env := envelope{SoapNS: soapNS, Body: envBody{Content: payload}}
	envBytes, err := xml.Marshal(env)
	if err != nil {
		return fmt.Errorf("upstream: marshal envelope: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= t.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("upstream: %w", catalogerr.ErrCancelled)
			case <-time.After(t.retrySleep):
			}
		}

		if err := t.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("upstream: rate limiter: %w", err)
		}

		callErr := t.doOnce(ctx, soapAction, envBytes, respBody)
		if callErr == nil {
			return nil
		}
		if IsSoapFault(callErr) {
			return callErr
		}
		lastErr = callErr
		if !isRetryable(callErr) {
			return callErr
		}
	}
	return fmt.Errorf("upstream: exhausted %d retries: %w", t.retryAttempts, lastErr)
}

func (t *transport) doOnce(ctx context.Context, soapAction string, envBytes []byte, respBody any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(envBytes))
	if err != nil {
		return fmt.Errorf("upstream: build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", soapAction)

	resp, err := t.client.Do(req)
	if err != nil {
		if isTimeoutErr(err) {
			return fmt.Errorf("upstream: %w: %v", catalogerr.ErrTransportTimeout, err)
		}
		return fmt.Errorf("upstream: transport: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("upstream: read response: %w", err)
	}

	if resp.StatusCode == http.StatusInternalServerError || resp.StatusCode == http.StatusBadRequest {
		var fe faultEnvelope
		if xml.Unmarshal(data, &fe) == nil && fe.Body.Fault != nil {
			return newSoapFault(fe.Body.Fault.FaultString)
		}
		return newSoapFault(fmt.Sprintf("status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upstream: unexpected status %d", resp.StatusCode)
	}

	var respEnv struct {
		Body struct {
			Content []byte `xml:",innerxml"`
		} `xml:"Body"`
	}
	if err := xml.Unmarshal(data, &respEnv); err != nil {
		return fmt.Errorf("upstream: unmarshal envelope: %w", err)
	}
	if respBody != nil {
		if err := xml.Unmarshal(respEnv.Body.Content, respBody); err != nil {
			return fmt.Errorf("upstream: unmarshal response body: %w", err)
		}
	}
	return nil
}

func isTimeoutErr(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func isRetryable(err error) bool {
	return errors.Is(err, catalogerr.ErrTransportTimeout) || !IsSoapFault(err)
}
