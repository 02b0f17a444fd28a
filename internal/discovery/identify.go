package discovery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/cases"

	"github.com/nerrad567/avr-control/internal/catalog"
	"github.com/nerrad567/avr-control/internal/request"
)

// ModelHint is what an Identifier read from a device's front page.
type ModelHint struct {
	Manufacturer string
	Model        string
}

// Identifier recognises one vendor's devices from page text.
type Identifier interface {
	Identify(body string) (ModelHint, bool)
}

var denonModelPattern = regexp.MustCompile(`(?i)(avr-x?\d{3,4}w?)`)

var fold = cases.Fold()

// DenonIdentifier matches Denon AVR front pages: the page must mention
// "denon" and carry a model number such as AVR-X2300W.
type DenonIdentifier struct{}

// Identify implements Identifier.
func (DenonIdentifier) Identify(body string) (ModelHint, bool) {
	folded := fold.String(body)
	if !strings.Contains(folded, "denon") {
		return ModelHint{}, false
	}
	m := denonModelPattern.FindStringSubmatch(folded)
	if m == nil {
		return ModelHint{}, false
	}
	return ModelHint{Manufacturer: "Denon", Model: strings.ToUpper(m[1])}, true
}

// Identify fetches http://ip:port/ and matches it against the catalog.
// Any failure, from network to an unknown model, returns nil.
func (e *Engine) Identify(ctx context.Context, ip string, port int) *catalog.ReceiverModel {
	if e.models == nil || len(e.identifiers) == 0 {
		return nil
	}

	resp, err := e.doer.Do(ctx, &request.Request{
		Method:          http.MethodGet,
		URL:             fmt.Sprintf("http://%s/", net.JoinHostPort(ip, strconv.Itoa(port))),
		Timeout:         e.opts.IdentifyTimeout,
		FollowRedirects: true,
	})
	if err != nil {
		e.logger.Debug("identification request failed", "address", ip, "error", err)
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		e.logger.Debug("identification got non-200", "address", ip, "status", resp.StatusCode)
		return nil
	}

	body := decodeBody(resp)
	for _, id := range e.identifiers {
		hint, ok := id.Identify(body)
		if !ok {
			continue
		}
		model, err := e.models.FindModel(ctx, hint.Manufacturer, hint.Model)
		if err != nil {
			e.logger.Debug("identified model not in catalog",
				"address", ip,
				"manufacturer", hint.Manufacturer,
				"model", hint.Model,
			)
			return nil
		}
		e.logger.Info("device identified", "address", ip, "manufacturer", model.Manufacturer, "model", model.Name)
		return model
	}
	return nil
}

// decodeBody converts a page to UTF-8 using the Content-Type charset or the
// page's own meta tags. Undecodable pages are used as-is.
func decodeBody(resp *request.Response) string {
	var contentType string
	if resp.Header != nil {
		contentType = resp.Header.Get("Content-Type")
	}

	r, err := charset.NewReader(bytes.NewReader(resp.Body), contentType)
	if err != nil {
		return string(resp.Body)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return string(resp.Body)
	}
	return string(decoded)
}
