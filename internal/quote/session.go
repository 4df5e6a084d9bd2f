package quote

import (
	"bytes"
	"context"
	"errors"
	"html"
	"io"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/apperr"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/resilience"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/pkg/dwr"
)

const (
	maxRedirects = 10
	maxBodyBytes = 4 << 20
)

// eligibleProduct matches the call site the eligibility page renders for each
// product offered: simulate(itemId, versionId, 'name'.
var eligibleProduct = regexp.MustCompile(`simulate\(\s*(\d+)\s*,\s*(\d+)\s*,\s*'((?:[^'\\]|\\.)*)'`)

// product is the first eligible product of the eligibility step.
type product struct {
	ItemID    int
	VersionID int
	Name      string
}

// session is one pass through the remote flow. It owns its jar and is never
// shared between top-level calls.
type session struct {
	client *httpClient
	jar    *Jar
}

// exchange is a fully read response.
type exchange struct {
	resp *http.Response
	body []byte
}

// init loads the entry page so the remote issues its session cookies.
func (s *session) init(ctx context.Context) error {
	ex, err := s.do(ctx, "init", http.MethodGet, s.client.endpoint(s.client.cfg.EntryPath), "", nil)
	if err != nil {
		return err
	}
	return s.checkBlock("init", ex)
}

// submitEligibility posts the eligibility form and returns the first product
// offered.
func (s *session) submitEligibility(ctx context.Context, form url.Values) (product, error) {
	ex, err := s.do(ctx, "eligibility", http.MethodPost, s.client.endpoint(s.client.cfg.EligibilityPath),
		"application/x-www-form-urlencoded", []byte(form.Encode()))
	if err != nil {
		return product{}, err
	}
	if err := s.checkBlock("eligibility", ex); err != nil {
		return product{}, err
	}

	m := eligibleProduct.FindSubmatch(ex.body)
	if m == nil {
		return product{}, apperr.New(apperr.KindNoEligibleProduct,
			"no financing product is available for the given profile")
	}
	item, errItem := strconv.Atoi(string(m[1]))
	version, errVersion := strconv.Atoi(string(m[2]))
	if errItem != nil || errVersion != nil {
		return product{}, apperr.New(apperr.KindNoEligibleProduct,
			"no financing product is available for the given profile")
	}
	name := html.UnescapeString(strings.ReplaceAll(string(m[3]), `\'`, `'`))
	return product{ItemID: item, VersionID: version, Name: strings.TrimSpace(name)}, nil
}

// call sends one RPC payload and decodes the reply rows.
func (s *session) call(ctx context.Context, step, path string, c dwr.Call) ([]dwr.Row, error) {
	payload := s.client.encoder.Encode(c)
	ex, err := s.do(ctx, step, http.MethodPost, s.client.endpoint(path), "text/plain", payload)
	if err != nil {
		return nil, err
	}
	if err := s.checkBlock(step, ex); err != nil {
		return nil, err
	}

	rows, err := dwr.Decode(ex.body)
	if err != nil {
		fields := []zap.Field{zap.String("step", step), zap.Error(err)}
		var de *dwr.DecodeError
		if errors.As(err, &de) {
			fields = append(fields, zap.Int("offset", de.Offset), zap.String("fragment", de.Fragment))
		}
		zap.L().Warn("quote: undecodable reply", fields...)
		return nil, apperr.Wrap(apperr.KindDecode, err, "the lending authority sent a reply that could not be read")
	}
	return rows, nil
}

// checkBlock turns an anti-automation response into RemoteBlocked.
func (s *session) checkBlock(step string, ex exchange) error {
	blocked, kind := DetectBlock(ex.resp, ex.body)
	if !blocked {
		return nil
	}
	zap.L().Warn("quote: remote blocked session",
		zap.String("step", step),
		zap.Int("status", ex.resp.StatusCode),
		zap.String("block_type", string(kind)),
	)
	return apperr.New(apperr.KindRemoteBlocked, "the lending authority rejected the request, try again later")
}

// do performs one exchange, following same-origin redirects by hand so
// cookies set on intermediate hops reach the jar.
func (s *session) do(ctx context.Context, step, method, target, contentType string, body []byte) (exchange, error) {
	for hop := 0; hop <= maxRedirects; hop++ {
		ex, err := s.roundTrip(ctx, step, method, target, contentType, body)
		if err != nil {
			return exchange{}, err
		}
		if !isRedirect(ex.resp.StatusCode) {
			return ex, nil
		}

		loc := ex.resp.Header.Get("Location")
		if loc == "" {
			return ex, nil
		}
		next, err := ex.resp.Request.URL.Parse(loc)
		if err != nil {
			return exchange{}, apperr.Wrap(apperr.KindRemoteBlocked, err, "the lending authority redirected to an invalid location")
		}
		if !sameOrigin(next, s.client.base) {
			zap.L().Warn("quote: cross-origin redirect",
				zap.String("step", step),
				zap.String("location", next.Scheme+"://"+next.Host),
			)
			return exchange{}, apperr.New(apperr.KindRemoteBlocked, "the lending authority redirected the session away")
		}

		target = next.String()
		method = http.MethodGet
		contentType = ""
		body = nil
	}
	return exchange{}, apperr.New(apperr.KindRemoteBlocked, "the lending authority redirected too many times")
}

func (s *session) roundTrip(ctx context.Context, step, method, target, contentType string, body []byte) (exchange, error) {
	reqCtx, cancel := context.WithTimeout(ctx, s.client.cfg.Timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, target, reader)
	if err != nil {
		return exchange{}, apperr.Wrap(apperr.KindInternal, err, "could not build remote request")
	}
	req.Header.Set("User-Agent", s.client.cfg.UserAgent)
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9")
	req.Header.Set("Origin", s.client.origin())
	req.Header.Set("Referer", s.client.origin()+s.client.cfg.PagePath)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if cookie := s.jar.Header(); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	start := time.Now()
	resp, err := s.client.http.Do(req)
	if err != nil {
		return exchange{}, classify(ctx, err, step)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return exchange{}, classify(ctx, err, step)
	}
	s.jar.Ingest(resp.Header)

	zap.L().Debug("quote: exchange",
		zap.String("step", step),
		zap.String("method", method),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(raw)),
		zap.Int("cookies", s.jar.Len()),
		zap.Duration("elapsed", time.Since(start)),
	)

	return exchange{resp: resp, body: decodeCharset(resp.Header.Get("Content-Type"), raw)}, nil
}

// classify maps a transport failure. Cancellation by the caller wins over the
// per-request deadline.
func classify(ctx context.Context, err error, step string) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return apperr.Wrap(apperr.KindCanceled, err, step+" canceled")
	}
	return resilience.ClassifyTransport(err, "remote "+step)
}

func limiterError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return classify(ctx, ctx.Err(), "session")
	}
	return apperr.Wrap(apperr.KindTimeout, err, "remote session could not start before the deadline")
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

// decodeCharset converts body to UTF-8 according to the Content-Type
// charset. Unknown charsets leave the body untouched.
func decodeCharset(contentType string, body []byte) []byte {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return body
	}
	charset := strings.ToLower(params["charset"])
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		return body
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return body
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return body
	}
	return out
}
