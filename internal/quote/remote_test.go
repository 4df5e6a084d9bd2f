package quote

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/model"
)

const (
	entryPath       = "/entry"
	eligibilityPath = "/eligibility"
	simulatePath    = "/dwr/simulate"
	citiesPath      = "/dwr/cities"
	pagePath        = "/app/entry"
	testUA          = "quote-test/1.0"
)

const eligibilityPage = `<html><body>
<a href="#" onclick="simulate(101, 7, 'Im&oacute;vel Residencial SBPE', 'x'); return false;">Simular</a>
<a href="#" onclick="simulate(202, 8, 'Outro', 'y'); return false;">Simular</a>
</body></html>`

const quoteReply = `//#DWR-INSERT
//#DWR-REPLY
dwr.engine.remote.handleCallback("1","0",[{valorPrestacao:3511.23,valorUltimaPrestacao:"2.890,10",prazo:360,valorFinanciamento:360000,taxaJurosNominal:"10,50",valorSeguro:"245,00",taxaAdministracao:100,codigoSistemaAmortizacao:"2",nomeSistemaAmortizacao:"PRICE",nomeSeguradora:'Caixa Seguradora'}]);
`

// fakeRemote emulates the lending authority. Handlers can be replaced per
// test; every request is recorded.
type fakeRemote struct {
	mu       sync.Mutex
	requests []*recorded

	entry       http.HandlerFunc
	eligibility http.HandlerFunc
	simulate    http.HandlerFunc
	cities      http.HandlerFunc
	extra       map[string]http.HandlerFunc
}

type recorded struct {
	Method string
	Path   string
	Header http.Header
	Body   string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		entry: func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Add("Set-Cookie", "JSESSIONID=abc123; Path=/app; HttpOnly")
			w.Header().Add("Set-Cookie", "BIGipServerpool=42; path=/")
			_, _ = io.WriteString(w, "<html><body>Simulador</body></html>")
		},
		eligibility: func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = io.WriteString(w, eligibilityPage)
		},
		simulate: func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/javascript")
			_, _ = io.WriteString(w, quoteReply)
		},
		cities: func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `dwr.engine.remote.handleCallback("1","0",[]);`)
		},
		extra: map[string]http.HandlerFunc{},
	}
}

func (f *fakeRemote) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, &recorded{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone(), Body: string(body)})
	f.mu.Unlock()

	switch r.URL.Path {
	case entryPath:
		f.entry(w, r)
	case eligibilityPath:
		f.eligibility(w, r)
	case simulatePath:
		f.simulate(w, r)
	case citiesPath:
		f.cities(w, r)
	default:
		if h, ok := f.extra[r.URL.Path]; ok {
			h(w, r)
			return
		}
		http.NotFound(w, r)
	}
}

func (f *fakeRemote) snapshot() []*recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*recorded, len(f.requests))
	copy(out, f.requests)
	return out
}

func (f *fakeRemote) count(path string) int {
	n := 0
	for _, r := range f.snapshot() {
		if r.Path == path {
			n++
		}
	}
	return n
}

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:         baseURL,
		EntryPath:       entryPath,
		EligibilityPath: eligibilityPath,
		SimulatePath:    simulatePath,
		CitiesPath:      citiesPath,
		PagePath:        pagePath,
		UserAgent:       testUA,
		VersionTag:      "v1",
		Timeout:         2 * time.Second,
	}
}

// startRemote applies setup before the server starts so handlers are never
// swapped while requests are in flight.
func startRemote(t *testing.T, setup ...func(f *fakeRemote)) (*fakeRemote, *httptest.Server, Client) {
	t.Helper()
	remote := newFakeRemote()
	for _, fn := range setup {
		fn(remote)
	}
	srv := newServer(t, remote)

	client, err := NewClient(testConfig(srv.URL))
	require.NoError(t, err)
	return remote, srv, client
}

func newServer(t *testing.T, remote *fakeRemote) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(remote)
	t.Cleanup(srv.Close)
	return srv
}

func sampleParams() model.SimulationParameters {
	return model.SimulationParameters{
		PropertyValue:     450000,
		DownPayment:       90000,
		TermMonths:        360,
		MonthlyIncome:     15000,
		BirthDate:         time.Date(1990, 5, 10, 0, 0, 0, 0, time.UTC),
		StateCode:         "df",
		CityCode:          9701,
		BorrowerType:      model.BorrowerIndividual,
		PropertyType:      "1",
		FinancingCategory: "1",
		System:            model.SystemPRICE,
	}
}
