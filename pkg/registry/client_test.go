package registry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(serverURL string) *Client {
	return NewClient(serverURL, "test-agent/1.0", 5*time.Second, 5*time.Second)
}

func TestListByPublicationDateBuildsQuery(t *testing.T) {
	var gotQuery map[string]string
	var gotAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		gotQuery = map[string]string{}
		for key := range r.URL.Query() {
			gotQuery[key] = r.URL.Query().Get(key)
		}
		json.NewEncoder(w).Encode(Page{
			Data: []Entry{{NumeroControlePNCP: "00394460000141-1-000001/2026"}},
			Meta: Meta{TotalDeRegistros: 1, QuantidadePaginas: 1, PaginaAtual: 1, TamanhoPagina: 100},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	page, err := client.ListByPublicationDate(context.Background(), SearchParams{
		StartDate: "20260801",
		EndDate:   "20260828",
		OrgCNPJ:   "00394460000141",
		Page:      1,
		PageSize:  100,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotAgent != "test-agent/1.0" {
		t.Fatalf("expected user agent header, got %q", gotAgent)
	}
	for key, want := range map[string]string{
		"dataInicial":   "20260801",
		"dataFinal":     "20260828",
		"pagina":        "1",
		"tamanhoPagina": "100",
		"cnpjOrgao":     "00394460000141",
	} {
		if gotQuery[key] != want {
			t.Fatalf("query %s: expected %q, got %q", key, want, gotQuery[key])
		}
	}

	if len(page.Data) != 1 {
		t.Fatalf("expected one entry, got %d", len(page.Data))
	}
	if page.Meta.QuantidadePaginas != 1 {
		t.Fatalf("expected pagination meta preserved, got %+v", page.Meta)
	}
}

func TestListByPublicationDateHandlesEmptyWindow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	page, err := client.ListByPublicationDate(context.Background(), SearchParams{
		StartDate: "20260801",
		EndDate:   "20260828",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Data) != 0 || page.Meta.QuantidadePaginas != 0 {
		t.Fatalf("expected an empty page, got %+v", page)
	}
}

func TestListByPublicationDateClampsPageSize(t *testing.T) {
	var gotSize string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSize = r.URL.Query().Get("tamanhoPagina")
		json.NewEncoder(w).Encode(Page{})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	if _, err := client.ListByPublicationDate(context.Background(), SearchParams{PageSize: 5000}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotSize != "500" {
		t.Fatalf("expected page size clamped to 500, got %q", gotSize)
	}

	if _, err := client.ListByPublicationDate(context.Background(), SearchParams{PageSize: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotSize != "10" {
		t.Fatalf("expected page size raised to 10, got %q", gotSize)
	}
}

func TestListByPublicationDateRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.ListByPublicationDate(context.Background(), SearchParams{})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestListByPublicationDateUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.ListByPublicationDate(context.Background(), SearchParams{})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable on 5xx, got %v", err)
	}

	server.Close()
	_, err = client.ListByPublicationDate(context.Background(), SearchParams{})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable on network failure, got %v", err)
	}
}

func TestTenderItemsTolerateFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	if items := client.TenderItems(context.Background(), "ctrl-1"); items != nil {
		t.Fatalf("expected nil items on failure, got %v", items)
	}
	if docs := client.TenderDocuments(context.Background(), "ctrl-1"); docs != nil {
		t.Fatalf("expected nil documents on failure, got %v", docs)
	}
}

func TestTenderItemsDecodesList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]Item{{NumeroItem: 1, DescricaoItem: "Notebook 14 polegadas", Quantidade: 20}})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	items := client.TenderItems(context.Background(), "ctrl-1")
	if len(items) != 1 || items[0].NumeroItem != 1 {
		t.Fatalf("expected one decoded item, got %v", items)
	}
}
