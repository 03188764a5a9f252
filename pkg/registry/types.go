package registry

// Wire types mirroring the PNCP consulta API. Field names follow the
// upstream JSON exactly; the rest of the platform never sees these shapes,
// only the mapped Tender record.

type OrgaoEntidade struct {
	CNPJ        string `json:"cnpj"`
	RazaoSocial string `json:"razaoSocial"`
	PoderID     string `json:"poderId"`
	EsferaID    string `json:"esferaId"`
}

type UnidadeOrgao struct {
	CodigoUnidade string `json:"codigoUnidade"`
	NomeUnidade   string `json:"nomeUnidade"`
	UFNome        string `json:"ufNome"`
	UFSigla       string `json:"ufSigla"`
	MunicipioNome string `json:"municipioNome"`
	CodigoIBGE    string `json:"codigoIbge"`
}

type Modalidade struct {
	Codigo int    `json:"codigo"`
	Nome   string `json:"nome"`
}

type SituacaoCompra struct {
	Codigo int    `json:"codigo"`
	Nome   string `json:"nome"`
}

// Entry is one raw tender announcement as served by the registry.
type Entry struct {
	NumeroControlePNCP       string          `json:"numeroControlePNCP"`
	LinkSistemaOrigem        string          `json:"linkSistemaOrigem"`
	ObjetoCompra             string          `json:"objetoCompra"`
	NumeroCompra             string          `json:"numeroCompra"`
	NumeroProcesso           string          `json:"numeroProcesso"`
	TipoInstrumentoNome      string          `json:"tipoInstrumentoConvocatorioNome"`
	Modalidade               *Modalidade     `json:"modalidade"`
	ModoDisputa              string          `json:"modoDisputa"`
	ValorTotalEstimado       float64         `json:"valorTotalEstimado"`
	ValorTotalHomologado     float64         `json:"valorTotalHomologado"`
	SituacaoCompra           *SituacaoCompra `json:"situacaoCompra"`
	DataPublicacaoPncp       string          `json:"dataPublicacaoPncp"`
	DataAberturaProposta     string          `json:"dataAberturaProposta"`
	DataEncerramentoProposta string          `json:"dataEncerramentoProposta"`
	OrgaoEntidade            *OrgaoEntidade  `json:"orgaoEntidade"`
	UnidadeOrgao             *UnidadeOrgao   `json:"unidadeOrgao"`
	SRP                      bool            `json:"srp"`
	CompraEmergencial        bool            `json:"compraEmergencial"`
	LicitacaoAssociada       string          `json:"licitacaoAssociada"`
}

// Meta carries the pagination envelope. The sync engine's termination
// condition depends on QuantidadePaginas, so these three fields must track
// the upstream contract exactly.
type Meta struct {
	TotalDeRegistros  int `json:"totalDeRegistros"`
	QuantidadePaginas int `json:"quantidadePaginas"`
	PaginaAtual       int `json:"paginaAtual"`
	TamanhoPagina     int `json:"tamanhoPagina"`
}

// Page is one page of list results.
type Page struct {
	Data []Entry `json:"data"`
	Meta Meta    `json:"meta"`
}

// Item is one line item of a tender, fetched opportunistically.
type Item struct {
	NumeroItem             int     `json:"numeroItem"`
	DescricaoItem          string  `json:"descricaoItem"`
	UnidadeMedida          string  `json:"unidadeMedida"`
	Quantidade             float64 `json:"quantidade"`
	ValorUnitarioEstimado  float64 `json:"valorUnitarioEstimado"`
	ValorTotal             float64 `json:"valorTotal"`
}

// Document is an attached document reference, fetched opportunistically.
type Document struct {
	Nome           string `json:"nome"`
	Tipo           string `json:"tipo"`
	URL            string `json:"url"`
	Tamanho        int64  `json:"tamanho"`
	DataPublicacao string `json:"dataPublicacao"`
}

// SearchParams selects a publish-date window plus optional filters.
// Dates are calendar days formatted as YYYYMMDD, per the upstream API.
type SearchParams struct {
	StartDate  string
	EndDate    string
	OrgCNPJ    string
	Modalidade string
	Page       int
	PageSize   int
}
