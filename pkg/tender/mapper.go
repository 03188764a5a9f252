package tender

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/solutionhub/platform/pkg/registry"
)

// ErrMalformedRecord marks a registry entry that cannot be stored: the
// control number and the publish timestamp are required for dedup and
// ordering. Everything else degrades to safe defaults.
var ErrMalformedRecord = errors.New("malformed registry record")

// timestamps arrive either with or without a zone designator depending on
// the upstream endpoint
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

type Mapper struct {
	classifier *Classifier
}

func NewMapper(classifier *Classifier) *Mapper {
	return &Mapper{classifier: classifier}
}

// Map translates one raw registry entry into a Tender draft. It never
// fails on missing optional fields; it fails with ErrMalformedRecord only
// when the control number or publish timestamp is absent or unparsable.
func (m *Mapper) Map(entry registry.Entry) (*Tender, error) {
	controlNumber := strings.TrimSpace(entry.NumeroControlePNCP)
	if controlNumber == "" {
		return nil, fmt.Errorf("%w: missing control number", ErrMalformedRecord)
	}

	publishedAt, err := parseTime(entry.DataPublicacaoPncp)
	if err != nil || publishedAt == nil {
		return nil, fmt.Errorf("%w: bad publish timestamp %q", ErrMalformedRecord, entry.DataPublicacaoPncp)
	}

	t := &Tender{
		ID:            uuid.New().String(),
		ControlNumber: controlNumber,
		SourceLink:    entry.LinkSistemaOrigem,
		Title:         entry.ObjetoCompra,
		Description:   entry.ObjetoCompra,
		PurchaseNum:   entry.NumeroCompra,
		ProcessNum:    entry.NumeroProcesso,
		InstrumentTyp: entry.TipoInstrumentoNome,
		DisputeMode:   entry.ModoDisputa,

		EstimatedValue:   entry.ValorTotalEstimado,
		HomologatedValue: entry.ValorTotalHomologado,

		PublishedAt: *publishedAt,

		PriceRegistry: entry.SRP,
		Emergency:     entry.CompraEmergencial,
		LinkedTender:  entry.LicitacaoAssociada,
	}

	if entry.Modalidade != nil {
		t.ModalityCode = entry.Modalidade.Codigo
		t.ModalityLabel = entry.Modalidade.Nome
	}
	if t.ModalityLabel == "" {
		t.ModalityLabel = "Não informado"
	}

	if entry.SituacaoCompra != nil {
		t.StatusCode = entry.SituacaoCompra.Codigo
		t.StatusLabel = entry.SituacaoCompra.Nome
	}
	if t.StatusLabel == "" {
		t.StatusLabel = "Não informado"
	}

	if entry.OrgaoEntidade != nil {
		t.OrgCNPJ = entry.OrgaoEntidade.CNPJ
		t.OrgName = entry.OrgaoEntidade.RazaoSocial
		t.OrgPower = entry.OrgaoEntidade.PoderID
		t.OrgSphere = entry.OrgaoEntidade.EsferaID
	}

	if entry.UnidadeOrgao != nil {
		t.UnitCode = entry.UnidadeOrgao.CodigoUnidade
		t.UnitName = entry.UnidadeOrgao.NomeUnidade
		t.UnitState = entry.UnidadeOrgao.UFSigla
		t.UnitStateName = entry.UnidadeOrgao.UFNome
		t.UnitCity = entry.UnidadeOrgao.MunicipioNome
		t.UnitIBGECode = entry.UnidadeOrgao.CodigoIBGE
	}

	t.OpeningAt, _ = parseTimePtr(entry.DataAberturaProposta)
	t.ClosingAt, _ = parseTimePtr(entry.DataEncerramentoProposta)

	if m.classifier != nil {
		t.StatusTag = m.classifier.StatusTag(t.StatusLabel)
		t.ModalityTag = m.classifier.ModalityTag(t.ModalityLabel)
	}

	return t, nil
}

func parseTime(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("empty timestamp")
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return &parsed, nil
		}
	}
	return nil, fmt.Errorf("unparsable timestamp %q", raw)
}

func parseTimePtr(raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	return parseTime(raw)
}
