package tender

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Classifier maps the registry's free-text status and modality labels onto
// stable internal tags. The label itself is always what gets stored; the
// tag is a derived, replaceable classification, so an unknown label yields
// an empty tag instead of a rejected record.
type Classifier struct {
	statusRules   []labelRule
	modalityRules []labelRule
}

type labelRule struct {
	Contains string `yaml:"contains"`
	Tag      string `yaml:"tag"`
}

type classifierConfig struct {
	Status   []labelRule `yaml:"status"`
	Modality []labelRule `yaml:"modality"`
}

// LoadClassifier reads rules from a YAML file, falling back to the built-in
// table when path is empty.
func LoadClassifier(path string) (*Classifier, error) {
	if path == "" {
		return DefaultClassifier(), nil
	}

	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultClassifier(), err
	}

	var cfg classifierConfig
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, err
	}

	return &Classifier{statusRules: cfg.Status, modalityRules: cfg.Modality}, nil
}

func DefaultClassifier() *Classifier {
	return &Classifier{
		statusRules: []labelRule{
			{Contains: "publicada", Tag: "published"},
			{Contains: "aberta", Tag: "open"},
			{Contains: "homologada", Tag: "homologation"},
			{Contains: "adjudicada", Tag: "adjudication"},
			{Contains: "cancelada", Tag: "cancelled"},
			{Contains: "suspensa", Tag: "suspended"},
			{Contains: "revogada", Tag: "revoked"},
			{Contains: "encerrada", Tag: "closed"},
		},
		modalityRules: []labelRule{
			{Contains: "pregão eletrônico", Tag: "pregao_eletronico"},
			{Contains: "pregao eletronico", Tag: "pregao_eletronico"},
			{Contains: "pregão presencial", Tag: "pregao_presencial"},
			{Contains: "concorrência", Tag: "concorrencia"},
			{Contains: "concorrencia", Tag: "concorrencia"},
			{Contains: "tomada de preços", Tag: "tomada_precos"},
			{Contains: "convite", Tag: "convite"},
			{Contains: "concurso", Tag: "concurso"},
			{Contains: "leilão", Tag: "leilao"},
			{Contains: "dispensa", Tag: "dispensa"},
			{Contains: "inexigibilidade", Tag: "inexigibilidade"},
			{Contains: "diálogo competitivo", Tag: "dialogo_competitivo"},
			{Contains: "rdc", Tag: "rdc"},
		},
	}
}

func (c *Classifier) StatusTag(label string) string {
	return classify(c.statusRules, label)
}

func (c *Classifier) ModalityTag(label string) string {
	return classify(c.modalityRules, label)
}

func classify(rules []labelRule, label string) string {
	lowered := strings.ToLower(label)
	for _, rule := range rules {
		if rule.Contains != "" && strings.Contains(lowered, rule.Contains) {
			return rule.Tag
		}
	}
	return ""
}
