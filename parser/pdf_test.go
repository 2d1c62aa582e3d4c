package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsLikelyHeadingMultilingual(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected bool
	}{
		{"english_section_prefix", "Section 1 - Introduction", true},
		{"english_chapter_prefix", "Chapter 3 - Methods", true},
		{"english_figure_with_digit", "Figure 1 Summary of results", true},
		{"english_figure_without_digit", "Figure out the problem", false},
		{"spanish_seccion_accented", "Sección 2 - Alcance", true},
		{"spanish_capitulo_unaccented", "Capitulo 4 - Resultados", true},
		{"spanish_anexo", "Anexo A - Diagramas", true},
		{"spanish_tabla_with_digit", "Tabla 3 Especificaciones", true},
		{"spanish_tabla_without_digit", "Tabla de contenidos", false},
		{"portuguese_secao_accented", "Seção 1 - Introdução", true},
		{"portuguese_artigo", "Artigo 3 - Disposições", true},
		{"portuguese_tabela_without_digit", "Tabela seguinte mostra", false},
		{"french_chapitre", "Chapitre 1 - Introduction", true},
		{"french_tableau_with_digit", "Tableau 3 Récapitulatif", true},
		{"french_tableau_without_digit", "Tableau récapitulatif des", false},
		{"numbered_section", "1. Introduction", true},
		{"deep_numbered_section", "3.9.1 Model A: Standard Head", true},
		{"all_caps_heading", "INTRODUCTION", true},
		{"all_caps_spanish", "CAPÍTULO 3 - ESPECIFICACIONES", true},
		{"regular_paragraph", "This is a normal paragraph of text that happens to be somewhat long but not a heading at all.", false},
		{"spanish_body_lowercase", "en esta sección explicamos los resultados obtenidos durante las pruebas realizadas.", false},
		{"too_short_all_caps", "AB", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isLikelyHeading(tt.line))
		})
	}
}

func TestSplitPageIntoSectionsMultilingual(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantSecs int
		wantH    string
	}{
		{
			name:     "spanish_numbered_sections",
			text:     "3.1 Condiciones Ambientales\nTemperatura: 0-40°C\nHumedad: 10-90%\n3.2 Condiciones Eléctricas\nVoltaje: 220V",
			wantSecs: 2,
			wantH:    "3.1 Condiciones",
		},
		{
			name:     "portuguese_sections",
			text:     "Seção 1 - Introdução\nEste documento descreve o sistema.\nArtigo 2 - Escopo\nO escopo inclui todos os componentes.",
			wantSecs: 2,
			wantH:    "Artigo 2",
		},
		{
			name:     "mixed_language_headings",
			text:     "SUMMARY\nThis is the summary.\nAnexo A - Diagramas\nDiagram details here.\nTableau 1 Résultats\nData row 1",
			wantSecs: 3,
			wantH:    "Anexo A",
		},
		{
			name:     "french_table_digit_guard",
			text:     "Tableau récapitulatif des résultats montrant l'évolution.\nTableau 1 Résultats principaux\nDonnées ici.",
			wantSecs: 2,
			wantH:    "Tableau 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sections := splitPageIntoSections(tt.text, 1)
			assert.Len(t, sections, tt.wantSecs)

			found := false
			for _, s := range sections {
				if containsSubstring(s.Heading, tt.wantH) {
					found = true
					break
				}
			}
			assert.True(t, found, "no section heading contains %q among %+v", tt.wantH, sections)
		})
	}
}

func containsSubstring(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return len(substr) == 0
}

func TestClassifySectionType(t *testing.T) {
	tests := []struct {
		name     string
		heading  string
		content  string
		expected string
	}{
		{"definition_heading", "Definitions", "", "definition"},
		{"glosario_heading", "Glosario", "", "definition"},
		{"requirement_shall", "Obligations", "The system shall respond within 2 seconds.", "requirement"},
		{"requisito_heading", "Requisitos de Instalación", "", "requirement"},
		{"table_heading", "Table 4", "", "table"},
		{"structural_table_by_pipes", "Overview", "a|b|c|d|e", "table"},
		{"annex_heading", "Anexo B", "", "annex"},
		{"plain_section", "Overview", "Some descriptive text.", "section"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, classifySectionType(tt.heading, tt.content))
		})
	}
}

func TestFixRunningHeadersReplacesDisplacedHeading(t *testing.T) {
	sections := []Section{
		{Heading: "DOC TITLE", Content: "intro", PageNumber: 1, Level: 1},
		{Heading: "1.0 Overview", Content: "overview text", PageNumber: 1, Level: 1},
		{Heading: "DOC TITLE", Content: "more overview", PageNumber: 2, Level: 1},
		{Heading: "2.0 Details", Content: "details text", PageNumber: 2, Level: 1},
		{Heading: "DOC TITLE", Content: "details cont", PageNumber: 3, Level: 1},
		{Heading: "3.0 Specs", Content: "specs text", PageNumber: 3, Level: 1},
		{Heading: "DOC TITLE", Content: "components cont", PageNumber: 4, Level: 1},
		{Heading: "4.1 Tracker", Content: "tracker overview", PageNumber: 5, Level: 2},
		{Heading: "DOC TITLE", Content: "continuation content", PageNumber: 6, Level: 1},
	}

	result := fixRunningHeaders(sections, 6)

	for _, s := range result {
		if s.Content == "continuation content" {
			assert.Equal(t, "4.1 Tracker", s.Heading)
			assert.Equal(t, 2, s.Level)
		}
	}
}

func TestFixRunningHeadersBelowThresholdUnchanged(t *testing.T) {
	sections := []Section{
		{Heading: "APPEARS TWICE", Content: "a", PageNumber: 1, Level: 1},
		{Heading: "1.0 Chapter", Content: "b", PageNumber: 5, Level: 1},
		{Heading: "APPEARS TWICE", Content: "c", PageNumber: 10, Level: 1},
	}

	result := fixRunningHeaders(sections, 20)

	for _, s := range result {
		if s.Content == "c" {
			assert.Equal(t, "APPEARS TWICE", s.Heading)
		}
	}
}

func TestFixRunningHeadersEmptyInput(t *testing.T) {
	assert.Empty(t, fixRunningHeaders(nil, 0))
	assert.Empty(t, fixRunningHeaders([]Section{}, 10))
}

func TestNormalizeHeadingStripsTrailingGarbage(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"MANUAL TÉCNICO", "MANUAL TÉCNICO"},
		{"MANUAL TÉCNICO�", "MANUAL TÉCNICO"},
		{"MANUAL TÉCNICO  ", "MANUAL TÉCNICO"},
		{"Clean Heading", "Clean Heading"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, normalizeHeading(tt.input))
	}
}
