package normalize_test

import (
	"fmt"
	"testing"
	"unicode/utf8"

	"github.com/bdobrica/Kanri/internal/kanri/catalog"
	"github.com/bdobrica/Kanri/internal/kanri/normalize"
)

func defaultNormalizer(t *testing.T) *normalize.Normalizer {
	t.Helper()
	c, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default: %v", err)
	}
	return normalize.New(c.SynonymTable())
}

var normalizeCases = []struct {
	in   string
	want string
}{
	{"Bom diaaaa!!!", "bom dia"},
	{"oiiiii", "oi"},
	{"Valeu!!!", "obrigado"},
	{"tudo bem?", "como vai"},
	{"  MINHAS   Tarefas ", "minhas tarefas"},
	{"não", "nao"},
	{"Ação", "acao"},
	{"Concluí a 3ª tarefa", "feito a 3 tarefa"},
	{"terminei a terceira", "feito a 3"},
	{"trêees", "3"},
	{"1-2-3 feito", "1 2 3 feito"},
	{"feito 1,2", "feito 1 2"},
	{"feito um", "feito 1"},
	{"feito dois e três", "feito 2 e 3"},
	{"quero uma tarefa nova", "quero uma tarefa nova"},
	{"segunda feira", "segunda feira"},
	{"a 2o", "a 2"},
	{"tarefa 1000", "tarefa 1000"},
	{"👍", normalize.EmojiYes},
	{"3 ✅", "3 " + normalize.EmojiYes},
	{"não 👎", "nao " + normalize.EmojiNo},
	{"", ""},
	{"?!...", ""},
}

func TestNormalize(t *testing.T) {
	n := defaultNormalizer(t)
	for _, tt := range normalizeCases {
		t.Run(tt.in, func(t *testing.T) {
			if got := n.Normalize(tt.in); got.String() != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	n := defaultNormalizer(t)
	extra := []string{
		"minhas tarefas",
		"ver tarefa 2",
		"nova tarefa: ligar pro cliente",
		"bloqueado 3 - sem acesso ao servidor",
		"quem é você?",
		"kkkkkk",
		"o que falta?",
	}
	inputs := make([]string, 0, len(normalizeCases)+len(extra))
	for _, tt := range normalizeCases {
		inputs = append(inputs, tt.in)
	}
	inputs = append(inputs, extra...)

	for _, in := range inputs {
		once := n.Normalize(in)
		twice := n.Normalize(once.String())
		if once != twice {
			t.Errorf("not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestNormalize_IdempotentOverSynonymTable(t *testing.T) {
	c, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default: %v", err)
	}
	n := normalize.New(c.SynonymTable())
	wrappers := []string{"%s", "quero %s 3", "1 %s", "to %s 1", "%s 1, 2"}

	checked := 0
	for _, g := range c.Synonyms {
		for _, phrase := range append([]string{g.Canonical}, g.Variants...) {
			for _, w := range wrappers {
				in := fmt.Sprintf(w, phrase)
				once := n.Normalize(in)
				twice := n.Normalize(once.String())
				if once != twice {
					t.Errorf("not idempotent for %q: %q then %q", in, once, twice)
				}
				checked++
			}
		}
	}
	if checked == 0 {
		t.Fatal("default synonym table is empty")
	}
}

func TestNormalize_ReplacementCompletesLongerPhrase(t *testing.T) {
	n := defaultNormalizer(t)
	if got := n.Normalize("to trabalhando na 1"); got != "fazendo 1" {
		t.Errorf("got %q, want %q", got, "fazendo 1")
	}

	chained := normalize.New([]normalize.Synonym{
		{Canonical: "a", Variants: []string{"x y"}},
		{Canonical: "b", Variants: []string{"z a"}},
	})
	if got := chained.Normalize("z x y"); got != "b" {
		t.Errorf("got %q, want b", got)
	}
}

func TestNew_FirstDeclarationWins(t *testing.T) {
	n := normalize.New([]normalize.Synonym{
		{Canonical: "alpha", Variants: []string{"x"}},
		{Canonical: "beta", Variants: []string{"x"}},
	})
	if got := n.Normalize("x"); got != "alpha" {
		t.Errorf("got %q, want alpha", got)
	}
}

func TestNew_LongestPhraseWins(t *testing.T) {
	n := normalize.New([]normalize.Synonym{
		{Canonical: "short", Variants: []string{"x"}},
		{Canonical: "long", Variants: []string{"x y"}},
	})
	if got := n.Normalize("x y z"); got != "long z" {
		t.Errorf("got %q, want %q", got, "long z")
	}
	if got := n.Normalize("x z"); got != "short z" {
		t.Errorf("got %q, want %q", got, "short z")
	}
}

func TestNormalize_NilNormalizer(t *testing.T) {
	var n *normalize.Normalizer
	if got := n.Normalize("Olá, MUNDO"); got != "ola mundo" {
		t.Errorf("got %q", got)
	}
}

func TestFold(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Bloqueado: AÇÃO", "bloqueado: acao"},
		{"Concluí a 3ª", "conclui a 3ª"},
		{"sem acesso - VPN", "sem acesso - vpn"},
	}
	for _, tt := range tests {
		got := normalize.Fold(tt.in)
		if got != tt.want {
			t.Errorf("Fold(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if utf8.RuneCountInString(got) != utf8.RuneCountInString(tt.in) {
			t.Errorf("Fold(%q) changed rune count", tt.in)
		}
	}
}
