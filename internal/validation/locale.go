package validation

import (
	"github.com/go-playground/locales/en_US"
	"github.com/go-playground/locales/es"
	"github.com/go-playground/locales/fr"
	ut "github.com/go-playground/universal-translator"
)

// Supported locales for rule messages. en_US is the fallback.
const (
	LocaleEnUS = "en_US"
	LocaleEsES = "es_ES"
	LocaleFrFR = "fr_FR"
)

var uni *ut.UniversalTranslator

// message templates per rule type, indexed by locale. Templates use
// universal-translator's {0}/{1} parameter syntax.
var messages = map[string]map[string]string{
	RuleRequired: {
		LocaleEnUS: "{0} is required",
		LocaleEsES: "{0} es obligatorio",
		LocaleFrFR: "{0} est obligatoire",
	},
	RuleStringLength: {
		LocaleEnUS: "{0} must be between {1} and {2} characters",
		LocaleEsES: "{0} debe tener entre {1} y {2} caracteres",
		LocaleFrFR: "{0} doit contenir entre {1} et {2} caractères",
	},
	RuleNumericRange: {
		LocaleEnUS: "{0} must be between {1} and {2}",
		LocaleEsES: "{0} debe estar entre {1} y {2}",
		LocaleFrFR: "{0} doit être compris entre {1} et {2}",
	},
	RuleEnumValues: {
		LocaleEnUS: "{0} must be one of: {1}",
		LocaleEsES: "{0} debe ser uno de: {1}",
		LocaleFrFR: "{0} doit être l'un de : {1}",
	},
	RuleRegexPattern: {
		LocaleEnUS: "{0} does not match the required pattern",
		LocaleEsES: "{0} no coincide con el patrón requerido",
		LocaleFrFR: "{0} ne correspond pas au motif requis",
	},
	RuleEmailFormat: {
		LocaleEnUS: "{0} must be a valid email address",
		LocaleEsES: "{0} debe ser una dirección de correo válida",
		LocaleFrFR: "{0} doit être une adresse e-mail valide",
	},
	RuleUUIDFormat: {
		LocaleEnUS: "{0} must be a valid UUID",
		LocaleEsES: "{0} debe ser un UUID válido",
		LocaleFrFR: "{0} doit être un UUID valide",
	},
	RuleDateRange: {
		LocaleEnUS: "{0} must fall between {1} and {2}",
		LocaleEsES: "{0} debe estar entre {1} y {2}",
		LocaleFrFR: "{0} doit être comprise entre {1} et {2}",
	},
}

func init() {
	enLoc := en_US.New()
	uni = ut.New(enLoc, enLoc, es.New(), fr.New())

	for locale, tag := range map[string]string{
		LocaleEnUS: "en_US",
		LocaleEsES: "es",
		LocaleFrFR: "fr",
	} {
		tr, found := uni.GetTranslator(tag)
		if !found {
			continue
		}
		for ruleType, byLocale := range messages {
			if tmpl, ok := byLocale[locale]; ok {
				_ = tr.Add(ruleType, tmpl, true)
			}
		}
	}
}

// translator returns the translator for a locale, falling back to en_US.
func translator(locale string) ut.Translator {
	tag := "en_US"
	switch locale {
	case LocaleEsES:
		tag = "es"
	case LocaleFrFR:
		tag = "fr"
	}
	tr, found := uni.GetTranslator(tag)
	if !found {
		tr = uni.GetFallback()
	}
	return tr
}

// Localize renders a rule failure message in the given locale. Unknown
// locales fall back to en_US; unknown rule types echo the rule name.
func Localize(locale, ruleType string, params ...string) string {
	tr := translator(locale)
	msg, err := tr.T(ruleType, params...)
	if err != nil {
		return ruleType
	}
	return msg
}
