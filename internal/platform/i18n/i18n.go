// Package i18n provides struct validation with translated field errors, and
// a small catalog of stable, localized messages for the log lines the
// engine emits on every phase transition and non-trivial error.
package i18n

import (
	"reflect"
	"strings"
	"sync"

	perr "autoreg/internal/platform/errors"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"golang.org/x/text/language"
)

// FieldError aliases validator.FieldError
type FieldError = validator.FieldError

// Svc holds the singleton validator and translator
type Svc struct {
	Validator  *validator.Validate
	Translator ut.Translator
	Locale     language.Tag
}

var (
	once sync.Once
	svc  *Svc
)

// Init builds the singleton validator with English translations and
// json-tag field names. Only English is bundled today; Locale is threaded
// through so a future catalog swap doesn't change call sites.
func Init() *Svc {
	once.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ := uni.GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})
		_ = en_translations.RegisterDefaultTranslations(v, trans)
		registerShortMin(v, trans)
		registerShortMax(v, trans)

		svc = &Svc{Validator: v, Translator: trans, Locale: language.English}
	})
	return svc
}

// Get returns the validator singleton, initializing on first use
func Get() *Svc {
	if svc == nil {
		return Init()
	}
	return svc
}

// Validate validates s and returns a single platform error for the first
// failing field, translated to the active locale. A nil error means s is
// valid.
func Validate(s any) error {
	if err := Get().Validator.Struct(s); err != nil {
		if _, ok := err.(*validator.InvalidValidationError); ok {
			return perr.Configurationf("invalid configuration: %v", err)
		}
		field, msg := FieldAndMessage(err)
		return perr.WithField(perr.Newf(perr.ErrorCodeConfiguration, "%s", msg), field)
	}
	return nil
}

// FieldAndMessage returns the first failing field and its translated message
func FieldAndMessage(err error) (field, message string) {
	if err == nil {
		return "", ""
	}
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			return fe.Field(), fe.Translate(Get().Translator)
		}
	}
	return "", err.Error()
}

func registerShortMin(v *validator.Validate, trans ut.Translator) {
	_ = v.RegisterTranslation("min", trans,
		func(ut ut.Translator) error {
			return ut.Add("min", "{0} must be at least {1}", true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			msg, _ := ut.T("min", fe.Field(), fe.Param())
			return msg
		},
	)
}

func registerShortMax(v *validator.Validate, trans ut.Translator) {
	_ = v.RegisterTranslation("max", trans,
		func(ut ut.Translator) error {
			return ut.Add("max", "{0} must be at most {1}", true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			msg, _ := ut.T("max", fe.Field(), fe.Param())
			return msg
		},
	)
}

// messages keyed by log-message id; English only today, but keyed the way
// a second locale's catalog would be so one can be added without touching
// call sites (engine code calls Message(key), never a literal
// string).
var messages = map[string]string{
	"token_check.start":       "checking token validity",
	"token_check.invalid":     "token was rejected by the SIS",
	"calibrating.start":                 "starting clock calibration",
	"calibrating.no_boundary":           "no second boundary observed within the calibration budget",
	"calibrating.probe_failed":          "calibration probe failed; retrying",
	"calibrating.clock_regression":      "local clock regression detected; discarding sample",
	"calibrating.kernel_rtt_disagreement": "kernel and userspace RTT disagree; excluding sample from the pool",
	"calibrating.done":                  "calibration complete",
	"waiting.start":           "waiting for the firing instant",
	"waiting.recalibrated":    "refreshed calibration during wait",
	"registering.start":       "registration window reached, firing",
	"registering.attempt":     "sent registration attempt",
	"registering.debounced":   "request was debounced by the SIS; backing off",
	"registering.window_closed": "registration window not open yet; retrying in burst mode",
	"done.success":            "all courses reached a terminal state",
	"done.budget_exhausted":   "attempt budget exhausted before every course converged",
	"done.cancelled":          "run was cancelled",
}

// Message looks up a stable message key in the active locale's catalog.
// An unknown key returns the key itself so a missing translation is visible
// rather than silently swallowed.
func Message(key string) string {
	if m, ok := messages[key]; ok {
		return m
	}
	return key
}
