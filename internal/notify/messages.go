package notify

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	for _, entry := range []struct{ key, id string }{
		{"Your session will expire in %s. Extend it to stay signed in.", "Sesi Anda akan berakhir dalam %s. Perpanjang untuk tetap masuk."},
		{"Your session has expired. Please sign in again.", "Sesi Anda telah berakhir. Silakan masuk kembali."},
		{"You were signed out of %d other session(s).", "Anda telah keluar dari %d sesi lain."},
		{"Your session was ended by an administrator.", "Sesi Anda diakhiri oleh administrator."},
	} {
		_ = message.SetString(language.Indonesian, entry.key, entry.id)
	}
}

var supported = language.NewMatcher([]language.Tag{
	language.English,
	language.Indonesian,
})

// Factory builds localized notification messages.
type Factory struct {
	printer *message.Printer
}

// NewFactory selects the closest supported locale for the given BCP 47
// tag and returns a message factory for it.
func NewFactory(locale string) *Factory {
	tag, _ := language.MatchStrings(supported, locale)
	return &Factory{printer: message.NewPrinter(tag)}
}

// SessionExpiring warns that a session will expire after remaining.
func (f *Factory) SessionExpiring(remaining time.Duration) Message {
	return Message{
		Kind: KindWarning,
		Code: CodeSessionExpiring,
		Text: f.printer.Sprintf("Your session will expire in %s. Extend it to stay signed in.", remaining.Round(time.Second)),
	}
}

// SessionExpired announces an expired session.
func (f *Factory) SessionExpired() Message {
	return Message{
		Kind: KindError,
		Code: CodeSessionExpired,
		Text: f.printer.Sprintf("Your session has expired. Please sign in again."),
	}
}

// SessionConflict reports prior sessions terminated by a new login.
func (f *Factory) SessionConflict(terminated int) Message {
	return Message{
		Kind: KindInfo,
		Code: CodeSessionConflict,
		Text: f.printer.Sprintf("You were signed out of %d other session(s).", terminated),
	}
}

// SessionTerminated reports a forced termination.
func (f *Factory) SessionTerminated() Message {
	return Message{
		Kind: KindWarning,
		Code: CodeSessionTerminated,
		Text: f.printer.Sprintf("Your session was ended by an administrator."),
	}
}
