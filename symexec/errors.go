package symexec

import (
	"fmt"
	"go/token"
)

// TranslationError reports a construct the translator cannot soundly
// model. It always converts into a certificate at the engine level,
// never into a crash.
type TranslationError struct {
	Construct string
	Msg       string
	Pos       token.Position
}

func (e *TranslationError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s (line %d)", e.Msg, e.Pos.Line)
	}
	return e.Msg
}

// Line reports the source line of the failure, or 0 when unknown.
func (e *TranslationError) Line() int {
	if e.Pos.IsValid() {
		return e.Pos.Line
	}
	return 0
}

func (t *Translator) errAt(pos token.Pos, construct, format string, args ...any) *TranslationError {
	e := &TranslationError{
		Construct: construct,
		Msg:       fmt.Sprintf(format, args...),
	}
	if t.fset != nil && pos.IsValid() {
		e.Pos = t.fset.Position(pos)
	}
	return e
}
