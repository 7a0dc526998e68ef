package verifier

import "strings"

// Kind classifies the outcome of one verification attempt.
type Kind string

const (
	// KindFound: data markers located and parsed. Authoritative.
	KindFound Kind = "found"
	// KindNotRegistered: the lookup page showed an explicit negative marker. Authoritative.
	KindNotRegistered Kind = "not_registered"
	// KindBlocked: an anti-automation interstitial was served. Retry after a delay.
	KindBlocked Kind = "blocked"
	// KindLayoutMismatch: expected form controls are absent. The external
	// page changed and the selectors need maintenance.
	KindLayoutMismatch Kind = "layout_mismatch"
	// KindTimeout: navigation did not settle within the bound. Retry.
	KindTimeout Kind = "timeout"
	// KindAmbiguous: the page loaded but could not be classified. Retry and
	// inspect the capture.
	KindAmbiguous Kind = "ambiguous"
	// KindError: any other browser interaction failure. Retry.
	KindError Kind = "error"
)

// Retryable reports whether a caller should schedule another attempt.
func (k Kind) Retryable() bool {
	switch k {
	case KindBlocked, KindTimeout, KindAmbiguous, KindError:
		return true
	}
	return false
}

// Authoritative reports whether the outcome reflects the registry rather
// than a failure to read it.
func (k Kind) Authoritative() bool {
	return k == KindFound || k == KindNotRegistered
}

// Messages shown to end users, one per failure kind.
const (
	MsgNotRegistered  = "La cédula no se encuentra registrada en el censo electoral."
	MsgBlocked        = "Sitio temporalmente bloqueado. Intente nuevamente en unos minutos."
	MsgInputNotFound  = "No se encontró el campo de cédula en el formulario"
	MsgSubmitNotFound = "No se encontró el botón de consulta"
	MsgTimeout        = "La consulta al censo electoral tardó demasiado. Intente nuevamente."
	MsgAmbiguous      = "No se pudo interpretar la respuesta del sitio. Intente nuevamente."
	MsgError          = "Error al validar la cédula. Intente nuevamente."
)

// Sentinels for VotingSite fields that could not be parsed.
const (
	Unspecified  = "No especificado"
	UnspecifiedF = "No especificada"
)

// VotingSite is where a citizen is assigned to vote. Every field is set;
// unparsed fields carry Unspecified or UnspecifiedF.
type VotingSite struct {
	City     string `json:"ciudad"`
	Precinct string `json:"puesto"`
	Table    string `json:"mesa"`
	Address  string `json:"direccion"`
	Region   string `json:"departamento"`
}

// Complete reports whether every field holds a parsed value.
func (s VotingSite) Complete() bool {
	for _, v := range []string{s.City, s.Precinct, s.Table, s.Address, s.Region} {
		if v == "" || v == Unspecified || v == UnspecifiedF {
			return false
		}
	}
	return true
}

// Result is the outcome of one Verify call.
//
// Found is true exactly when Kind is KindFound, in which case ErrorMessage
// is empty and VotingSite is set. Every other kind carries a human-readable
// ErrorMessage and no VotingSite.
type Result struct {
	Found        bool        `json:"existe"`
	Name         string      `json:"nombre,omitempty"`
	VotingSite   *VotingSite `json:"lugarVotacion,omitempty"`
	ErrorMessage string      `json:"error,omitempty"`
	Kind         Kind        `json:"kind"`
}

// Failure builds a not-found Result of the given kind.
func Failure(kind Kind, msg string) Result {
	return Result{Kind: kind, ErrorMessage: msg}
}

// Found builds a successful Result.
func Found(site VotingSite, name string) Result {
	return Result{Found: true, Kind: KindFound, VotingSite: &site, Name: name}
}

// Mask hides all but the last four characters of an identifier for logs.
func Mask(identifier string) string {
	if len(identifier) <= 4 {
		return strings.Repeat("*", len(identifier))
	}
	return strings.Repeat("*", len(identifier)-4) + identifier[len(identifier)-4:]
}
