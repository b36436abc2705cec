package core

// ResultKind discriminates the outcomes of a validation attempt.
type ResultKind int

const (
	// ResultResolved means the token was accepted and a principal was found.
	ResultResolved ResultKind = iota + 1
	// ResultRedirectRequired means the client holds no usable token and must
	// be sent to the authorization server.
	ResultRedirectRequired
	// ResultFailed means validation failed with an error.
	ResultFailed
)

func (k ResultKind) String() string {
	switch k {
	case ResultResolved:
		return "resolved"
	case ResultRedirectRequired:
		return "redirect_required"
	case ResultFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the tagged outcome of TokenValidator.AttemptAuthentication.
type Result struct {
	kind      ResultKind
	principal string
	err       error
}

// Resolved returns a successful Result. principal may still be blank, in
// which case no authentication is established.
func Resolved(principal string) Result {
	return Result{kind: ResultResolved, principal: principal}
}

// RedirectRequired returns a Result asking for an authorization redirect.
func RedirectRequired() Result {
	return Result{kind: ResultRedirectRequired}
}

// Failed returns a failed Result.
func Failed(err error) Result {
	return Result{kind: ResultFailed, err: err}
}

func (r Result) Kind() ResultKind  { return r.kind }
func (r Result) Principal() string { return r.principal }
func (r Result) Err() error        { return r.err }
