// Package auth registers and logs in the local identity with SRP-6a.
//
// Registration creates the credentials once, persists them before the first
// network call, obtains a client id from the relay and uploads the SRP
// verifier. Login runs the two-phase exchange on every connection and checks
// the relay's proof; nothing is persisted by a login.
//
// Failures are returned as *Error carrying the phase that failed, so callers
// can log and retry the phase on the next connection:
//
//	if err := engine.Login(ctx, srv, self); err != nil {
//	    var authErr *auth.Error
//	    if errors.As(err, &authErr) && errors.Is(err, auth.ErrServerProofMismatch) {
//	        // the relay could not prove knowledge of the verifier
//	    }
//	}
package auth
