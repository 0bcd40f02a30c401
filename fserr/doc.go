/*
Package fserr defines the error taxonomy shared by every filesystem
implementation.

Each error carries a coarse Kind tag and a human-readable message. Kinds
are stable wire values: the RPC bridge serializes an error as
{kind, message} and the remote side reconstructs an equivalent error, so
callers can match on kind regardless of which backend produced the
failure.

# Basic Usage

	err := fserr.Newf(fserr.KindNotFound, "no file at %q", path)

	if fserr.IsKind(err, fserr.KindNotFound) {
		// handle the missing file
	}

errors.Is also matches by kind:

	errors.Is(err, fserr.New(fserr.KindNotFound, ""))

# Wrapping

Wrap keeps an underlying cause reachable through errors.Unwrap while
presenting a taxonomy kind to callers:

	if err := os.Remove(target); err != nil {
		return fserr.Wrap(err, fserr.KindUnexpected, "removing file")
	}
*/
package fserr
