package document

import "signflow.org/internal/auth"

// Access policy. All three predicates are pure functions of the principal
// and the document; handlers and the service must not re-derive these rules.

// CanView reports whether p may read the document or its signatures.
// Exactly the uploader and the assigned signer may.
func CanView(p auth.Principal, d *Document) bool {
	return p.ID == d.UploaderID || p.ID == d.SignerID
}

// CanModify reports whether p may edit or delete the document. Only the
// uploader may, and only while the document is not in a final state.
func CanModify(p auth.Principal, d *Document) bool {
	return p.ID == d.UploaderID && !d.Status.Final()
}

// CanSign reports whether p may execute the signing protocol. Only the
// assigned signer may, and only while the document is not in a final state.
func CanSign(p auth.Principal, d *Document) bool {
	return p.ID == d.SignerID && !d.Status.Final()
}
