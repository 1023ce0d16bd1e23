package models

import "fmt"

// Identity is the signed-in user as seen by other components. PublicKey
// addresses the user in every store path, EncPublicKey is used by peers to
// derive a shared secret.
type Identity struct {
	Alias        string `json:"alias"`
	PublicKey    string `json:"pub"`
	EncPublicKey string `json:"epub"`
}

// Profile fields published under the user namespace
const (
	FieldAlias = `alias`
	FieldPub   = `pub`
	FieldEpub  = `epub`
	FieldSig   = `sig`
)

// ProfilePayload is the content the owner of a profile signs
func ProfilePayload(alias, pub, epub string) []byte {
	return []byte(fmt.Sprintf("profile\n%s\n%s\n%s", alias, pub, epub))
}

// ProfileNode is the public profile with its signature
func (i Identity) ProfileNode(sig string) Node {
	return Node{
		FieldAlias: i.Alias,
		FieldPub:   i.PublicKey,
		FieldEpub:  i.EncPublicKey,
		FieldSig:   sig,
	}
}
