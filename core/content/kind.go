package content

// Kind is a downloadable asset's declared type, taken directly from the
// catalog record.
type Kind string

const (
	KindSkinBinary    Kind = "skinbinary"
	KindPersonaBinary Kind = "personabinary"
)

// IsSkin reports whether the asset is skin or persona content, which is
// packaged per pack and never needs a decryption key.
func (k Kind) IsSkin() bool {
	return k == KindSkinBinary || k == KindPersonaBinary
}
