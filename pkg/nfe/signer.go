package nfe

import "crypto/tls"

// Signer firma el documento canónico y devuelve el XML con el nodo ds:Signature.
type Signer interface {
	// Sign recibe el XML canónico (sin firma) y la credencial con llave privada.
	// No debe modificar xmlBytes; el digest cubre exactamente los bytes de infNFe.
	Sign(xmlBytes []byte, cert tls.Certificate) ([]byte, error)
}
