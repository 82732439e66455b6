package archive

import "crypto/sha256"

// ComputeEventID hashes the raw BMP message bytes (NOT the OpenBMP wrapper)
// together with the element key and action. One BMP message fans out into
// one event per NLRI it carries; folding in the key and action keeps those
// siblings distinct so the archive's dedup only collapses true Kafka
// replays. Returns a 32-byte digest suitable for BYTEA storage.
func ComputeEventID(bmpBytes []byte, elementKey, action string) []byte {
	h := sha256.New()
	h.Write(bmpBytes)
	h.Write([]byte(elementKey))
	h.Write([]byte(action))
	return h.Sum(nil)
}
