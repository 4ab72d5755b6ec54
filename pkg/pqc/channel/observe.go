package channel

import (
	"github.com/pqfed/transfer/pkg/logging"
	"github.com/pqfed/transfer/pkg/pqc/pqcerr"
)

// LogCallbacks builds a Callbacks set that reports each handshake and
// data-phase event to log, tagged with sessionID. A host that doesn't care about
// structured logging can leave Callbacks zero-valued instead.
func LogCallbacks(log *logging.Logger, sessionID string) Callbacks {
	return Callbacks{
		HandshakeOK: func(s Suite) {
			log.Info("handshake complete", logging.Fields{
				"session_id": sessionID,
				"pqc_alg":    s.PQCAlg,
				"aead_id":    s.AEAD,
			})
		},
		ChunkSealed: func(index int, plaintextLen int) {
			log.Debug("chunk sealed", logging.Fields{
				"session_id": sessionID,
				"index":      index,
				"bytes":      plaintextLen,
			})
		},
		TrailerVerified: func() {
			log.Info("trailer digest verified", logging.Fields{"session_id": sessionID})
		},
		SessionFailed: func(kind pqcerr.Kind) {
			log.Error("session failed", logging.Fields{
				"session_id": sessionID,
				"kind":       kind.String(),
			})
		},
	}
}
