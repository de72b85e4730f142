// Package identity provides SPIFFE/SPIRE-based mTLS for the HTTP Bridge's
// listener, authenticating edge camera/IoT publishers by SPIFFE ID instead
// of a bearer token. It builds no client-side TLS config for the bus or
// state-store connections.
// Exercised only when SPIFFE_SOCKET_PATH is configured; otherwise the
// bridge listens plain HTTP.
package identity

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/spiffe/go-spiffe/v2/spiffeid"
	"github.com/spiffe/go-spiffe/v2/spiffetls/tlsconfig"
	"github.com/spiffe/go-spiffe/v2/workloadapi"
)

// EdgeVerifier authenticates edge publishers (camera/IoT agents) against
// a SPIRE workload API and builds mTLS listener configuration for the
// bridge.
type EdgeVerifier struct {
	source *workloadapi.X509Source
}

// NewEdgeVerifier connects to the SPIRE agent at socketPath. A timeout
// avoids blocking coordinator startup when no SPIRE agent is reachable —
// callers should treat a connection failure as "SPIFFE not available",
// logged, never fatal.
func NewEdgeVerifier(socketPath string) (*EdgeVerifier, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	source, err := workloadapi.NewX509Source(
		ctx,
		workloadapi.WithClientOptions(workloadapi.WithAddr(socketPath)),
	)
	if err != nil {
		return nil, fmt.Errorf("identity: connect to SPIRE: %w", err)
	}

	slog.Info("identity: connected to SPIRE agent", "socket_path", socketPath)
	return &EdgeVerifier{source: source}, nil
}

// VerifySVID confirms the presented SPIFFE ID matches the local SVID and
// returns a short fingerprint of its certificate for audit logging.
func (v *EdgeVerifier) VerifySVID(spiffeID string) (uint64, error) {
	id, err := spiffeid.FromString(spiffeID)
	if err != nil {
		return 0, fmt.Errorf("identity: invalid SPIFFE ID: %w", err)
	}

	svid, err := v.source.GetX509SVID()
	if err != nil {
		return 0, fmt.Errorf("identity: get SVID: %w", err)
	}
	if svid.ID.String() != id.String() {
		return 0, fmt.Errorf("identity: SPIFFE ID mismatch: expected %s, got %s", id, svid.ID)
	}

	fingerprint := fingerprintCert(svid.Certificates[0].Raw)
	slog.Info("identity: verified edge publisher SVID", "spiffe_id", spiffeID, "fingerprint", fingerprint)
	return fingerprint, nil
}

func fingerprintCert(certDER []byte) uint64 {
	hash := sha256.Sum256(certDER)
	var result uint64
	for i := 0; i < 8; i++ {
		result = (result << 8) | uint64(hash[i])
	}
	return result
}

// ListenerTLSConfig returns an mTLS server config requiring edge
// publishers to present a SPIFFE-issued client certificate.
func (v *EdgeVerifier) ListenerTLSConfig() *tls.Config {
	return tlsconfig.MTLSServerConfig(v.source, v.source, tlsconfig.AuthorizeAny())
}

// Close releases the underlying SPIRE workload API connection.
func (v *EdgeVerifier) Close() error {
	return v.source.Close()
}

// EdgeSPIFFEID builds the expected SPIFFE ID for a named edge publisher
// (e.g. a truck's camera unit) under the given trust domain.
func EdgeSPIFFEID(trustDomain, truckID string) string {
	return fmt.Sprintf("spiffe://%s/truck/%s", trustDomain, truckID)
}
